package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "podforge",
		Short:         "Assemble podcast episodes from templates and recorded segments",
		Long:          "podforge submits render jobs, inspects their progress and audit trail, and can run the worker daemon in the foreground.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !needsConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(
		// jobs
		newSubmitCommand(ctx),
		newJobsCommand(ctx),
		newCancelCommand(ctx),
		newRetryCommand(ctx),
		newAuditCommand(ctx),
		newLogsCommand(ctx),
		newEpisodeCommand(ctx),
		// setup
		newTemplatesCommand(ctx),
		newConfigCommand(ctx),
		newPreflightCommand(ctx),
		// daemon
		newStatusCommand(ctx),
		newRunCommand(ctx),
		newDaemonCommand(ctx),
	)
	return rootCmd
}
