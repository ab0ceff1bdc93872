package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"podforge/internal/api"
	"podforge/internal/config"
	"podforge/internal/daemonrun"
	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "run <job-id>",
		Short: "Process one queued job in the foreground",
		Long: `Process one queued job in the foreground.

The job is locked and claimed exactly as a daemon worker would, so running it
while the daemon is up is safe: whichever side claims it first processes it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logCfg := *cfg
			if level := strings.TrimSpace(logLevel); level != "" {
				logCfg.Logging.Level = level
			}
			logCfg.Paths.LogDir = ""
			logger, err := logging.NewFromConfig(&logCfg)
			if err != nil {
				return err
			}

			rt, err := daemonrun.Build(config.NewWatcher("", cfg), logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			runErr := rt.Manager.RunJob(cmd.Context(), args[0])
			if errors.Is(runErr, workflow.ErrJobBusy) {
				return fmt.Errorf("job %s is being processed elsewhere", args[0])
			}
			job, err := rt.Store.GetJob(cmd.Context(), args[0])
			if err != nil || job == nil {
				if runErr != nil {
					return runErr
				}
				return err
			}
			dto := api.FromJob(job)
			fmt.Fprint(cmd.OutOrStdout(), renderJobDetail(&dto))
			if runErr != nil {
				return runErr
			}
			if dto.Status != string(queue.StatusSucceeded) {
				return fmt.Errorf("job %s finished as %s", dto.ID, dto.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this run")
	return cmd
}

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var (
		logLevel      string
		skipPreflight bool
	)
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the worker pool and status API in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				ConfigPath:    ctx.configPath,
				LogLevel:      logLevel,
				SkipPreflight: skipPreflight,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip startup readiness checks")
	return cmd
}
