package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"podforge/internal/config"
	"podforge/internal/daemonrun"
)

func main() {
	err := newRootCommand().ExecuteContext(context.Background())
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, "podforged:", err)
		os.Exit(1)
	}
}

type daemonFlags struct {
	configPath    string
	logLevel      string
	skipPreflight bool
	checkConfig   bool
}

func newRootCommand() *cobra.Command {
	var flags daemonFlags
	cmd := &cobra.Command{
		Use:           "podforged",
		Short:         "Run the podforge worker daemon and status API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, flags)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	f.StringVar(&flags.logLevel, "log-level", "", "Override logging.level")
	f.BoolVar(&flags.skipPreflight, "skip-preflight", false, "Skip startup readiness checks")
	f.BoolVar(&flags.checkConfig, "check-config", false, "Load and validate the configuration, then exit")
	return cmd
}

func runDaemon(cmd *cobra.Command, flags daemonFlags) error {
	cfg, resolved, exists, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.checkConfig {
		if !exists {
			resolved += " (not found, defaults used)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %s\n", resolved)
		return nil
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}
	opts := daemonrun.Options{LogLevel: flags.logLevel, SkipPreflight: flags.skipPreflight}
	if exists {
		opts.ConfigPath = resolved
	}
	return daemonrun.Run(cmd.Context(), cfg, opts)
}
