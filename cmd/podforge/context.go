package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"podforge/internal/config"
	"podforge/internal/daemonctl"
)

// noConfigAnnotation marks commands that must run before a config exists.
const noConfigAnnotation = "podforge/no-config"

// commandContext is shared by every subcommand of one invocation. The
// configuration is loaded lazily and at most once.
type commandContext struct {
	configFlag *string
	// configPath is the file the config came from; empty when defaults were
	// used.
	configPath string
	load       func() (*config.Config, error)
}

func newCommandContext(configFlag *string) *commandContext {
	c := &commandContext{configFlag: configFlag}
	c.load = sync.OnceValues(c.loadConfig)
	return c
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	return c.load()
}

func (c *commandContext) loadConfig() (*config.Config, error) {
	var flagPath string
	if c.configFlag != nil {
		flagPath = strings.TrimSpace(*c.configFlag)
	}
	cfg, resolved, exists, err := config.Load(flagPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	if exists {
		c.configPath = resolved
	}
	return cfg, nil
}

// withJobs runs fn against the daemon API when it answers, or the job store.
func (c *commandContext) withJobs(ctx context.Context, fn func(*daemonctl.Connection) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	conn, err := daemonctl.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func needsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[noConfigAnnotation]; ok {
			return false
		}
	}
	return true
}
