package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"podforge/internal/api"
	"podforge/internal/daemonctl"
	"podforge/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := daemonctl.Status(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderStatus(out io.Writer, status api.DaemonStatus) {
	daemonLine := "not running"
	switch {
	case status.Running:
		daemonLine = fmt.Sprintf("running (pid %d)", status.PID)
	case status.PID > 0:
		daemonLine = fmt.Sprintf("process %d alive but API not answering", status.PID)
	}
	fmt.Fprintf(out, "%-16s %s\n", "Daemon:", daemonLine)
	if status.APIAddress != "" {
		fmt.Fprintf(out, "%-16s %s\n", "API:", status.APIAddress)
	}
	fmt.Fprintf(out, "%-16s %s\n", "Job store:", status.DatabasePath)
	fmt.Fprintf(out, "%-16s %s\n", "Lock backend:", orDash(status.LockBackend))
	fmt.Fprintf(out, "%-16s %d dir(s), %s\n", "Scratch:", status.ScratchDirs, formatBytes(status.ScratchBytes))
	if status.Workflow.LastError != "" {
		fmt.Fprintf(out, "%-16s %s\n", "Last error:", status.Workflow.LastError)
	}

	rows := make([][]string, 0, len(queue.AllStatuses()))
	for _, s := range queue.AllStatuses() {
		rows = append(rows, []string{string(s), strconv.Itoa(status.Workflow.QueueStats[string(s)])})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable([]column{col("Status"), num("Jobs")}, rows))

	if len(status.Workflow.ActiveJobs) > 0 {
		ids := make([]string, 0, len(status.Workflow.ActiveJobs))
		for id := range status.Workflow.ActiveJobs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		active := make([][]string, 0, len(ids))
		for _, id := range ids {
			active = append(active, []string{id, status.Workflow.ActiveJobs[id]})
		}
		fmt.Fprintln(out, renderTable(columns("Active job", "Worker"), active))
	}

	if len(status.Dependencies) > 0 {
		deps := make([][]string, 0, len(status.Dependencies))
		for _, d := range status.Dependencies {
			state := "ok"
			if !d.Available {
				state = "missing"
				if d.Optional {
					state = "missing (optional)"
				}
			}
			deps = append(deps, []string{d.Name, d.Command, state, d.Description})
		}
		fmt.Fprintln(out, renderTable(columns("Dependency", "Command", "State", "Purpose"), deps))
	}
}
