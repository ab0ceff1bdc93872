package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"podforge/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, binaries, and remote services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, nil)
			for _, dep := range preflight.CheckSystemDeps(cfg) {
				result := preflight.Result{Name: dep.Name, Passed: dep.Available || dep.Optional, Detail: dep.Command}
				if !dep.Available {
					result.Detail = dep.Detail
					if dep.Optional {
						result.Detail += " (optional)"
					}
				}
				results = append(results, result)
			}
			if jsonOutput {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					state := "ok"
					if !r.Passed {
						state = "FAIL"
					}
					rows = append(rows, []string{r.Name, state, r.Detail})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(columns("Check", "Result", "Detail"), rows))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
