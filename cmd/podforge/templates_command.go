package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"podforge/internal/segments"
)

func newTemplatesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List episode templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			templates, problems := segments.NewLibrary(cfg.Paths.TemplatesDir).List()
			for _, problem := range problems {
				fmt.Fprintf(cmd.ErrOrStderr(), "warn: %v\n", problem)
			}
			if jsonOutput {
				return writeJSON(cmd, templates)
			}
			if len(templates) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No templates in %s\n", cfg.Paths.TemplatesDir)
				return nil
			}
			rows := make([][]string, 0, len(templates))
			for _, tmpl := range templates {
				main := "-"
				if index, ok := tmpl.MainContentIndex(); ok {
					main = strconv.Itoa(index)
				}
				rows = append(rows, []string{
					tmpl.ID,
					tmpl.Name,
					strconv.Itoa(len(tmpl.Segments)),
					main,
					strconv.Itoa(len(tmpl.MusicRules)),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
				col("ID"), col("Name"), num("Segments"), num("Main slot"), num("Music rules"),
			}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.AddCommand(newTemplateShowCommand(ctx))
	return cmd
}

func newTemplateShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <template-id>",
		Short: "Print a validated template as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tmpl, err := segments.NewLibrary(cfg.Paths.TemplatesDir).Load(args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(tmpl)
		},
	}
}
