package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"podforge/internal/api"
	"podforge/internal/daemonctl"
	"podforge/internal/segments"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		episodeID      string
		templateID     string
		plan           string
		transcript     string
		mainContent    string
		overrides      []string
		sourceDuration time.Duration
		maxAttempts    int
		jsonOutput     bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue an assembly job for an episode",
		Long: `Queue an assembly job for an episode.

Segment audio is given as order-index=reference pairs with --segment, or with
--main for the template's main content slot. References may be local paths,
file:// URLs, or s3://bucket/key URLs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			req := api.SubmitRequest{
				EpisodeID:        strings.TrimSpace(episodeID),
				TemplateID:       strings.TrimSpace(templateID),
				Plan:             strings.TrimSpace(plan),
				TranscriptRef:    absRef(transcript),
				SegmentOverrides: make(map[string]string),
				SourceDurationMS: sourceDuration.Milliseconds(),
				MaxAttempts:      maxAttempts,
			}
			for _, pair := range overrides {
				key, value, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("segment override %q must be index=reference", pair)
				}
				if _, err := strconv.Atoi(strings.TrimSpace(key)); err != nil {
					return fmt.Errorf("segment override %q: index must be an integer", pair)
				}
				req.SegmentOverrides[strings.TrimSpace(key)] = absRef(value)
			}
			if strings.TrimSpace(mainContent) != "" {
				tmpl, err := segments.NewLibrary(cfg.Paths.TemplatesDir).Load(req.TemplateID)
				if err != nil {
					return err
				}
				index, ok := tmpl.MainContentIndex()
				if !ok {
					return fmt.Errorf("template %s has no main content slot", tmpl.ID)
				}
				req.SegmentOverrides[strconv.Itoa(index)] = absRef(mainContent)
			}

			return ctx.withJobs(cmd.Context(), func(conn *daemonctl.Connection) error {
				job, err := conn.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s for episode %s (template %s, %d attempt(s))\n",
					job.ID, job.EpisodeID, job.TemplateID, job.MaxAttempts)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&episodeID, "episode", "e", "", "Episode ID")
	cmd.Flags().StringVarP(&templateID, "template", "t", "", "Template ID")
	cmd.Flags().StringVar(&plan, "plan", "", "Subscription plan for budget and memory ceilings")
	cmd.Flags().StringVar(&transcript, "transcript", "", "Word-level transcript reference")
	cmd.Flags().StringVar(&mainContent, "main", "", "Main content audio reference")
	cmd.Flags().StringArrayVar(&overrides, "segment", nil, "Per-episode segment audio as index=reference (repeatable)")
	cmd.Flags().DurationVar(&sourceDuration, "source-duration", 0, "Length of the source recording, used to scale the job budget")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempt cap (defaults to workflow.max_attempts)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("episode")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("transcript")
	return cmd
}

// absRef makes plain local paths absolute so a daemon in another working
// directory resolves them the same way.
func absRef(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.Contains(value, "://") {
		return value
	}
	if abs, err := filepath.Abs(value); err == nil {
		return abs
	}
	return value
}
