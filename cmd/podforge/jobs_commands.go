package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"podforge/internal/api"
	"podforge/internal/daemonctl"
	"podforge/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses   []string
		episodeID  string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List assembly jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range statuses {
				if _, ok := queue.ParseStatus(s); !ok {
					return fmt.Errorf("unknown status %q", s)
				}
			}
			query := api.ListQuery{Statuses: statuses, EpisodeID: strings.TrimSpace(episodeID), Limit: limit}
			return ctx.withJobs(cmd.Context(), func(conn *daemonctl.Connection) error {
				jobs, err := conn.List(cmd.Context(), query)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderJobTable(jobs))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (queued, running, succeeded, failed)")
	cmd.Flags().StringVarP(&episodeID, "episode", "e", "", "Filter by episode ID")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of jobs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	cmd.AddCommand(newJobShowCommand(ctx))
	return cmd
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(conn *daemonctl.Connection) error {
				job, err := conn.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", args[0])
				}
				if jsonOutput {
					return writeJSON(cmd, job)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderJobDetail(job))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderJobTable(jobs []api.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			job.EpisodeID,
			job.TemplateID,
			jobStatusLabel(job),
			fmt.Sprintf("%d/%d", job.AttemptCount, job.MaxAttempts),
			formatMillis(job.DurationMS),
			orDash(job.ErrorKind),
			orDash(job.UpdatedAt),
		})
	}
	return renderTable([]column{
		col("ID"), col("Episode"), col("Template"), col("Status"),
		num("Attempts"), num("Duration"), col("Error"), col("Updated"),
	}, rows)
}

func jobStatusLabel(job api.Job) string {
	if job.CancelRequested && job.Status == string(queue.StatusRunning) {
		return job.Status + " (cancelling)"
	}
	return job.Status
}

func renderJobDetail(job *api.Job) string {
	var b strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&b, "%-16s %s\n", label+":", orDash(value))
	}
	line("Job", job.ID)
	line("Episode", job.EpisodeID)
	line("Template", job.TemplateID)
	line("Plan", job.Plan)
	line("Status", jobStatusLabel(*job))
	line("Attempts", fmt.Sprintf("%d/%d", job.AttemptCount, job.MaxAttempts))
	line("Transcript", job.TranscriptRef)
	for _, key := range sortedKeys(job.SegmentOverrides) {
		line("Segment "+key, job.SegmentOverrides[key])
	}
	if job.SourceDurationMS > 0 {
		line("Source length", formatMillis(job.SourceDurationMS))
	}
	line("Worker", job.WorkerID)
	line("Created", job.CreatedAt)
	line("Started", job.StartedAt)
	line("Finished", job.FinishedAt)
	if job.ErrorKind != "" {
		line("Error kind", job.ErrorKind)
		line("Error", job.ErrorMessage)
	}
	if job.ArtifactRef != "" {
		line("Artifact", job.ArtifactRef)
		line("Duration", formatMillis(job.DurationMS))
		line("Size", formatBytes(job.FileSizeBytes))
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Keys are order indices.
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	return keys
}

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "audit <job-id>",
		Short: "Show what happened to each voice command in a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(conn *daemonctl.Connection) error {
				entries, err := conn.Audit(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No voice commands recorded")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						strconv.Itoa(e.Attempt),
						e.Kind,
						orDash(e.TriggerText),
						fmt.Sprintf("%s-%s", formatMillis(e.TriggerStartMS), formatMillis(e.TriggerEndMS)),
						fmt.Sprintf("%s-%s", formatMillis(e.ScopeStartMS), formatMillis(e.ScopeEndMS)),
						e.Outcome,
						orDash(e.Note),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
					num("Attempt"), col("Kind"), col("Trigger"), col("Trigger span"),
					col("Scope"), col("Outcome"), col("Note"),
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newEpisodeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "episode <episode-id>",
		Short: "Show an episode's current render",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(conn *daemonctl.Connection) error {
				episode, err := conn.Episode(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if episode == nil {
					return fmt.Errorf("episode %s not found", args[0])
				}
				if jsonOutput {
					return writeJSON(cmd, episode)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-16s %s\n", "Episode:", episode.ID)
				fmt.Fprintf(out, "%-16s %s\n", "Current job:", orDash(episode.CurrentJobID))
				fmt.Fprintf(out, "%-16s %s\n", "Artifact:", orDash(episode.ArtifactRef))
				if episode.ArtifactRef != "" {
					fmt.Fprintf(out, "%-16s %s\n", "Duration:", formatMillis(episode.DurationMS))
					fmt.Fprintf(out, "%-16s %s\n", "Size:", formatBytes(episode.FileSizeBytes))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "cancel <job-id>...",
		Short: "Cancel queued or running jobs",
		Long: `Cancel queued or running jobs.

Queued jobs fail immediately. Running jobs stop at their next checkpoint
before the artifact is linked to the episode.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(conn *daemonctl.Connection) error {
				results, err := api.CancelJobs(cmd.Context(), conn, args)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, results)
				}
				out := cmd.OutOrStdout()
				for _, r := range results {
					switch r.Outcome {
					case api.CancelJobFailed:
						fmt.Fprintf(out, "Job %s cancelled\n", r.ID)
					case api.CancelJobRequested:
						fmt.Fprintf(out, "Job %s is running; cancellation requested\n", r.ID)
					case api.CancelJobNotFound:
						fmt.Fprintf(out, "Job %s not found\n", r.ID)
					default:
						fmt.Fprintf(out, "Job %s not cancelled (%s)\n", r.ID, r.Outcome)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "retry [job-id...]",
		Short: "Requeue failed jobs (all failed jobs when no IDs are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(conn *daemonctl.Connection) error {
				ids := args
				if len(ids) == 0 {
					failed, err := conn.List(cmd.Context(), api.ListQuery{Statuses: []string{string(queue.StatusFailed)}})
					if err != nil {
						return err
					}
					for _, job := range failed {
						ids = append(ids, job.ID)
					}
				}
				if len(ids) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No failed jobs to retry")
					return nil
				}
				result, err := api.RetryFailedJobs(cmd.Context(), conn, ids)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				for _, r := range result.Jobs {
					switch r.Outcome {
					case api.RetryJobRequeued:
						fmt.Fprintf(out, "Job %s requeued\n", r.ID)
					case api.RetryJobNotFound:
						fmt.Fprintf(out, "Job %s not found\n", r.ID)
					case api.RetryJobNotFailed:
						fmt.Fprintf(out, "Job %s is not failed\n", r.ID)
					case api.RetryJobBlocked:
						fmt.Fprintf(out, "Job %s not requeued: episode has another active job\n", r.ID)
					}
				}
				fmt.Fprintf(out, "%d job(s) requeued\n", result.RequeuedCount)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
