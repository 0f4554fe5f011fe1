package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"waveline/internal/config"
	"waveline/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				var filters []queue.Status
				if trimmed := strings.TrimSpace(statusFilter); trimmed != "" {
					status, ok := queue.ParseStatus(trimmed)
					if !ok {
						return fmt.Errorf("unknown status %q", trimmed)
					}
					filters = append(filters, status)
				}

				jobs, err := store.List(cmd.Context(), filters...)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						fmt.Sprintf("%d", job.ID),
						jobTitle(job),
						string(job.Status),
						fmt.Sprintf("%.0f%%", job.Progress()*100),
						job.ErrorMessage,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Status", "Progress", "Detail"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Only show jobs with this status")
	return cmd
}

func jobTitle(job *queue.Job) string {
	title := job.DisplayName
	if title == "" {
		title = job.SourcePath
	}
	if job.GroupName != "" {
		return job.GroupName + " / " + title
	}
	return title
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !clearCompleted && !clearFailed && !clearAll {
				return fmt.Errorf("specify --completed, --failed, or --all")
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				var removed int64
				var err error
				switch {
				case clearAll:
					removed, err = store.ClearAll(cmd.Context())
				case clearCompleted && clearFailed:
					removed, err = store.Clear(cmd.Context(), queue.StatusDone, queue.StatusFailed, queue.StatusCanceled)
				case clearCompleted:
					removed, err = store.Clear(cmd.Context(), queue.StatusDone)
				default:
					removed, err = store.Clear(cmd.Context(), queue.StatusFailed, queue.StatusCanceled)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove done jobs")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove failed and canceled jobs")
	cmd.Flags().BoolVar(&clearAll, "all", false, "Remove every job except the one running")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]string{"Pending", "Running", "Done", "Failed", "Canceled", "Total"},
					[][]string{{
						fmt.Sprintf("%d", health.Pending),
						fmt.Sprintf("%d", health.Running),
						fmt.Sprintf("%d", health.Done),
						fmt.Sprintf("%d", health.Failed),
						fmt.Sprintf("%d", health.Canceled),
						fmt.Sprintf("%d", health.Total),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
				))

				running, err := store.List(cmd.Context(), queue.StatusRunning)
				if err != nil {
					return err
				}
				for _, job := range running {
					fmt.Fprintf(out, "Running: #%d %s (started %s)\n",
						job.ID, jobTitle(job), formatWhen(job.StartedAt))
				}
				return nil
			})
		},
	}
}

func formatWhen(when *time.Time) string {
	if when == nil {
		return "unknown"
	}
	return when.Local().Format("15:04:05")
}

// newStopCommand cancels queued work. The daemon notices the state change
// and discards any in-flight result, so stopping is safe while it runs.
func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Cancel the running job and everything pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				running, err := store.CancelRunning(cmd.Context(), queue.UserStopReason)
				if err != nil {
					return err
				}
				pending, err := store.CancelPending(cmd.Context(), queue.UserStopReason)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Canceled %d job(s)\n", pending+running)
				return nil
			})
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Return canceled jobs to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				count, err := store.ResumeCanceled(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resumed %d job(s)\n", count)
				return nil
			})
		},
	}
}

func newOutboxCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "outbox",
		Short: "Show pending and abandoned artifact hand-offs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				entries, err := store.OutboxList(cmd.Context())
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Outbox is empty")
					return nil
				}

				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					state := "pending"
					if entry.Attempts >= cfg.Outbox.MaxAttempts {
						state = "abandoned"
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", entry.ID),
						entry.FilePath,
						fmt.Sprintf("%d/%d", entry.Attempts, cfg.Outbox.MaxAttempts),
						state,
						entry.LastError,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Artifact", "Attempts", "State", "Last Error"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}
