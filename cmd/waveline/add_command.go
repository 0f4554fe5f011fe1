package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"waveline/internal/analyzer"
	"waveline/internal/config"
	"waveline/internal/engine"
	"waveline/internal/queue"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var groupName string

	cmd := &cobra.Command{
		Use:   "add <file>...",
		Short: "Queue audio files for analysis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				group := engine.GroupInfo{}
				if name := strings.TrimSpace(groupName); name != "" {
					group = engine.GroupInfo{ID: uuid.NewString(), Name: name}
				}

				eng := engine.New(cfg, store, analyzer.NewCommandRunner(cfg.Analyzer), nil, nil, nil)
				jobs, err := eng.Enqueue(cmd.Context(), args, group)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, job := range jobs {
					fmt.Fprintf(out, "Queued #%d %s\n", job.ID, job.DisplayName)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&groupName, "group", "g", "", "Group the files under one name")
	return cmd
}
