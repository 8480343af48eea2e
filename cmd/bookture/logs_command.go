package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/logs"
	"bookture/internal/workflow"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs [job-id]",
		Short: "Show the daemon log or a job's log",
		Long: `Show the last lines of the daemon log, or of a job's own log when a job ID
is given. Job logs are kept across resumes of the same job.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
			if len(args) == 1 {
				client, err := ctx.client()
				if err != nil {
					return err
				}
				detail, err := client.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				path = workflow.NewJobLogs(cfg).Path(&jobs.Job{ID: detail.Job.ID, Title: detail.Job.Title})
			}

			out := cmd.OutOrStdout()
			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			if len(tail) == 0 && !follow {
				fmt.Fprintf(out, "No log entries in %s\n", path)
				return nil
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			err = logs.Follow(cmd.Context(), path, offset, logs.DefaultPollInterval, func(line string) {
				fmt.Fprintln(out, line)
			})
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	return cmd
}
