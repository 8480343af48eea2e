package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"bookture/internal/api"
	"bookture/internal/config"
	"bookture/internal/intake"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var title string
	var wait bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Upload a document and start (or rejoin) its illustration pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			if info, err := os.Stat(path); err != nil {
				return fmt.Errorf("inspect %q: %w", path, err)
			} else if info.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Submit(cmd.Context(), path, title)
			if err != nil {
				return err
			}
			return reportDecision(cmd, client, resp, wait, asJSON)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Book title (defaults to the file name)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Follow progress until the pipeline finishes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the intake decision as JSON")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "resume <job-id>",
		Short: "Resume a failed or interrupted job from its last persisted progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return reportDecision(cmd, client, resp, wait, asJSON)
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Follow progress until the pipeline finishes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the intake decision as JSON")
	return cmd
}

func reportDecision(cmd *cobra.Command, client *api.Client, resp *api.IntakeResponse, wait, asJSON bool) error {
	if asJSON {
		if err := writeJSON(cmd, resp); err != nil {
			return err
		}
	} else {
		printDecision(cmd.OutOrStdout(), resp)
	}
	if !wait || resp.Outcome == string(intake.OutcomeAlreadyDone) {
		return nil
	}
	return followJob(cmd.Context(), cmd, client, resp.Job.ID)
}

func printDecision(out io.Writer, resp *api.IntakeResponse) {
	fmt.Fprintln(out, resp.Message)
	fmt.Fprintf(out, "  Job:      %s\n", resp.Job.ID)
	fmt.Fprintf(out, "  Title:    %s\n", resp.Job.Title)
	fmt.Fprintf(out, "  Stage:    %s (%d%%)\n", resp.Job.Stage, resp.Job.Progress)
	if resp.Job.ErrorMessage != "" && resp.Outcome != string(intake.OutcomeResume) {
		fmt.Fprintf(out, "  Error:    %s\n", resp.Job.ErrorMessage)
	}
}
