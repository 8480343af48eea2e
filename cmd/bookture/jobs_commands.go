package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"bookture/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the caller's library of jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsExportCommand(ctx))
	jobsCmd.AddCommand(newJobsFavoriteCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var favorites bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List jobs in the library, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			items := resp.Items
			if favorites {
				items = filterFavorites(items)
			}
			if asJSON {
				return writeJSON(cmd, api.JobListResponse{Items: items})
			}
			stdout := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(stdout, "Library is empty")
				return nil
			}
			fmt.Fprint(stdout, renderTable(
				[]column{col("ID"), col("Title"), col("Stage"), numCol("Progress"), numCol("Pages"), col("Fav"), col("Updated")},
				libraryRows(items, shouldColorize(stdout)),
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the library as JSON")
	cmd.Flags().BoolVar(&favorites, "favorites", false, "Only list favorites")
	return cmd
}

func filterFavorites(items []api.LibraryEntry) []api.LibraryEntry {
	out := make([]api.LibraryEntry, 0, len(items))
	for _, item := range items {
		if item.Favorite {
			out = append(out, item)
		}
	}
	return out
}

func libraryRows(items []api.LibraryEntry, colorize bool) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		fav := ""
		if item.Favorite {
			fav = "★"
		}
		rows = append(rows, []string{
			item.Job.ID,
			truncate(item.Job.Title, 40),
			stageLabel(item.Job.Stage, colorize),
			strconv.Itoa(item.Job.Progress) + "%",
			strconv.Itoa(item.Job.TotalUnits),
			fav,
			item.Job.UpdatedAt,
		})
	}
	return rows
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job, its style guide, and its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			detail, err := client.Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, detail)
			}
			stdout := cmd.OutOrStdout()
			printJobDetail(stdout, detail, shouldColorize(stdout))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job as JSON")
	return cmd
}

func printJobDetail(out io.Writer, detail *api.JobDetailResponse, colorize bool) {
	job := detail.Job
	fmt.Fprintf(out, "Job:        %s\n", job.ID)
	fmt.Fprintf(out, "Title:      %s\n", job.Title)
	fmt.Fprintf(out, "Stage:      %s (%d%%)\n", stageLabel(job.Stage, colorize), job.Progress)
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:      %s\n", job.ErrorMessage)
	}
	if job.CoverURL != "" {
		fmt.Fprintf(out, "Cover:      %s\n", job.CoverURL)
	}
	if job.CharacterSheetURL != "" {
		fmt.Fprintf(out, "Characters: %s\n", job.CharacterSheetURL)
	}
	if guide := job.StyleGuide; guide != nil {
		fmt.Fprintf(out, "Art style:  %s\n", guide.ArtStyle)
		fmt.Fprintf(out, "Setting:    %s\n", guide.Setting)
		if guide.Author != "" {
			fmt.Fprintf(out, "Author:     %s\n", guide.Author)
		}
	}
	fmt.Fprintf(out, "Updated:    %s\n", job.UpdatedAt)
	if len(detail.Units) == 0 {
		return
	}
	fmt.Fprintln(out)
	rows := make([][]string, 0, len(detail.Units))
	for _, unit := range detail.Units {
		note := unit.ImageURL
		if unit.ErrorMessage != "" {
			note = unit.ErrorMessage
		}
		rows = append(rows, []string{
			strconv.Itoa(unit.Ordinal),
			unit.Status,
			yesNo(strings.TrimSpace(unit.Prompt) != ""),
			note,
		})
	}
	fmt.Fprint(out, renderTable([]column{numCol("Page"), col("Status"), col("Prompt"), wideCol("Image / Error", 60)}, rows))
}

func newJobsFavoriteCommand(ctx *commandContext) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "favorite <job-id>",
		Short: "Mark a job as a library favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.SetFavorite(cmd.Context(), args[0], !remove); err != nil {
				return err
			}
			if remove {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from favorites\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s to favorites\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "Remove the favorite mark instead")
	return cmd
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}
