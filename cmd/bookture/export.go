package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"bookture/internal/api"
	"bookture/internal/config"
)

const (
	librarySheet = "Library"
	pagesSheet   = "Pages"
)

var libraryHeaders = []string{"Job ID", "Title", "Stage", "Progress", "Pages", "Favorite", "Art Style", "Cover", "Error", "Added", "Updated"}

var pageHeaders = []string{"Job ID", "Title", "Page", "Status", "Prompt", "Summary", "Image", "Error"}

func newJobsExportCommand(ctx *commandContext) *cobra.Command {
	var output string
	var withPages bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the library to an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			target, err := config.ExpandPath(strings.TrimSpace(output))
			if err != nil {
				return err
			}
			list, err := client.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			var details []*api.JobDetailResponse
			if withPages {
				details, err = fetchDetails(cmd.Context(), client, list.Items)
				if err != nil {
					return err
				}
			}
			book, err := buildWorkbook(list.Items, details)
			if err != nil {
				return err
			}
			defer book.Close()
			if err := book.SaveAs(target); err != nil {
				return fmt.Errorf("write workbook: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d jobs to %s\n", len(list.Items), target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "bookture-library.xlsx", "Destination workbook")
	cmd.Flags().BoolVar(&withPages, "pages", false, "Include a sheet with every page's prompt and image")
	return cmd
}

func fetchDetails(ctx context.Context, client *api.Client, items []api.LibraryEntry) ([]*api.JobDetailResponse, error) {
	details := make([]*api.JobDetailResponse, 0, len(items))
	for _, item := range items {
		detail, err := client.Job(ctx, item.Job.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch job %s: %w", item.Job.ID, err)
		}
		details = append(details, detail)
	}
	return details, nil
}

// buildWorkbook lays the library out on one sheet and, when details are
// given, every page on a second sheet.
func buildWorkbook(items []api.LibraryEntry, details []*api.JobDetailResponse) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", librarySheet); err != nil {
		return nil, err
	}
	writeHeaders(f, librarySheet, libraryHeaders)

	for i, item := range items {
		row := i + 2
		artStyle := ""
		if item.Job.StyleGuide != nil {
			artStyle = item.Job.StyleGuide.ArtStyle
		}
		writeRow(f, librarySheet, row, []any{
			item.Job.ID,
			item.Job.Title,
			item.Job.Stage,
			item.Job.Progress,
			item.Job.TotalUnits,
			yesNo(item.Favorite),
			artStyle,
			item.Job.CoverURL,
			item.Job.ErrorMessage,
			item.AddedAt,
			item.Job.UpdatedAt,
		})
	}
	_ = f.SetColWidth(librarySheet, "A", "A", 38)
	_ = f.SetColWidth(librarySheet, "B", "B", 32)
	_ = f.SetColWidth(librarySheet, "C", "C", 20)
	_ = f.SetColWidth(librarySheet, "G", "I", 40)

	if len(details) == 0 {
		return f, nil
	}
	if _, err := f.NewSheet(pagesSheet); err != nil {
		return nil, err
	}
	writeHeaders(f, pagesSheet, pageHeaders)
	row := 2
	for _, detail := range details {
		for _, unit := range detail.Units {
			writeRow(f, pagesSheet, row, []any{
				detail.Job.ID,
				detail.Job.Title,
				unit.Ordinal,
				unit.Status,
				unit.Prompt,
				unit.Summary,
				unit.ImageURL,
				unit.ErrorMessage,
			})
			row++
		}
	}
	_ = f.SetColWidth(pagesSheet, "E", "F", 60)
	return f, nil
}

func writeHeaders(f *excelize.File, sheet string, headers []string) {
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	writeRow(f, sheet, 1, values)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for col, value := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, value)
	}
}
