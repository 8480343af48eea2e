package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"bookture/internal/api"
	"bookture/internal/progress"
)

// progressView renders a job's event stream either as a live bar (on a
// terminal) or as one line per event.
type progressView struct {
	out      io.Writer
	bar      *progressbar.ProgressBar
	colorize bool
	last     progress.Event
}

func newProgressView(out io.Writer, interactive bool) *progressView {
	view := &progressView{out: out, colorize: interactive && shouldColorize(out)}
	if interactive {
		view.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionEnableColorCodes(view.colorize),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "│",
				BarEnd:        "│",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(out)
			}),
		)
	}
	return view
}

func (v *progressView) handle(evt progress.Event) {
	v.last = evt
	if v.bar == nil {
		switch evt.Type {
		case progress.EventLog:
			fmt.Fprintf(v.out, "[%3d%%] %s  %s\n", evt.Progress, evt.Stage, evt.Message)
		case progress.EventError:
			fmt.Fprintf(v.out, "[%3d%%] failed: %s\n", evt.Progress, evt.Message)
		default:
			fmt.Fprintf(v.out, "[%3d%%] %s\n", evt.Progress, evt.Stage)
		}
		return
	}
	description := stageLabel(string(evt.Stage), v.colorize)
	if evt.Type == progress.EventLog && evt.Message != "" {
		description += "  " + evt.Message
	}
	v.bar.Describe(description)
	_ = v.bar.Set(evt.Progress)
	if evt.Terminal() && evt.Type != progress.EventError {
		_ = v.bar.Finish()
	}
}

// errPipelineFailed is returned when a followed job ends in the error stage.
var errPipelineFailed = errors.New("pipeline failed")

// followJob streams events for id until the job finishes or ctx ends.
func followJob(ctx context.Context, cmd *cobra.Command, client *api.Client, id string) error {
	stdout := cmd.OutOrStdout()
	view := newProgressView(stdout, shouldColorize(stdout))
	err := client.Follow(ctx, id, func(evt progress.Event) bool {
		view.handle(evt)
		return !evt.Terminal()
	})
	if err != nil {
		return err
	}
	if view.last.Type == progress.EventError {
		if view.bar != nil {
			fmt.Fprintln(stdout)
		}
		return fmt.Errorf("%w: %s", errPipelineFailed, view.last.Message)
	}
	fmt.Fprintf(stdout, "Job %s completed\n", id)
	return nil
}

func newFollowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "follow <job-id>",
		Short: "Stream progress for a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			return followJob(cmd.Context(), cmd, client, args[0])
		},
	}
}
