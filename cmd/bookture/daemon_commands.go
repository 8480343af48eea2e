package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"bookture/internal/daemonctl"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bookture daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			client, err := ctx.client()
			if err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.configFlagValue(),
				LogLevel:   startLogLevel,
			}, 10*time.Second)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override logging.level for the daemon")

	var grace time.Duration
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the bookture daemon; running pipelines resume on the next start",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := daemonctl.StopAndTerminate(cmd.Context(), client, cfg, grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit within %s; killed pid %d\n", grace, result.PID)
				return nil
			}
			fmt.Fprintf(stdout, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}
	stopCmd.Flags().DurationVar(&grace, "grace", 10*time.Second, "How long to wait before force-killing the daemon")

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, configuration, and job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), client, cfg)
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, snapshot)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, check := range snapshot.Checks {
				fmt.Fprintln(stdout, renderStatusLine(check.Name, statusKindFromSeverity(check.Severity), check.Detail, colorize))
			}
			if !snapshot.Offline {
				fmt.Fprintln(stdout, renderStatusLine("PID", statusInfo, strconv.Itoa(snapshot.Daemon.PID), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Active pipelines", statusInfo, strconv.Itoa(len(snapshot.Daemon.Workflow.ActiveJobs)), colorize))
				for _, health := range snapshot.Daemon.Workflow.StageHealth {
					kind := statusOK
					if !health.Ready {
						kind = statusError
					}
					fmt.Fprintln(stdout, renderStatusLine("Stage "+health.Name, kind, health.Detail, colorize))
				}
				if snapshot.Daemon.Workflow.LastError != "" {
					fmt.Fprintln(stdout, renderStatusLine("Last error", statusWarn, snapshot.Daemon.Workflow.LastError, colorize))
				}
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Jobs", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := stageCountRows(snapshot.Daemon.Workflow.StageCounts, colorize)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No jobs yet")
				return nil
			}
			fmt.Fprint(stdout, renderTable([]column{col("Stage"), numCol("Count")}, rows))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status snapshot as JSON")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func stageCountRows(counts map[string]int, colorize bool) [][]string {
	stages := make([]string, 0, len(counts))
	for stage, count := range counts {
		if count > 0 {
			stages = append(stages, stage)
		}
	}
	sort.Strings(stages)
	rows := make([][]string, 0, len(stages))
	for _, stage := range stages {
		rows = append(rows, []string{stageLabel(stage, colorize), strconv.Itoa(counts[stage])})
	}
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}
