package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, stage and task status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				health, healthErr := client.Health(cmd.Context())
				payload := struct {
					Status *api.DaemonStatus   `json:"status"`
					Health *api.HealthResponse `json:"health,omitempty"`
				}{status, health}
				return emit(cmd, asJSON, payload, func(out io.Writer) error {
					renderStatus(out, status, health, healthErr)
					return nil
				})
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}

func renderStatus(out io.Writer, status *api.DaemonStatus, health *api.HealthResponse, healthErr error) {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	runningKind := statusOK
	if !status.Running {
		runningKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Running", runningKind, fmt.Sprintf("%s (pid %d)", yesNo(status.Running), status.PID), colorize))
	fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	if status.Workflow.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError, status.Workflow.LastError, colorize))
	}
	if healthErr != nil {
		fmt.Fprintln(out, renderStatusLine("Health", statusWarn, healthErr.Error(), colorize))
	} else {
		for _, check := range health.System {
			kind := statusOK
			if !check.Passed {
				kind = statusError
			}
			fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
		}
		for _, h := range health.Stages {
			if h.Ready {
				continue
			}
			fmt.Fprintln(out, renderStatusLine(h.Name, statusError, strings.TrimSpace(h.Detail), colorize))
		}
		if health.Ready {
			fmt.Fprintln(out, renderStatusLine("Health", statusOK, fmt.Sprintf("%d pending, %d errors", health.Pending, health.Errors), colorize))
		}
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Stages", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := stageRows(status)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No stages registered")
		return
	}
	fmt.Fprint(out, renderTable(stageColumns, rows))

	if totals := statusTotals(status.TaskCounts); len(totals) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Tasks", colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprint(out, renderTable(totalColumns, totals))
	}
}
