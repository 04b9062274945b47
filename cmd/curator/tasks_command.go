package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"curator/internal/api"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var stageName string
	var status string
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"queue"},
		Short:   "List tasks by stage and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				tasks, err := client.Tasks(cmd.Context(), stageName, status, limit)
				if err != nil {
					return err
				}
				return emit(cmd, asJSON, tasks, func(out io.Writer) error {
					if len(tasks) == 0 {
						fmt.Fprintln(out, "No tasks found")
						return nil
					}
					fmt.Fprint(out, renderTable(taskColumns, taskRows(tasks)))
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&stageName, "stage", "s", "", "Filter by stage")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (new, updated, done, error, ...)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of tasks")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}

func taskRows(tasks []api.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			strconv.FormatInt(task.ID, 10),
			task.Stage,
			task.Status,
			task.Ref,
			strconv.Itoa(task.Attempts),
			task.UpdatedAt,
			task.ErrorMessage,
		})
	}
	return rows
}
