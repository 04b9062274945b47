package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// column describes one column of a CLI table. Cells longer than max are
// shortened from the left so paths keep their file name.
type column struct {
	title   string
	numeric bool
	max     int
}

var (
	stageColumns = []column{
		{title: "Stage"},
		{title: "State"},
		{title: "Pending", numeric: true},
		{title: "Errors", numeric: true},
		{title: "Finished", numeric: true},
		{title: "Triggered by", max: 40},
		{title: "Last run", max: 60},
	}
	taskColumns = []column{
		{title: "ID", numeric: true},
		{title: "Stage"},
		{title: "Status"},
		{title: "Ref", max: 60},
		{title: "Attempts", numeric: true},
		{title: "Updated"},
		{title: "Error", max: 50},
	}
	totalColumns   = []column{{title: "Status"}, {title: "Count", numeric: true}}
	requeueColumns = []column{{title: "Stage"}, {title: "Re-queued", numeric: true}}
)

func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, 0, len(columns))
	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, col := range columns {
		header = append(header, col.title)
		align := text.AlignLeft
		if col.numeric {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, cells := range rows {
		row := make(table.Row, len(columns))
		for i, col := range columns {
			if i >= len(cells) {
				continue
			}
			cell := cells[i]
			if col.max > 0 {
				cell = truncate(cell, col.max)
			}
			row[i] = cell
		}
		tw.AppendRow(row)
	}
	return tw.Render() + "\n"
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return "..." + string(runes[len(runes)-limit+3:])
}

// emit prints v as indented JSON when asJSON is set and otherwise hands the
// command's stdout to render.
func emit(cmd *cobra.Command, asJSON bool, v any, render func(io.Writer) error) error {
	out := cmd.OutOrStdout()
	if !asJSON {
		return render(out)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintf(out, "%s\n", data)
	return err
}
