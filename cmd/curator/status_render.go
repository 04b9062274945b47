package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"curator/internal/api"
	"curator/internal/library"
	"curator/internal/workflow"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// stageRows renders one row per registered stage with its task counts.
func stageRows(status *api.DaemonStatus) [][]string {
	rows := make([][]string, 0, len(status.Workflow.Stages))
	for _, s := range status.Workflow.Stages {
		counts := status.TaskCounts[string(s.Name)]
		rows = append(rows, []string{
			string(s.Name),
			string(s.State),
			strconv.Itoa(counts[string(library.StatusNew)] + counts[string(library.StatusUpdated)]),
			strconv.Itoa(counts[string(library.StatusError)]),
			strconv.Itoa(finishedCount(counts)),
			upstreamLabel(s),
			lastRunLabel(s),
		})
	}
	return rows
}

func finishedCount(counts map[string]int) int {
	total := 0
	for _, status := range []library.Status{library.StatusDone, library.StatusProcessed, library.StatusDeleted} {
		total += counts[string(status)]
	}
	return total
}

func upstreamLabel(s workflow.StageStatus) string {
	if len(s.Upstream) == 0 {
		return "-"
	}
	names := make([]string, 0, len(s.Upstream))
	for _, name := range s.Upstream {
		names = append(names, string(name))
	}
	return strings.Join(names, ", ")
}

func lastRunLabel(s workflow.StageStatus) string {
	if s.LastRun == nil {
		return "-"
	}
	run := s.LastRun
	if run.FetchErr != "" {
		return "fetch failed: " + run.FetchErr
	}
	return fmt.Sprintf("%s ago, %d/%d ok",
		time.Since(run.Started).Round(time.Second),
		run.Summary.Succeeded, run.Found,
	)
}

// statusTotals sums task counts per status across every stage.
func statusTotals(counts map[string]map[string]int) [][]string {
	totals := make(map[string]int)
	for _, byStatus := range counts {
		for status, n := range byStatus {
			totals[status] += n
		}
	}
	keys := make([]string, 0, len(totals))
	for key := range totals {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, strconv.Itoa(totals[key])})
	}
	return rows
}
