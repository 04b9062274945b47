package api

import (
	"sort"

	"curator/internal/library"
	"curator/internal/preflight"
	"curator/internal/stage"
)

// FromTask converts a task row to its API representation.
func FromTask(task *library.Task) Task {
	if task == nil {
		return Task{}
	}
	dto := Task{
		ID:           task.ID,
		Stage:        string(task.Stage),
		Domain:       string(task.Domain),
		Subtype:      task.Subtype,
		Ref:          task.Ref,
		Status:       string(task.Status),
		Version:      task.Version,
		Attempts:     task.Attempts,
		ErrorMessage: task.ErrorMessage,
	}
	if !task.CreatedAt.IsZero() {
		dto.CreatedAt = task.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !task.UpdatedAt.IsZero() {
		dto.UpdatedAt = task.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	if task.FinishedAt != nil {
		dto.FinishedAt = task.FinishedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromTasks converts a slice of task rows.
func FromTasks(tasks []*library.Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, FromTask(task))
	}
	return out
}

// FromStageCounts flattens typed per-stage status counts into strings.
func FromStageCounts(counts map[stage.Name]map[library.Status]int) map[string]map[string]int {
	out := make(map[string]map[string]int, len(counts))
	for name, statuses := range counts {
		inner := make(map[string]int, len(statuses))
		for status, count := range statuses {
			inner[string(status)] = count
		}
		out[string(name)] = inner
	}
	return out
}

// StageHealthSlice converts and orders stage health by name.
func StageHealthSlice(health []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FromPreflight converts preflight results into transport checks.
func FromPreflight(results []preflight.Result) []SystemCheck {
	if len(results) == 0 {
		return nil
	}
	out := make([]SystemCheck, 0, len(results))
	for _, result := range results {
		out = append(out, SystemCheck{Name: result.Name, Passed: result.Passed, Detail: result.Detail})
	}
	return out
}
