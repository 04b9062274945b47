package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"curator/internal/stage"
)

// Stats returns task counts grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// StageCounts returns task counts per stage and status.
func (s *Store) StageCounts(ctx context.Context) (map[stage.Name]map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT stage, status, COUNT(1) FROM tasks GROUP BY stage, status`)
	if err != nil {
		return nil, fmt.Errorf("stage counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[stage.Name]map[Status]int)
	for rows.Next() {
		var (
			name   stage.Name
			status Status
			count  int
		)
		if err := rows.Scan(&name, &status, &count); err != nil {
			return nil, err
		}
		if counts[name] == nil {
			counts[name] = make(map[Status]int)
		}
		counts[name][status] = count
	}
	return counts, rows.Err()
}

// Health aggregates task state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch {
		case status.Eligible():
			health.Pending += count
		case status == StatusError:
			health.Errors += count
		case status.Finished():
			health.Done += count
		}
	}
	return health, nil
}

// Ping verifies the database file exists and answers queries.
func (s *Store) Ping(ctx context.Context) error {
	if s.path == "" {
		return errors.New("library database path is unknown")
	}
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("stat library database: %w", err)
	}
	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(connCtx); err != nil {
		return fmt.Errorf("ping library database: %w", err)
	}
	return nil
}

// ResetStale flips finished tasks of the given stages that completed before
// finishedBefore back to updated. With includeErrors, failed tasks are reset
// too. It returns the number of tasks reset per stage.
func (s *Store) ResetStale(ctx context.Context, stages []stage.Name, finishedBefore time.Time, includeErrors bool) (map[stage.Name]int, error) {
	counts := make(map[stage.Name]int)
	if len(stages) == 0 {
		return counts, nil
	}
	statuses := []Status{StatusDone, StatusProcessed}
	if includeErrors {
		statuses = append(statuses, StatusError)
	}

	now := s.timestamp()
	cutoff := formatTime(finishedBefore)
	for _, name := range stages {
		args := []any{StatusUpdated, now, name, cutoff}
		for _, status := range statuses {
			args = append(args, status)
		}
		res, err := s.execWithRetry(ctx,
			`UPDATE tasks
             SET status = ?, version = version + 1, error_message = NULL,
                 finished_at = NULL, updated_at = ?
             WHERE stage = ? AND finished_at IS NOT NULL AND finished_at < ?
               AND status IN (`+makePlaceholders(len(statuses))+`)`,
			args...,
		)
		if err != nil {
			return counts, fmt.Errorf("reset stale %s tasks: %w", name, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return counts, fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			counts[name] = int(affected)
		}
	}
	return counts, nil
}

// RetryFailed moves failed tasks back to updated. An empty stage retries all
// stages. It returns the number of tasks changed.
func (s *Store) RetryFailed(ctx context.Context, name stage.Name) (int, error) {
	query := `UPDATE tasks SET status = ?, version = version + 1, error_message = NULL,
        finished_at = NULL, updated_at = ? WHERE status = ?`
	args := []any{StatusUpdated, s.timestamp(), StatusError}
	if strings.TrimSpace(string(name)) != "" {
		query += ` AND stage = ?`
		args = append(args, name)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}
