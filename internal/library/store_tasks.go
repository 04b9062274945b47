package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"curator/internal/services"
	"curator/internal/stage"
)

const taskColumns = `id, stage, domain, subtype, ref, status, version, attempts,
    error_message, created_at, updated_at, finished_at`

// EnqueueTask records pending work for a stage. A new ref is inserted with
// status new. A ref that is already pending keeps its status and position but
// has its version bumped, so an in-flight run of the stale version conflicts.
// A ref in any other status is flipped back to updated.
func (s *Store) EnqueueTask(ctx context.Context, spec TaskSpec) (*Task, error) {
	if !spec.Stage.Valid() {
		return nil, fmt.Errorf("%w: unknown stage %q", services.ErrValidation, spec.Stage)
	}
	if strings.TrimSpace(spec.Ref) == "" {
		return nil, fmt.Errorf("%w: task ref is required", services.ErrValidation)
	}
	ctx = ensureContext(ctx)

	var task *Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		row := tx.QueryRowContext(ctx,
			`INSERT INTO tasks (stage, domain, subtype, ref, status, version, attempts, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, 1, 0, ?, ?)
             ON CONFLICT (stage, ref) DO UPDATE SET
                 domain = excluded.domain,
                 subtype = excluded.subtype,
                 version = tasks.version + 1,
                 status = CASE WHEN tasks.status IN (?, ?) THEN tasks.status ELSE ? END,
                 updated_at = CASE WHEN tasks.status IN (?, ?) THEN tasks.updated_at ELSE excluded.updated_at END,
                 error_message = CASE WHEN tasks.status IN (?, ?) THEN tasks.error_message ELSE NULL END,
                 finished_at = CASE WHEN tasks.status IN (?, ?) THEN tasks.finished_at ELSE NULL END
             RETURNING `+taskColumns,
			spec.Stage, spec.Domain, spec.Subtype, spec.Ref, StatusNew, now, now,
			StatusNew, StatusUpdated, StatusUpdated,
			StatusNew, StatusUpdated,
			StatusNew, StatusUpdated,
			StatusNew, StatusUpdated,
		)
		scanned, err := scanTask(row)
		if err != nil {
			return err
		}
		task = scanned
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s task %q: %w", spec.Stage, spec.Ref, err)
	}
	return task, nil
}

// EnsureTask inserts a new task unless the stage already tracks ref, in
// whatever status. It reports whether a task was created.
func (s *Store) EnsureTask(ctx context.Context, spec TaskSpec) (bool, error) {
	if !spec.Stage.Valid() {
		return false, fmt.Errorf("%w: unknown stage %q", services.ErrValidation, spec.Stage)
	}
	if strings.TrimSpace(spec.Ref) == "" {
		return false, fmt.Errorf("%w: task ref is required", services.ErrValidation)
	}
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO tasks (stage, domain, subtype, ref, status, version, attempts, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, 1, 0, ?, ?)
         ON CONFLICT (stage, ref) DO NOTHING`,
		spec.Stage, spec.Domain, spec.Subtype, spec.Ref, StatusNew, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("ensure %s task %q: %w", spec.Stage, spec.Ref, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// FetchEligible returns at most limit pending tasks of a stage, oldest first.
func (s *Store) FetchEligible(ctx context.Context, name stage.Name, limit int) (stage.Batch, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx = ensureContext(ctx)
	var batch stage.Batch
	err := retryOnBusy(ctx, func() error {
		batch = batch[:0]
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+taskColumns+` FROM tasks
             WHERE stage = ? AND status IN (?, ?)
             ORDER BY updated_at, id
             LIMIT ?`,
			name, StatusNew, StatusUpdated, limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return err
			}
			batch = append(batch, task.WorkItem())
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s tasks: %w", name, err)
	}
	return batch, nil
}

// Source exposes the pending tasks of one stage to the scheduler.
func (s *Store) Source(name stage.Name) stage.Source {
	return stage.SourceFunc(func(ctx context.Context, maxResults int) (stage.Batch, error) {
		return s.FetchEligible(ctx, name, maxResults)
	})
}

// CompleteTask moves a task to a finished status. The update only applies
// when the stored version still equals version; otherwise the task changed
// underneath the run and ErrConflict is returned with the task untouched.
func (s *Store) CompleteTask(ctx context.Context, id, version int64, status Status) error {
	switch status {
	case StatusDone, StatusProcessed, StatusInvalid, StatusDeleted, StatusMissing:
	default:
		return fmt.Errorf("%w: %q is not a completion status", services.ErrValidation, status)
	}
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks
         SET status = ?, attempts = attempts + 1, error_message = NULL,
             updated_at = ?, finished_at = ?
         WHERE id = ? AND version = ?`,
		status, now, now, id, version,
	)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	return s.checkVersioned(ctx, res, id)
}

// FailTask records a hard failure. Like CompleteTask it is version-checked.
func (s *Store) FailTask(ctx context.Context, id, version int64, cause error) error {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks
         SET status = ?, attempts = attempts + 1, error_message = ?,
             updated_at = ?, finished_at = ?
         WHERE id = ? AND version = ?`,
		StatusError, message, now, now, id, version,
	)
	if err != nil {
		return fmt.Errorf("fail task %d: %w", id, err)
	}
	return s.checkVersioned(ctx, res, id)
}

func (s *Store) checkVersioned(ctx context.Context, res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("%w: task %d", services.ErrNotFound, id)
	}
	return fmt.Errorf("%w: task %d changed (now version %d)", services.ErrConflict, id, task.Version)
}

// GetTask fetches a task by identifier. A missing task yields nil without error.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// FindTask looks a task up by its stage and ref.
func (s *Store) FindTask(ctx context.Context, name stage.Name, ref string) (*Task, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+taskColumns+` FROM tasks WHERE stage = ? AND ref = ?`, name, ref)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks matching the filter, most recently updated first.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Stage != "" {
		clauses = append(clauses, "stage = ?")
		args = append(args, filter.Stage)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY updated_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// MarkMissing flags every task whose ref is one of refs as missing. Tasks of
// the deletion stage are left alone. It returns the number of rows changed.
func (s *Store) MarkMissing(ctx context.Context, refs []string) (int, error) {
	if len(refs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(refs)+4)
	args = append(args, StatusMissing, s.timestamp(), stage.Deletion, StatusMissing)
	for _, ref := range refs {
		args = append(args, ref)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, version = version + 1, updated_at = ?
         WHERE stage != ? AND status != ? AND ref IN (`+makePlaceholders(len(refs))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("mark missing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func scanTask(scanner rowScanner) (*Task, error) {
	var (
		task       Task
		errMsg     sql.NullString
		createdAt  string
		updatedAt  string
		finishedAt sql.NullString
	)
	if err := scanner.Scan(
		&task.ID,
		&task.Stage,
		&task.Domain,
		&task.Subtype,
		&task.Ref,
		&task.Status,
		&task.Version,
		&task.Attempts,
		&errMsg,
		&createdAt,
		&updatedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}
	task.ErrorMessage = errMsg.String
	if t, err := parseTimeString(createdAt); err == nil {
		task.CreatedAt = t
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		task.UpdatedAt = t
	}
	task.FinishedAt = parseNullTime(finishedAt)
	return &task, nil
}
