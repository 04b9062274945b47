package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RecordFile stores what staging observed for a path. It reports whether the
// path is new or its size or modification time changed since the last scan.
func (s *Store) RecordFile(ctx context.Context, file FileRecord) (bool, error) {
	ctx = ensureContext(ctx)
	changed := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			size    int64
			modTime string
		)
		err := tx.QueryRowContext(ctx, `SELECT size, mod_time FROM files WHERE path = ?`, file.Path).Scan(&size, &modTime)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			changed = true
		case err != nil:
			return err
		default:
			changed = size != file.Size || modTime != formatTime(file.ModTime)
		}
		seen := file.SeenAt
		if seen.IsZero() {
			seen = s.now()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO files (path, root, type, size, mod_time, seen_at) VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT (path) DO UPDATE SET root = excluded.root, type = excluded.type,
                 size = excluded.size, mod_time = excluded.mod_time, seen_at = excluded.seen_at`,
			file.Path, file.Root, file.Type, file.Size, formatTime(file.ModTime), formatTime(seen),
		)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("record file %q: %w", file.Path, err)
	}
	return changed, nil
}

// FilesUnder lists the recorded files of a library root.
func (s *Store) FilesUnder(ctx context.Context, root string) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT path, root, type, size, mod_time, seen_at FROM files WHERE root = ? ORDER BY path`, root)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var (
			file    FileRecord
			modTime string
			seenAt  string
		)
		if err := rows.Scan(&file.Path, &file.Root, &file.Type, &file.Size, &modTime, &seenAt); err != nil {
			return nil, err
		}
		if t, err := parseTimeString(modTime); err == nil {
			file.ModTime = t
		}
		if t, err := parseTimeString(seenAt); err == nil {
			file.SeenAt = t
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// GetFile fetches the record of a single path. A missing path yields nil.
func (s *Store) GetFile(ctx context.Context, path string) (*FileRecord, error) {
	var (
		file    FileRecord
		modTime string
		seenAt  string
	)
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT path, root, type, size, mod_time, seen_at FROM files WHERE path = ?`, path,
	).Scan(&file.Path, &file.Root, &file.Type, &file.Size, &modTime, &seenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if t, err := parseTimeString(modTime); err == nil {
		file.ModTime = t
	}
	if t, err := parseTimeString(seenAt); err == nil {
		file.SeenAt = t
	}
	return &file, nil
}

// ForgetFile drops the record of a path that no longer exists.
func (s *Store) ForgetFile(ctx context.Context, path string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("forget file: %w", err)
	}
	return nil
}
