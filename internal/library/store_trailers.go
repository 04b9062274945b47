package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const trailerColumns = `id, media_id, site, key, name, url, available, checked_at`

// UpsertTrailer records a trailer of a media row and returns the stored row.
func (s *Store) UpsertTrailer(ctx context.Context, trailer Trailer) (*Trailer, error) {
	if trailer.MediaID <= 0 || trailer.Site == "" || trailer.Key == "" {
		return nil, errors.New("trailer media, site and key are required")
	}
	ctx = ensureContext(ctx)
	var stored *Trailer
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`INSERT INTO trailers (media_id, site, key, name, url) VALUES (?, ?, ?, ?, ?)
             ON CONFLICT (media_id, site, key) DO UPDATE SET
                 name = excluded.name, url = excluded.url
             RETURNING `+trailerColumns,
			trailer.MediaID, trailer.Site, trailer.Key, nullableString(trailer.Name), nullableString(trailer.URL),
		)
		scanned, err := scanTrailer(row)
		if err != nil {
			return err
		}
		stored = scanned
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert trailer: %w", err)
	}
	return stored, nil
}

// GetTrailer fetches a trailer by identifier. A missing row yields nil.
func (s *Store) GetTrailer(ctx context.Context, id int64) (*Trailer, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+trailerColumns+` FROM trailers WHERE id = ?`, id)
	trailer, err := scanTrailer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trailer: %w", err)
	}
	return trailer, nil
}

// Trailers lists the trailers of a media row.
func (s *Store) Trailers(ctx context.Context, mediaID int64) ([]*Trailer, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+trailerColumns+` FROM trailers WHERE media_id = ? ORDER BY id`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list trailers: %w", err)
	}
	defer rows.Close()

	var list []*Trailer
	for rows.Next() {
		trailer, err := scanTrailer(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, trailer)
	}
	return list, rows.Err()
}

// SetTrailerAvailability records the outcome of an availability check.
func (s *Store) SetTrailerAvailability(ctx context.Context, id int64, available bool, at time.Time) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE trailers SET available = ?, checked_at = ? WHERE id = ?`,
		boolToInt(available), formatTime(at), id,
	); err != nil {
		return fmt.Errorf("set trailer availability: %w", err)
	}
	return nil
}

func scanTrailer(scanner rowScanner) (*Trailer, error) {
	var (
		trailer   Trailer
		name      sql.NullString
		url       sql.NullString
		available int
		checkedAt sql.NullString
	)
	if err := scanner.Scan(&trailer.ID, &trailer.MediaID, &trailer.Site, &trailer.Key, &name, &url, &available, &checkedAt); err != nil {
		return nil, err
	}
	trailer.Name = name.String
	trailer.URL = url.String
	trailer.Available = available != 0
	trailer.CheckedAt = parseNullTime(checkedAt)
	return &trailer, nil
}
