package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const artworkColumns = `id, owner_type, owner_id, kind, source, remote_path, local_path, language,
    width, height, downloaded, updated_at`

// UpsertArtwork records an image for an owner and returns the stored row.
// Local artwork is keyed by owner and kind; remote artwork also by its path.
func (s *Store) UpsertArtwork(ctx context.Context, art Artwork) (*Artwork, error) {
	if art.OwnerType == "" || art.OwnerID <= 0 || art.Kind == "" || art.Source == "" {
		return nil, errors.New("artwork owner, kind and source are required")
	}
	var stored *Artwork
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`INSERT INTO artwork (owner_type, owner_id, kind, source, remote_path, local_path, language,
                 width, height, downloaded, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT (owner_type, owner_id, kind, source, remote_path) DO UPDATE SET
                 local_path = COALESCE(excluded.local_path, artwork.local_path),
                 language = COALESCE(excluded.language, artwork.language),
                 width = excluded.width,
                 height = excluded.height,
                 downloaded = MAX(excluded.downloaded, artwork.downloaded),
                 updated_at = excluded.updated_at
             RETURNING `+artworkColumns,
			art.OwnerType, art.OwnerID, art.Kind, art.Source, art.RemotePath, nullableString(art.LocalPath),
			nullableString(art.Language), art.Width, art.Height, boolToInt(art.Downloaded), s.timestamp(),
		)
		scanned, err := scanArtwork(row)
		if err != nil {
			return err
		}
		stored = scanned
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert artwork: %w", err)
	}
	return stored, nil
}

// GetArtwork fetches artwork by identifier. A missing row yields nil.
func (s *Store) GetArtwork(ctx context.Context, id int64) (*Artwork, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+artworkColumns+` FROM artwork WHERE id = ?`, id)
	art, err := scanArtwork(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artwork: %w", err)
	}
	return art, nil
}

// ArtworkFor lists the artwork of an owner.
func (s *Store) ArtworkFor(ctx context.Context, ownerType string, ownerID int64) ([]*Artwork, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+artworkColumns+` FROM artwork WHERE owner_type = ? AND owner_id = ? ORDER BY kind, id`,
		ownerType, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list artwork: %w", err)
	}
	defer rows.Close()

	var list []*Artwork
	for rows.Next() {
		art, err := scanArtwork(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, art)
	}
	return list, rows.Err()
}

// MarkArtworkDownloaded records the local copy of a remote image.
func (s *Store) MarkArtworkDownloaded(ctx context.Context, id int64, localPath string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE artwork SET local_path = ?, downloaded = 1, updated_at = ? WHERE id = ?`,
		localPath, s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("mark artwork downloaded: %w", err)
	}
	return nil
}

// DeleteLocalArtwork removes local artwork rows pointing at path.
func (s *Store) DeleteLocalArtwork(ctx context.Context, path string) (int, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM artwork WHERE source = ? AND local_path = ?`, ArtworkLocal, path)
	if err != nil {
		return 0, fmt.Errorf("delete local artwork: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func scanArtwork(scanner rowScanner) (*Artwork, error) {
	var (
		art        Artwork
		localPath  sql.NullString
		language   sql.NullString
		width      sql.NullInt64
		height     sql.NullInt64
		downloaded int
		updatedAt  string
	)
	if err := scanner.Scan(
		&art.ID, &art.OwnerType, &art.OwnerID, &art.Kind, &art.Source, &art.RemotePath,
		&localPath, &language, &width, &height, &downloaded, &updatedAt,
	); err != nil {
		return nil, err
	}
	art.LocalPath = localPath.String
	art.Language = language.String
	art.Width = int(width.Int64)
	art.Height = int(height.Int64)
	art.Downloaded = downloaded != 0
	if t, err := parseTimeString(updatedAt); err == nil {
		art.UpdatedAt = t
	}
	return &art, nil
}
