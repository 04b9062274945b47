package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const mediaColumns = `id, path, kind, title, year, season, episode, tmdb_id, imdb_id, overview,
    duration_seconds, width, height, video_codec, audio_codecs, container, size_bytes, probed_at,
    watched, watched_at, created_at, updated_at`

// UpsertMedia returns the media row for path, creating it when absent.
func (s *Store) UpsertMedia(ctx context.Context, path string, kind MediaKind) (*Media, error) {
	if path == "" {
		return nil, errors.New("media path is required")
	}
	if kind == "" {
		kind = MediaMovie
	}
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO media (path, kind, created_at, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT (path) DO NOTHING`,
		path, kind, now, now,
	); err != nil {
		return nil, fmt.Errorf("upsert media: %w", err)
	}
	media, err := s.MediaByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if media == nil {
		return nil, fmt.Errorf("media %q vanished after insert", path)
	}
	return media, nil
}

// GetMedia fetches a media row by identifier. A missing row yields nil.
func (s *Store) GetMedia(ctx context.Context, id int64) (*Media, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	media, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return media, nil
}

// MediaByPath fetches a media row by file path. A missing row yields nil.
func (s *Store) MediaByPath(ctx context.Context, path string) (*Media, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+mediaColumns+` FROM media WHERE path = ?`, path)
	media, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("media by path: %w", err)
	}
	return media, nil
}

// MediaInDir lists media rows whose file lives directly in dir.
func (s *Store) MediaInDir(ctx context.Context, dir string) ([]*Media, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+mediaColumns+` FROM media WHERE path LIKE ? ESCAPE '\' ORDER BY path`,
		escapeLike(dir)+"/%",
	)
	if err != nil {
		return nil, fmt.Errorf("media in dir: %w", err)
	}
	defer rows.Close()

	var list []*Media
	for rows.Next() {
		media, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		if parentDir(media.Path) == dir {
			list = append(list, media)
		}
	}
	return list, rows.Err()
}

// UpdateMediaInfo stores the probed technical description.
func (s *Store) UpdateMediaInfo(ctx context.Context, id int64, info MediaInfo) error {
	probed := info.ProbedAt
	if probed == nil {
		now := s.now()
		probed = &now
	}
	if _, err := s.execWithRetry(ctx,
		`UPDATE media SET duration_seconds = ?, width = ?, height = ?, video_codec = ?,
             audio_codecs = ?, container = ?, size_bytes = ?, probed_at = ?, updated_at = ?
         WHERE id = ?`,
		info.DurationSeconds, info.Width, info.Height, nullableString(info.VideoCodec),
		nullableString(info.AudioCodecs), nullableString(info.Container), info.SizeBytes,
		nullableTime(probed), s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("update media info: %w", err)
	}
	return nil
}

// UpdateMediaMetadata stores descriptive metadata. Zero fields in meta keep
// the stored values so an nfo id survives a later filename-only pass.
func (s *Store) UpdateMediaMetadata(ctx context.Context, id int64, meta MediaMetadata) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE media SET
             kind = COALESCE(?, kind),
             title = COALESCE(?, title),
             year = COALESCE(?, year),
             season = COALESCE(?, season),
             episode = COALESCE(?, episode),
             tmdb_id = COALESCE(?, tmdb_id),
             imdb_id = COALESCE(?, imdb_id),
             overview = COALESCE(?, overview),
             updated_at = ?
         WHERE id = ?`,
		nullableString(string(meta.Kind)), nullableString(meta.Title), nullableInt(int64(meta.Year)),
		nullableInt(int64(meta.Season)), nullableInt(int64(meta.Episode)), nullableInt(meta.TMDBID),
		nullableString(meta.IMDbID), nullableString(meta.Overview), s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("update media metadata: %w", err)
	}
	return nil
}

// SetWatched flags a media row as watched at the given time.
func (s *Store) SetWatched(ctx context.Context, id int64, at time.Time) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE media SET watched = 1, watched_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("set watched: %w", err)
	}
	return nil
}

// DeleteMedia removes a media row together with its subtitles, credits,
// trailers and artwork.
func (s *Store) DeleteMedia(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM artwork WHERE owner_type = ? AND owner_id = ?`, OwnerMedia, id); err != nil {
			return err
		}
		for _, table := range []string{"subtitles", "credits", "trailers"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE media_id = ?`, id); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete media %d: %w", id, err)
	}
	return nil
}

// AddSubtitle attaches a subtitle file to a media row.
func (s *Store) AddSubtitle(ctx context.Context, sub Subtitle) error {
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO subtitles (media_id, path, language, forced) VALUES (?, ?, ?, ?)
         ON CONFLICT (path) DO UPDATE SET media_id = excluded.media_id,
             language = excluded.language, forced = excluded.forced`,
		sub.MediaID, sub.Path, nullableString(sub.Language), boolToInt(sub.Forced),
	); err != nil {
		return fmt.Errorf("add subtitle: %w", err)
	}
	return nil
}

// Subtitles lists the subtitles attached to a media row.
func (s *Store) Subtitles(ctx context.Context, mediaID int64) ([]Subtitle, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, media_id, path, language, forced FROM subtitles WHERE media_id = ? ORDER BY path`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list subtitles: %w", err)
	}
	defer rows.Close()

	var subs []Subtitle
	for rows.Next() {
		var (
			sub    Subtitle
			lang   sql.NullString
			forced int
		)
		if err := rows.Scan(&sub.ID, &sub.MediaID, &sub.Path, &lang, &forced); err != nil {
			return nil, err
		}
		sub.Language = lang.String
		sub.Forced = forced != 0
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubtitle removes a subtitle by path and reports whether a row existed.
func (s *Store) DeleteSubtitle(ctx context.Context, path string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM subtitles WHERE path = ?`, path)
	if err != nil {
		return false, fmt.Errorf("delete subtitle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanMedia(scanner rowScanner) (*Media, error) {
	var (
		media      Media
		title      sql.NullString
		year       sql.NullInt64
		season     sql.NullInt64
		episode    sql.NullInt64
		tmdbID     sql.NullInt64
		imdbID     sql.NullString
		overview   sql.NullString
		duration   sql.NullFloat64
		width      sql.NullInt64
		height     sql.NullInt64
		videoCodec sql.NullString
		audio      sql.NullString
		container  sql.NullString
		size       sql.NullInt64
		probedAt   sql.NullString
		watched    int
		watchedAt  sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := scanner.Scan(
		&media.ID, &media.Path, &media.Kind, &title, &year, &season, &episode, &tmdbID, &imdbID, &overview,
		&duration, &width, &height, &videoCodec, &audio, &container, &size, &probedAt,
		&watched, &watchedAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	media.Title = title.String
	media.Year = int(year.Int64)
	media.Season = int(season.Int64)
	media.Episode = int(episode.Int64)
	media.TMDBID = tmdbID.Int64
	media.IMDbID = imdbID.String
	media.Overview = overview.String
	media.Info = MediaInfo{
		DurationSeconds: duration.Float64,
		Width:           int(width.Int64),
		Height:          int(height.Int64),
		VideoCodec:      videoCodec.String,
		AudioCodecs:     audio.String,
		Container:       container.String,
		SizeBytes:       size.Int64,
		ProbedAt:        parseNullTime(probedAt),
	}
	media.Watched = watched != 0
	media.WatchedAt = parseNullTime(watchedAt)
	if t, err := parseTimeString(createdAt); err == nil {
		media.CreatedAt = t
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		media.UpdatedAt = t
	}
	return &media, nil
}
