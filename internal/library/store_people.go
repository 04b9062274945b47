package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertPerson stores a person keyed by TMDB id and returns the stored row.
// Empty fields never overwrite known values.
func (s *Store) UpsertPerson(ctx context.Context, person Person) (*Person, error) {
	if person.TMDBID <= 0 {
		return nil, errors.New("person tmdb id is required")
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO people (tmdb_id, name, biography, birthday, place_of_birth, profile_path, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (tmdb_id) DO UPDATE SET
             name = CASE WHEN excluded.name != '' THEN excluded.name ELSE people.name END,
             biography = COALESCE(excluded.biography, people.biography),
             birthday = COALESCE(excluded.birthday, people.birthday),
             place_of_birth = COALESCE(excluded.place_of_birth, people.place_of_birth),
             profile_path = COALESCE(excluded.profile_path, people.profile_path),
             updated_at = excluded.updated_at`,
		person.TMDBID, person.Name, nullableString(person.Biography), nullableString(person.Birthday),
		nullableString(person.PlaceOfBirth), nullableString(person.ProfilePath), s.timestamp(),
	); err != nil {
		return nil, fmt.Errorf("upsert person: %w", err)
	}
	return s.personWhere(ctx, "tmdb_id = ?", person.TMDBID)
}

// GetPerson fetches a person by identifier. A missing row yields nil.
func (s *Store) GetPerson(ctx context.Context, id int64) (*Person, error) {
	return s.personWhere(ctx, "id = ?", id)
}

func (s *Store) personWhere(ctx context.Context, where string, arg any) (*Person, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, tmdb_id, name, biography, birthday, place_of_birth, profile_path, updated_at
         FROM people WHERE `+where, arg)
	var (
		person    Person
		bio       sql.NullString
		birthday  sql.NullString
		place     sql.NullString
		profile   sql.NullString
		updatedAt string
	)
	err := row.Scan(&person.ID, &person.TMDBID, &person.Name, &bio, &birthday, &place, &profile, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	person.Biography = bio.String
	person.Birthday = birthday.String
	person.PlaceOfBirth = place.String
	person.ProfilePath = profile.String
	if t, err := parseTimeString(updatedAt); err == nil {
		person.UpdatedAt = t
	}
	return &person, nil
}

// ReplaceCredits swaps the full credit list of a media row.
func (s *Store) ReplaceCredits(ctx context.Context, mediaID int64, credits []Credit) error {
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM credits WHERE media_id = ?`, mediaID); err != nil {
			return err
		}
		for _, credit := range credits {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO credits (media_id, person_id, role, character, job, ord)
                 VALUES (?, ?, ?, ?, ?, ?)
                 ON CONFLICT DO NOTHING`,
				mediaID, credit.PersonID, credit.Role, credit.Character, credit.Job, credit.Order,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace credits for media %d: %w", mediaID, err)
	}
	return nil
}

// Credits lists the credits of a media row in billing order.
func (s *Store) Credits(ctx context.Context, mediaID int64) ([]Credit, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT media_id, person_id, role, character, job, ord FROM credits
         WHERE media_id = ? ORDER BY role, ord, person_id`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	defer rows.Close()

	var credits []Credit
	for rows.Next() {
		var credit Credit
		if err := rows.Scan(&credit.MediaID, &credit.PersonID, &credit.Role, &credit.Character, &credit.Job, &credit.Order); err != nil {
			return nil, err
		}
		credits = append(credits, credit)
	}
	return credits, rows.Err()
}

// ReplaceFilmography swaps the known filmography of a person.
func (s *Store) ReplaceFilmography(ctx context.Context, personID int64, entries []FilmographyEntry) error {
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM filmography WHERE person_id = ?`, personID); err != nil {
			return err
		}
		for _, entry := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO filmography (person_id, tmdb_id, media_type, title, year, character, job)
                 VALUES (?, ?, ?, ?, ?, ?, ?)
                 ON CONFLICT DO NOTHING`,
				personID, entry.TMDBID, entry.MediaType, entry.Title, nullableInt(int64(entry.Year)),
				entry.Character, entry.Job,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace filmography for person %d: %w", personID, err)
	}
	return nil
}

// Filmography lists a person's titles, newest first.
func (s *Store) Filmography(ctx context.Context, personID int64) ([]FilmographyEntry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT tmdb_id, media_type, title, year, character, job FROM filmography
         WHERE person_id = ? ORDER BY year DESC, title`, personID)
	if err != nil {
		return nil, fmt.Errorf("list filmography: %w", err)
	}
	defer rows.Close()

	var entries []FilmographyEntry
	for rows.Next() {
		var (
			entry FilmographyEntry
			year  sql.NullInt64
		)
		if err := rows.Scan(&entry.TMDBID, &entry.MediaType, &entry.Title, &year, &entry.Character, &entry.Job); err != nil {
			return nil, err
		}
		entry.Year = int(year.Int64)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
