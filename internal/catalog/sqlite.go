package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS songs (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	artist     TEXT NOT NULL,
	audio_url  TEXT NOT NULL,
	lyric_url  TEXT NOT NULL DEFAULT '',
	genre      TEXT NOT NULL DEFAULT '',
	difficulty TEXT NOT NULL DEFAULT '',
	year       INTEGER NOT NULL DEFAULT 0
);`

// SQLiteStore is a [Store] backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (and creates, if needed) the catalog database at path.
// Use ":memory:" for an ephemeral catalog.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Song(ctx context.Context, id string) (Song, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, artist, audio_url, lyric_url, genre, difficulty, year
		 FROM songs WHERE id = ?`, id)

	var song Song
	err := row.Scan(&song.ID, &song.Title, &song.Artist, &song.AudioURL,
		&song.LyricURL, &song.Genre, &song.Difficulty, &song.Year)
	if errors.Is(err, sql.ErrNoRows) {
		return Song{}, ErrNotFound
	}
	if err != nil {
		return Song{}, fmt.Errorf("catalog: query song %s: %w", id, err)
	}
	return song, nil
}

func (s *SQLiteStore) Songs(ctx context.Context) ([]Song, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, artist, audio_url, lyric_url, genre, difficulty, year
		 FROM songs ORDER BY artist, title`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list songs: %w", err)
	}
	defer rows.Close()

	var out []Song
	for rows.Next() {
		var song Song
		if err := rows.Scan(&song.ID, &song.Title, &song.Artist, &song.AudioURL,
			&song.LyricURL, &song.Genre, &song.Difficulty, &song.Year); err != nil {
			return nil, fmt.Errorf("catalog: scan song: %w", err)
		}
		out = append(out, song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list songs: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Put(ctx context.Context, song Song) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO songs (id, title, artist, audio_url, lyric_url, genre, difficulty, year)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			audio_url = excluded.audio_url,
			lyric_url = excluded.lyric_url,
			genre = excluded.genre,
			difficulty = excluded.difficulty,
			year = excluded.year`,
		song.ID, song.Title, song.Artist, song.AudioURL, song.LyricURL,
		song.Genre, song.Difficulty, song.Year)
	if err != nil {
		return fmt.Errorf("catalog: put song %s: %w", song.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
