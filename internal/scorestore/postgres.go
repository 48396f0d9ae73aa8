package scorestore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlPerformances = `
CREATE TABLE IF NOT EXISTS performances (
    id            BIGSERIAL   PRIMARY KEY,
    song_id       TEXT        NOT NULL,
    score         INTEGER     NOT NULL,
    accuracy      INTEGER     NOT NULL,
    timing        INTEGER     NOT NULL,
    pitch         INTEGER     NOT NULL,
    best_streak   INTEGER     NOT NULL DEFAULT 0,
    perfect_notes INTEGER     NOT NULL DEFAULT 0,
    segments      INTEGER     NOT NULL DEFAULT 0,
    sung_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_performances_song_score
    ON performances (song_id, score DESC);

CREATE INDEX IF NOT EXISTS idx_performances_sung_at
    ON performances (sung_at DESC);`

// PostgresStore is a [Store] backed by a PostgreSQL performances table.
//
// All methods are safe for concurrent use; the pgx pool handles connection
// management.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database at dsn, verifies the connection,
// and ensures the performances table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("score store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("score store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlPerformances); err != nil {
		pool.Close()
		return nil, fmt.Errorf("score store: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Save(ctx context.Context, p *Performance) error {
	const q = `
		INSERT INTO performances
		    (song_id, score, accuracy, timing, pitch, best_streak, perfect_notes, segments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, sung_at`

	err := s.pool.QueryRow(ctx, q,
		p.SongID, p.Score, p.Accuracy, p.Timing, p.Pitch,
		p.BestStreak, p.PerfectNotes, p.Segments,
	).Scan(&p.ID, &p.SungAt)
	if err != nil {
		return fmt.Errorf("score store: save performance: %w", err)
	}
	return nil
}

func (s *PostgresStore) BySong(ctx context.Context, songID string, limit int) ([]Performance, error) {
	const q = `
		SELECT id, song_id, score, accuracy, timing, pitch,
		       best_streak, perfect_notes, segments, sung_at
		FROM   performances
		WHERE  song_id = $1
		ORDER  BY score DESC, sung_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, songID, limit)
	if err != nil {
		return nil, fmt.Errorf("score store: by song: %w", err)
	}
	return collectPerformances(rows)
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Performance, error) {
	const q = `
		SELECT id, song_id, score, accuracy, timing, pitch,
		       best_streak, perfect_notes, segments, sung_at
		FROM   performances
		ORDER  BY sung_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("score store: recent: %w", err)
	}
	return collectPerformances(rows)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

func collectPerformances(rows rowScanner) ([]Performance, error) {
	defer rows.Close()

	var out []Performance
	for rows.Next() {
		var p Performance
		if err := rows.Scan(&p.ID, &p.SongID, &p.Score, &p.Accuracy, &p.Timing,
			&p.Pitch, &p.BestStreak, &p.PerfectNotes, &p.Segments, &p.SungAt); err != nil {
			return nil, fmt.Errorf("score store: scan performance: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("score store: iterate performances: %w", err)
	}
	return out, nil
}
