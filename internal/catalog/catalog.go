// Package catalog stores the song library: the metadata and media locations
// a session needs to load a track for playback and scoring.
package catalog

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested song id is not in the catalog.
var ErrNotFound = errors.New("catalog: song not found")

// Song is one catalog entry. AudioURL and LyricURL point at the media files,
// as http(s) URLs or local paths.
type Song struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	AudioURL   string `json:"audioUrl"`
	LyricURL   string `json:"lyricUrl"`
	Genre      string `json:"genre,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Year       int    `json:"year,omitempty"`
}

// Store is the song library. Implementations must be safe for concurrent
// use.
type Store interface {
	// Song returns the entry with the given id, or [ErrNotFound].
	Song(ctx context.Context, id string) (Song, error)

	// Songs lists all entries ordered by artist, then title.
	Songs(ctx context.Context) ([]Song, error)

	// Put inserts or replaces an entry.
	Put(ctx context.Context, s Song) error

	// Close releases the underlying storage.
	Close() error
}
