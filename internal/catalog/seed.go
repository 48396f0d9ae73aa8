package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedEntry mirrors [Song] with YAML field names for seed files.
type seedEntry struct {
	ID         string `yaml:"id"`
	Title      string `yaml:"title"`
	Artist     string `yaml:"artist"`
	AudioURL   string `yaml:"audio_url"`
	LyricURL   string `yaml:"lyric_url"`
	Genre      string `yaml:"genre"`
	Difficulty string `yaml:"difficulty"`
	Year       int    `yaml:"year"`
}

// SeedFromFile upserts every song listed in the YAML file at path into store.
// Entries without an id or audio_url are rejected. Returns the number of songs
// written.
func SeedFromFile(ctx context.Context, store Store, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("catalog: open seed file %q: %w", path, err)
	}
	defer f.Close()

	var entries []seedEntry
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&entries); err != nil {
		return 0, fmt.Errorf("catalog: parse seed file %q: %w", path, err)
	}

	for i, e := range entries {
		if e.ID == "" {
			return 0, fmt.Errorf("catalog: seed entry %d has no id", i)
		}
		if e.AudioURL == "" {
			return 0, fmt.Errorf("catalog: seed entry %q has no audio_url", e.ID)
		}
		song := Song{
			ID:         e.ID,
			Title:      e.Title,
			Artist:     e.Artist,
			AudioURL:   e.AudioURL,
			LyricURL:   e.LyricURL,
			Genre:      e.Genre,
			Difficulty: e.Difficulty,
			Year:       e.Year,
		}
		if err := store.Put(ctx, song); err != nil {
			return 0, fmt.Errorf("catalog: seed song %q: %w", e.ID, err)
		}
	}
	return len(entries), nil
}
