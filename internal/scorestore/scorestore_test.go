package scorestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/cadenza-audio/cadenza/internal/scorestore"
)

func TestMemoryStore_SaveAssignsIDs(t *testing.T) {
	t.Parallel()

	store := scorestore.NewMemoryStore()
	ctx := context.Background()

	a := &scorestore.Performance{SongID: "sng-1", Score: 80}
	b := &scorestore.Performance{SongID: "sng-1", Score: 90}
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if a.ID == 0 || b.ID == 0 || a.ID == b.ID {
		t.Errorf("ids = %d, %d, want distinct non-zero", a.ID, b.ID)
	}
	if a.SungAt.IsZero() {
		t.Error("SungAt not defaulted on save")
	}
}

func TestMemoryStore_BySongOrdersByScore(t *testing.T) {
	t.Parallel()

	store := scorestore.NewMemoryStore()
	ctx := context.Background()

	for _, p := range []scorestore.Performance{
		{SongID: "sng-1", Score: 70},
		{SongID: "sng-1", Score: 95},
		{SongID: "sng-2", Score: 99},
		{SongID: "sng-1", Score: 85},
	} {
		p := p
		if err := store.Save(ctx, &p); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := store.BySong(ctx, "sng-1", 2)
	if err != nil {
		t.Fatalf("BySong: %v", err)
	}
	if len(got) != 2 || got[0].Score != 95 || got[1].Score != 85 {
		t.Errorf("BySong = %+v, want top scores 95, 85", got)
	}
}

func TestMemoryStore_RecentOrdersByTime(t *testing.T) {
	t.Parallel()

	store := scorestore.NewMemoryStore()
	ctx := context.Background()

	old := &scorestore.Performance{SongID: "a", SungAt: time.Now().Add(-time.Hour)}
	fresh := &scorestore.Performance{SongID: "b", SungAt: time.Now()}
	if err := store.Save(ctx, old); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, fresh); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].SongID != "b" {
		t.Errorf("Recent = %+v, want newest first", got)
	}
}
