package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/profile"
)

func TestLedgerStore_LoadOnMissingFilesIsEmptyNoError(t *testing.T) {
	store := NewLedgerStore(t.TempDir())
	pool := profile.NewPool()
	pool.Add(&profile.Profile{ID: "p1"})

	if err := store.Load(pool); err != nil {
		t.Fatalf("unexpected error loading from a fresh directory: %v", err)
	}
}

func TestLedgerStore_PersistThenLoadRoundTrips(t *testing.T) {
	root := t.TempDir()
	store := NewLedgerStore(root)

	pool := profile.NewPool()
	deadline := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	pool.Add(&profile.Profile{
		ID: "p1",
		TokenUsageTotal: 4242,
		Cooldowns: map[string]time.Time{profile.GlobalScope: deadline},
	})
	pool.Add(&profile.Profile{ID: "p2", TokenUsageTotal: 10})

	if err := store.Persist(pool); err != nil {
		t.Fatalf("unexpected error persisting: %v", err)
	}

	reloaded := profile.NewPool()
	reloaded.Add(&profile.Profile{ID: "p1"})
	reloaded.Add(&profile.Profile{ID: "p2"})

	if err := store.Load(reloaded); err != nil {
		t.Fatalf("unexpected error loading: %v", err)
	}

	var p1, p2 *profile.Profile
	for _, p := range reloaded.All() {
		switch p.ID {
		case "p1":
			p1 = p
		case "p2":
			p2 = p
		}
	}
	if p1 == nil || p2 == nil {
		t.Fatal("expected both profiles to survive the round trip")
	}
	if p1.TokenUsageTotal != 4242 {
		t.Fatalf("expected token usage 4242, got %d", p1.TokenUsageTotal)
	}
	got, ok := p1.Cooldowns[profile.GlobalScope]
	if !ok {
		t.Fatal("expected global cooldown to survive the round trip")
	}
	if !got.Equal(deadline) {
		t.Fatalf("expected deadline %v, got %v", deadline, got)
	}
	if p2.TokenUsageTotal != 10 {
		t.Fatalf("expected token usage 10, got %d", p2.TokenUsageTotal)
	}
}

func TestWriteJSONAtomic_NoLeftoverTempFileOnSuccess(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "x.json")
	if err := writeJSONAtomic(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matches, err := filepath.Glob(filepath.Join(root, "*.tmp-*"))
	if err != nil {
		t.Fatalf("unexpected glob error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no leftover temp files, found %v", matches)
	}
}
