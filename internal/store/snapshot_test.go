package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
)

func tempSnapshot(t *testing.T) *FileSnapshot {
	t.Helper()
	snap, err := NewFileSnapshot(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatalf("NewFileSnapshot returned error: %v", err)
	}
	return snap
}

func TestFileSnapshotRoundTrip(t *testing.T) {
	snap := tempSnapshot(t)
	completed := time.Date(2026, 2, 3, 12, 0, 1, 0, time.UTC)
	jobs := []domain.Job{
		{
			ID:        "abc123",
			Prompt:    "a red fox",
			Status:    domain.JobStatusPending,
			CreatedAt: time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC),
		},
		{
			ID:          "def456",
			Prompt:      "snowy mountain",
			Status:      domain.JobStatusComplete,
			ResultURL:   "https://x/img.jpg",
			CreatedAt:   time.Date(2026, 2, 3, 11, 0, 0, 0, time.UTC),
			CompletedAt: completed,
		},
		{
			ID:          "ghi789",
			Prompt:      "busy harbor",
			Status:      domain.JobStatusError,
			ErrorDetail: "OOM",
			CreatedAt:   time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
			CompletedAt: completed,
		},
	}

	if err := snap.Save(jobs); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	restored, err := snap.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(restored) != len(jobs) {
		t.Fatalf("restored %d records, want %d", len(restored), len(jobs))
	}
	for i, want := range jobs {
		got := restored[i]
		if got.ID != want.ID || got.Prompt != want.Prompt || got.Status != want.Status {
			t.Fatalf("record %d mismatch: got %+v want %+v", i, got, want)
		}
		if got.ResultURL != want.ResultURL || got.ErrorDetail != want.ErrorDetail {
			t.Fatalf("record %d payload mismatch: got %+v want %+v", i, got, want)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) || !got.CompletedAt.Equal(want.CompletedAt) {
			t.Fatalf("record %d timestamps mismatch: got %+v want %+v", i, got, want)
		}
	}
}

func TestFileSnapshotMissingFileIsEmpty(t *testing.T) {
	snap := tempSnapshot(t)
	jobs, err := snap.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("missing file yielded %d records", len(jobs))
	}
}

func TestCorruptSnapshotStartsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt snapshot: %v", err)
	}
	snap, err := NewFileSnapshot(path)
	if err != nil {
		t.Fatalf("NewFileSnapshot returned error: %v", err)
	}

	st := New(snap, zerolog.Nop())
	if got := len(st.List()); got != 0 {
		t.Fatalf("corrupt snapshot produced %d records, want 0", got)
	}
	// The store must still be writable after discarding the corrupt state.
	if _, err := st.Append("abc123", "a red fox"); err != nil {
		t.Fatalf("Append after corrupt load: %v", err)
	}
}

func TestFileSnapshotRequiresPath(t *testing.T) {
	if _, err := NewFileSnapshot("   "); err == nil {
		t.Fatal("expected error for blank path")
	}
}
