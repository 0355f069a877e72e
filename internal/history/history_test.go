package history

import (
	"context"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	entries := []Entry{
		{Slug: "a", Command: "python", Status: 0, Duration: 10 * time.Millisecond, StartedAt: base},
		{Slug: "b", Command: "python", Status: 1, Duration: 20 * time.Millisecond, StartedAt: base.Add(time.Second)},
		{Slug: "c", Command: "nodejs", Status: -9, Duration: 30 * time.Millisecond, StartedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].Slug != "c" || got[1].Slug != "b" {
		t.Errorf("recent order = %q, %q; want c, b (newest first)", got[0].Slug, got[1].Slug)
	}
	if got[0].Status != -9 {
		t.Errorf("status = %d, want -9", got[0].Status)
	}
	if got[0].Duration != 30*time.Millisecond {
		t.Errorf("duration = %v, want 30ms", got[0].Duration)
	}
}

func TestRecentEmptyStore(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len(got) = %d, want 0", len(got))
	}
}
