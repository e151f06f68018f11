package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/maniack/logpurge/internal/logging"
	"github.com/maniack/logpurge/internal/purge"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logging.Init(false, false)
	s, err := Open(filepath.Join(t.TempDir(), "history.db"), "/var/log/app")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC)

	passes := []purge.PassResult{
		{ID: "00000000-0000-0000-0000-000000000001", Trigger: purge.TriggerStartup, StartedAt: base, FinishedAt: base.Add(time.Second), Scanned: 5, Deleted: 5},
		{ID: "00000000-0000-0000-0000-000000000002", Trigger: purge.TriggerTick, StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour), Scanned: 2, Deleted: 1, Failed: 1},
		{ID: "00000000-0000-0000-0000-000000000003", Trigger: purge.TriggerTick, StartedAt: base.Add(2 * time.Hour), FinishedAt: base.Add(2 * time.Hour), Err: errors.New("dir gone")},
	}
	for _, p := range passes {
		if err := s.RecordPass(ctx, p); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs", len(runs))
	}
	if runs[0].ID != passes[2].ID || runs[0].Outcome != "scan_error" || runs[0].Error != "dir gone" {
		t.Fatalf("newest run = %+v", runs[0])
	}
	if runs[1].Outcome != "partial" || runs[2].Outcome != "ok" || runs[2].Trigger != "startup" {
		t.Fatalf("unexpected outcomes: %+v", runs)
	}
	if runs[2].Dir != "/var/log/app" {
		t.Fatalf("dir = %q", runs[2].Dir)
	}

	limited, err := s.ListRuns(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit: %v, %d runs", err, len(limited))
	}
}

func TestPruneRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	old := purge.PassResult{ID: "00000000-0000-0000-0000-00000000000a", Trigger: purge.TriggerTick, StartedAt: now.Add(-48 * time.Hour), FinishedAt: now.Add(-48 * time.Hour)}
	fresh := purge.PassResult{ID: "00000000-0000-0000-0000-00000000000b", Trigger: purge.TriggerTick, StartedAt: now, FinishedAt: now}
	for _, p := range []purge.PassResult{old, fresh} {
		if err := s.RecordPass(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.PruneRuns(now.Add(-24 * time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("pruned %d, err %v", n, err)
	}
	runs, _ := s.ListRuns(ctx, 10)
	if len(runs) != 1 || runs[0].ID != fresh.ID {
		t.Fatalf("remaining = %+v", runs)
	}
}

func TestIsPostgresDSN(t *testing.T) {
	cases := map[string]bool{
		"postgres://u:p@db:5432/logs": true,
		"host=db user=u dbname=logs":  true,
		"history.db":                  false,
		"file::memory:?cache=shared":  false,
		"  POSTGRESQL://db/logs ":     true,
	}
	for dsn, want := range cases {
		if got := isPostgresDSN(dsn); got != want {
			t.Errorf("isPostgresDSN(%q) = %v", dsn, got)
		}
	}
}

func TestStoreIsRecorder(t *testing.T) {
	var _ purge.Recorder = (*Store)(nil)
}
