package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"botkit/pkg/logx"
)

func openTestRecorder(t *testing.T) Recorder {
	t.Helper()
	cfg := Config{
		Enabled:     true,
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		BusyTimeout: time.Second,
	}
	r, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestAppendRecentRoundTrip(t *testing.T) {
	t.Parallel()
	r := openTestRecorder(t)
	ctx := context.Background()

	recs := []Record{
		{Kind: "task", Name: "cleanup", OK: true, TookMS: 12},
		{Kind: "dispatch", Name: "ping", ChatID: 100, FromID: 200, OK: true, TookMS: 3},
		{Kind: "dispatch", Name: "purge", ChatID: 100, FromID: 200, OK: false, Error: "scope violation", TookMS: 1},
	}
	for _, rec := range recs {
		if err := r.Append(ctx, rec); err != nil {
			t.Fatalf("Append(%s): %v", rec.Name, err)
		}
	}

	got, err := r.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != len(recs) {
		t.Fatalf("Recent returned %d records, want %d", len(got), len(recs))
	}
	// Newest first.
	if got[0].Name != "purge" || got[0].OK || got[0].Error != "scope violation" {
		t.Fatalf("newest record = %+v", got[0])
	}
	if got[2].Name != "cleanup" || !got[2].OK || got[2].Error != "" {
		t.Fatalf("oldest record = %+v", got[2])
	}
	if got[0].At.IsZero() {
		t.Fatalf("timestamp not persisted")
	}
}

func TestRecentHonorsLimit(t *testing.T) {
	t.Parallel()
	r := openTestRecorder(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := r.Append(ctx, Record{Kind: "task", Name: "tick", OK: true}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err := r.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent(3) returned %d records", len(got))
	}
}

func TestDisabledConfigYieldsNop(t *testing.T) {
	t.Parallel()
	r, err := Open(Config{Enabled: false}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.Append(context.Background(), Record{Kind: "task"}); err != nil {
		t.Fatalf("Append on nop = %v, want nil (drops silently)", err)
	}
	if recs, err := r.Recent(context.Background(), 5); err != nil || len(recs) != 0 {
		t.Fatalf("Recent on nop = %v, %v", recs, err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close on nop: %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Enabled: true}, logx.Nop()); err == nil {
		t.Fatalf("Open accepted an enabled config without a path")
	}
}
