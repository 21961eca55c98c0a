package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 || result.Dirty {
		t.Errorf("version = %d dirty = %v, want 1 clean", result.Version, result.Dirty)
	}
}

func TestClaimDetectsRedelivery(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	ok, err := db.Claim(ctx, Inbound, "WAMSG1", "corr-1", "1@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("first claim should succeed")
	}

	ok, err = db.Claim(ctx, Inbound, "WAMSG1", "corr-2", "1@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("second claim of the same id should be rejected")
	}

	// Same id in the other direction is independent.
	ok, err = db.Claim(ctx, Outbound, "WAMSG1", "corr-3", "")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("claim in other direction should succeed")
	}
}

func TestCompleteAndGet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.Claim(ctx, Inbound, "WAMSG1", "corr-1", "1@s.whatsapp.net"); err != nil {
		t.Fatal(err)
	}
	if err := db.Complete(ctx, Inbound, "WAMSG1", 42, "977"); err != nil {
		t.Fatal(err)
	}

	r, err := db.GetRelay(ctx, Inbound, "WAMSG1")
	if err != nil {
		t.Fatal(err)
	}
	if r == nil {
		t.Fatal("expected relay entry")
	}
	if r.Status != "done" || r.ConversationID != 42 || r.ResultID != "977" || r.CorrelationID != "corr-1" {
		t.Errorf("unexpected entry %+v", r)
	}

	missing, err := db.GetRelay(ctx, Outbound, "WAMSG1")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("expected nil for missing entry")
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.Claim(ctx, Outbound, "55", "corr-1", ""); err != nil {
		t.Fatal(err)
	}
	if err := db.Release(ctx, Outbound, "55"); err != nil {
		t.Fatal(err)
	}
	ok, err := db.Claim(ctx, Outbound, "55", "corr-2", "")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("claim after release should succeed")
	}
}

func TestReleaseKeepsCompleted(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.Claim(ctx, Outbound, "55", "corr-1", ""); err != nil {
		t.Fatal(err)
	}
	if err := db.Complete(ctx, Outbound, "55", 1, "3EB0ABC"); err != nil {
		t.Fatal(err)
	}
	if err := db.Release(ctx, Outbound, "55"); err != nil {
		t.Fatal(err)
	}
	if r, _ := db.GetRelay(ctx, Outbound, "55"); r == nil {
		t.Error("completed entry must survive release")
	}
}

func TestSentByBridge(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.Claim(ctx, Outbound, "55", "corr-1", "1@s.whatsapp.net"); err != nil {
		t.Fatal(err)
	}
	if err := db.Complete(ctx, Outbound, "55", 9, "3EB0ABC"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		id   string
		want bool
	}{
		{"3EB0ABC", true},
		{"3EB0XYZ", false},
	}
	for _, tt := range tests {
		got, err := db.SentByBridge(ctx, tt.id)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("SentByBridge(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestPrune(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := db.Claim(ctx, Inbound, id, "c", ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.Complete(ctx, Inbound, "a", 1, "1"); err != nil {
		t.Fatal(err)
	}

	n, err := db.Prune(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("pruned %d recent rows, want 0", n)
	}

	n, err = db.Prune(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("pruned %d rows, want 2 (stale claims included)", n)
	}
	if r, _ := db.GetRelay(ctx, Inbound, "b"); r != nil {
		t.Error("stale claim should be pruned")
	}
}
