package lock

import (
	"errors"
	"os"
	"testing"
	"time"
)

func TestAcquireAndRelease(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir, 7)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	info, err := Inspect(tmpDir)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.PID != os.Getpid() || info.InboxID != 7 {
		t.Errorf("holder = %+v, want pid %d inbox 7", info, os.Getpid())
	}
	if time.Since(info.Acquired) > time.Minute {
		t.Errorf("acquired = %v, want recent", info.Acquired)
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, err := os.Stat(Path(tmpDir)); !os.IsNotExist(err) {
		t.Error("lock file should be removed on release")
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	tmpDir := t.TempDir()

	l1, err := Acquire(tmpDir, 7)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(tmpDir, 8)
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}

	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected HeldError, got %T: %v", err, err)
	}
	if held.Holder.PID != os.Getpid() || held.Holder.InboxID != 7 {
		t.Errorf("holder = %+v, want first lock's holder", held.Holder)
	}
}

func TestAcquireAfterRelease(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir, 7)
	if err != nil {
		t.Fatal(err)
	}
	_ = l.Release()

	l2, err := Acquire(tmpDir, 7)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	_ = l2.Release()
}

func TestReleaseNilAndTwice(t *testing.T) {
	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}

	l, err := Acquire(t.TempDir(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestParse(t *testing.T) {
	info := parse("pid=42\ninbox=9\ntime=2025-01-15T12:00:00Z\njunk\n")
	if info.PID != 42 || info.InboxID != 9 {
		t.Errorf("parse = %+v", info)
	}
	if !info.Acquired.Equal(time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("acquired = %v", info.Acquired)
	}
}
