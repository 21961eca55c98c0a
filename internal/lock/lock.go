// Package lock guards a WhatsApp session directory against a second bridge
// process using the same device credentials.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "bridge.lock"

// Info describes the process holding a lock.
type Info struct {
	PID      int
	InboxID  int64
	Acquired time.Time
}

// HeldError is returned when another process holds the session lock.
type HeldError struct {
	Holder Info
	Path   string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("session lock held by PID %d for inbox %d since %s (%s)",
		e.Holder.PID, e.Holder.InboxID, e.Holder.Acquired.Format(time.RFC3339), e.Path)
}

// Lock is an acquired session lock.
type Lock struct {
	file *os.File
	path string
}

// Path returns the lock file location for a session directory.
func Path(sessionDir string) string {
	return filepath.Join(sessionDir, fileName)
}

// Acquire takes an exclusive, non-blocking flock on the session directory and
// records the holder. Returns *HeldError if another process already holds it.
func Acquire(sessionDir string, inboxID int64) (*Lock, error) {
	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	path := Path(sessionDir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}
		holder, _ := Inspect(sessionDir)
		return nil, &HeldError{Holder: holder, Path: path}
	}

	info := Info{PID: os.Getpid(), InboxID: inboxID, Acquired: time.Now().UTC()}
	if err := write(f, info); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

// Inspect reads the holder recorded in a session's lock file.
func Inspect(sessionDir string) (Info, error) {
	data, err := os.ReadFile(Path(sessionDir))
	if err != nil {
		return Info{}, err
	}
	return parse(string(data)), nil
}

// Release unlocks and removes the lock file. Safe to call on nil receiver and
// more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func write(f *os.File, info Info) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\ninbox=%d\ntime=%s\n", info.PID, info.InboxID, info.Acquired.Format(time.RFC3339))
	return err
}

func parse(content string) Info {
	var info Info
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			info.PID, _ = strconv.Atoi(value)
		case "inbox":
			info.InboxID, _ = strconv.ParseInt(value, 10, 64)
		case "time":
			info.Acquired, _ = time.Parse(time.RFC3339, value)
		}
	}
	return info
}
