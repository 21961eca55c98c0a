package store

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the bridge-owned relay ledger. It lives next to, but separate from,
// the whatsmeow device store so migrations never touch session credentials.
type DB struct {
	*sql.DB
}

// Open opens the ledger at path. Inbound events are handled concurrently, so
// writers wait on the busy timeout instead of failing with SQLITE_BUSY.
func Open(path string) (*DB, error) {
	q := url.Values{
		"_journal_mode": {"WAL"},
		"_busy_timeout": {"5000"},
		"_synchronous":  {"NORMAL"},
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger %s: %w", path, err)
	}
	return &DB{db}, nil
}
