package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// BaseDir returns ~/.wpp-bridge.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wpp-bridge")
}

// DefaultSessionPath returns the session directory used when SESSION_PATH is unset.
// One WhatsApp session exists per Chatwoot inbox.
func DefaultSessionPath(inboxID int64) string {
	return filepath.Join(BaseDir(), "sessions", fmt.Sprintf("inbox_%d", inboxID))
}

// SessionDBPath returns the whatsmeow device store path.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.SessionPath, "session.db")
}

// LedgerDBPath returns the bridge-owned relay ledger path.
func (c *Config) LedgerDBPath() string {
	return filepath.Join(c.SessionPath, "bridge.db")
}

// LogDir returns the log directory for the session.
func (c *Config) LogDir() string {
	return filepath.Join(c.SessionPath, "logs")
}

// LogPath returns the daemon log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogDir(), "bridged.log")
}

// SocketPath returns the health socket path.
func (c *Config) SocketPath() string {
	return SocketPath(c.SessionPath)
}

// SocketPath returns the health socket path inside a session directory.
func SocketPath(sessionPath string) string {
	return filepath.Join(sessionPath, "bridge.sock")
}

// EnsureDirs creates the session directory tree with owner-only permissions.
func (c *Config) EnsureDirs() error {
	for _, d := range []string{c.SessionPath, c.LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
