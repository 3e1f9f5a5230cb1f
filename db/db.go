// ABOUTME: SQLite store lifecycle for the revos database
// ABOUTME: Resolves the data path, opens with WAL, and applies the schema
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	_ "github.com/mattn/go-sqlite3"
)

// dsnParams pins WAL journaling and a busy timeout so a CLI invocation
// racing the MCP server waits instead of failing with SQLITE_BUSY.
const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000"

// DefaultPath returns the database location under the XDG data home.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, "revos", "revos.db")
}

// OpenDatabase opens the SQLite store at path, creating the file and its
// directory on first use, and applies the schema. SQLite tolerates only
// one writer, so the connection pool is pinned to a single connection.
func OpenDatabase(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	database, err := sql.Open("sqlite3", path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	database.SetMaxOpenConns(1)

	if err := InitSchema(database); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}
