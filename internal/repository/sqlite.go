package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openretail/magpie/internal/domain"
	_ "modernc.org/sqlite"
)

// sqlitePragmas keeps the embedded store usable under concurrent lanes:
// WAL for readers during checkout writes, a busy timeout instead of
// immediate SQLITE_BUSY errors.
const sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"

// openSQLite opens the embedded store. modernc.org/sqlite is pure Go,
// so the single-binary deployment needs no CGO toolchain.
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./magpie.db"
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?%s", path, sqlitePragmas))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return db, nil
}
