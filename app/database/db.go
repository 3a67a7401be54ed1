package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

func init() {
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

// DB is an initialized, migrated handle to the local store.
type DB struct {
	*sqlx.DB
	Path string
}

// Open opens the SQLite file at path, creating it if needed, and applies
// migrations. It must complete before the handle is given to any consumer.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &InitError{Op: "mkdir", Err: err}
		}
	}

	// Transactions take the write lock at BEGIN and wait on busy_timeout
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", path)

	conn, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, &InitError{Op: "open", Err: err}
	}

	// One connection: every operation runs in its own transaction and
	// transactions never interleave within the process.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, &InitError{Op: "ping", Err: err}
	}

	db := &DB{DB: conn, Path: path}

	version, dirty, err := RunMigrations(db)
	if err != nil {
		conn.Close()
		return nil, &InitError{Op: "migrate", Err: err}
	}
	if dirty {
		conn.Close()
		return nil, &InitError{Op: "migrate", Err: fmt.Errorf("schema version %d is dirty", version)}
	}

	slog.Debug("Database ready", "path", path, "schema_version", version)

	return db, nil
}
