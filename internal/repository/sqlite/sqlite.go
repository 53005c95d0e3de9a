// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the server builds
// without a C toolchain. Use ":memory:" as the path for throwaway databases in tests.
//
// CONNECTIONS AND LOCKING:
// sql.DB is a pool. Settings that SQLite keeps per connection (busy_timeout,
// foreign_keys) are passed as _pragma parameters in the DSN so every pooled
// connection gets them, not only the first one. journal_mode=WAL is stored in
// the database file itself and is set once after opening.
//
// SQLite allows one writer at a time. With WAL, readers never block, and a
// writer that finds the lock taken waits up to busy_timeout before failing
// with SQLITE_BUSY.
//
// SLUG UNIQUENESS:
// The snippets table has no UNIQUE constraint on slug, because uniqueness only
// applies while no versioning extension is active. CreateUniqueSlug and
// UpdateUniqueSlug put the check inside the writing statement
// (INSERT ... SELECT ... WHERE NOT EXISTS), which runs under the write lock:
//
//	writer A: INSERT ... WHERE NOT EXISTS(slug='footer')  → 1 row
//	writer B: (waits for A) INSERT ... WHERE NOT EXISTS   → 0 rows → ErrConflict
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements both
// repository.SnippetRepository and repository.UserRepository.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/snippets.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database
func New(dbPath string) (*DB, error) {
	// Pragmas in the DSN run on every pooled connection. Without a busy
	// timeout, concurrent writers fail at once with SQLITE_BUSY.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would otherwise get its own
	// empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent, so it runs on
// each start.
func (db *DB) migrate() error {
	// slug is deliberately not UNIQUE: uniqueness only holds while no
	// versioning extension is active, and the service enforces it then.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snippets (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL,
			slug       TEXT NOT NULL DEFAULT '',
			html       TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_snippets_name ON snippets(name);
		CREATE INDEX IF NOT EXISTS idx_snippets_slug ON snippets(slug);
	`)
	if err != nil {
		return fmt.Errorf("creating snippets table: %w", err)
	}

	// github_id is UNIQUE but nullable: password-only accounts have none.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			github_id     INTEGER UNIQUE,
			email         TEXT NOT NULL DEFAULT '',
			avatar_url    TEXT NOT NULL DEFAULT '',
			is_active     INTEGER NOT NULL DEFAULT 1,
			is_staff      INTEGER NOT NULL DEFAULT 0,
			is_superuser  INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_permissions (
			user_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			codename TEXT NOT NULL,
			PRIMARY KEY (user_id, codename)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating user_permissions table: %w", err)
	}

	return nil
}
