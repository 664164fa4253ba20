// Package sqlite implements the repository interfaces on top of SQLite.
//
// modernc.org/sqlite is a pure Go port of SQLite, so the server builds and
// cross-compiles without a C toolchain. Tests open ":memory:" databases.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB     : a connection pool (NOT a single connection!)
//   - sql.Row    : a single result row
//   - sql.Rows   : multiple result rows (must be closed!)
//
// Every write in this package is one statement. There are no multi-statement
// transactions: compound operations are sequenced by the services.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and implements every repository interface.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/readrealm.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	// Connection-scoped pragmas go in the DSN so that every pooled connection
	// gets them, not just the first one.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// An in-memory database lives and dies with its connection; a pool of
	// several connections would see several empty databases.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress. It is stored in
	// the database file, so one Exec is enough.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := newDB(conn)
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// newDB wraps an already-open pool without touching the schema. Tests use it
// with go-sqlmock.
func newDB(conn *sql.DB) *DB {
	return &DB{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by /healthz.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// migrate creates every table. CREATE ... IF NOT EXISTS makes it safe to run
// on each start.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				email         TEXT UNIQUE,
				password_hash TEXT NOT NULL DEFAULT '',
				github_id     INTEGER UNIQUE,
				login         TEXT NOT NULL DEFAULT '',
				avatar_url    TEXT NOT NULL DEFAULT '',
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);`},
		{"profiles", `
			CREATE TABLE IF NOT EXISTS profiles (
				id         TEXT PRIMARY KEY,
				username   TEXT NOT NULL DEFAULT '',
				full_name  TEXT NOT NULL DEFAULT '',
				bio        TEXT NOT NULL DEFAULT '',
				avatar_url TEXT NOT NULL DEFAULT '',
				theme      TEXT NOT NULL DEFAULT 'classic'
			);`},
		{"booklists", `
			CREATE TABLE IF NOT EXISTS booklists (
				id            TEXT PRIMARY KEY,
				name          TEXT NOT NULL,
				owner_user_id TEXT NOT NULL,
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_booklists_owner ON booklists(owner_user_id, created_at);`},
		{"booklist_books", `
			CREATE TABLE IF NOT EXISTS booklist_books (
				entry_id       INTEGER PRIMARY KEY AUTOINCREMENT,
				booklist_id    TEXT NOT NULL REFERENCES booklists(id),
				` + bookColumnsDDL + `
			);
			CREATE INDEX IF NOT EXISTS idx_booklist_books_list ON booklist_books(booklist_id);`},
		{"reading_challenges", `
			CREATE TABLE IF NOT EXISTS reading_challenges (
				id            TEXT PRIMARY KEY,
				name          TEXT NOT NULL,
				owner_user_id TEXT NOT NULL,
				start_date    TEXT NOT NULL,
				end_date      TEXT NOT NULL,
				target_books  INTEGER NOT NULL CHECK (target_books > 0),
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_challenges_owner ON reading_challenges(owner_user_id, created_at);`},
		{"challenge_books", `
			CREATE TABLE IF NOT EXISTS challenge_books (
				entry_id       INTEGER PRIMARY KEY AUTOINCREMENT,
				challenge_id   TEXT NOT NULL REFERENCES reading_challenges(id),
				` + bookColumnsDDL + `
			);
			CREATE INDEX IF NOT EXISTS idx_challenge_books_challenge ON challenge_books(challenge_id);`},
		// One review per (user, book). The service serializes submissions for
		// the same pair; this constraint is the backstop.
		{"reviews", `
			CREATE TABLE IF NOT EXISTS reviews (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL,
				book_id    TEXT NOT NULL,
				rating     INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
				content    TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (user_id, book_id)
			);
			CREATE INDEX IF NOT EXISTS idx_reviews_book ON reviews(book_id, created_at);`},
		{"follows", `
			CREATE TABLE IF NOT EXISTS follows (
				follower_id  TEXT NOT NULL,
				following_id TEXT NOT NULL,
				created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (follower_id, following_id)
			);
			CREATE INDEX IF NOT EXISTS idx_follows_following ON follows(following_id);`},
		// GROUPS is an SQL keyword, so the name is always quoted.
		{"groups", `
			CREATE TABLE IF NOT EXISTS "groups" (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				created_by TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);`},
		{"messages", `
			CREATE TABLE IF NOT EXISTS messages (
				id         TEXT PRIMARY KEY,
				group_id   TEXT NOT NULL REFERENCES "groups"(id),
				user_id    TEXT NOT NULL,
				text       TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_messages_group ON messages(group_id, created_at);`},
	}

	for _, s := range steps {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", s.name, err)
		}
	}
	return nil
}

// bookColumnsDDL is the Book snapshot embedded in booklist_books and
// challenge_books.
const bookColumnsDDL = `book_id        TEXT NOT NULL,
				title          TEXT NOT NULL,
				author         TEXT NOT NULL,
				cover_url      TEXT NOT NULL,
				description    TEXT NOT NULL,
				average_rating REAL NOT NULL DEFAULT 0,
				published_date TEXT NOT NULL DEFAULT '',
				isbn           TEXT NOT NULL DEFAULT ''`

const bookColumns = `book_id, title, author, cover_url, description, average_rating, published_date, isbn`

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint
// failure.
func isUniqueViolation(err error) bool {
	return isConstraint(err,
		[]int{sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY},
		"UNIQUE constraint failed",
	)
}

func isForeignKeyViolation(err error) bool {
	return isConstraint(err,
		[]int{sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY},
		"FOREIGN KEY constraint failed",
	)
}

// isConstraint matches on the extended result code, falling back to the
// message when the driver only reports the primary SQLITE_CONSTRAINT code.
func isConstraint(err error, codes []int, text string) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.Code() == c {
			return true
		}
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), text)
}

// nullIfEmpty stores "" as NULL so that UNIQUE columns allow many blanks.
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func roundOne(v float64) float64 {
	return math.Round(v*10) / 10
}
