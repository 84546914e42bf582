// Package sqlite opens the SQLite-backed student store.
//
// SQLite stores everything in a single file on disk. There is no network,
// no separate server process, and no installation beyond the driver,
// which makes it the default for local runs and for tests.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/aanand-mishra/student-manager/internal/storage/sqlstore"
)

// Schema is created on every startup; IF NOT EXISTS makes it idempotent.
//
//	id            : integer primary key, auto-incremented by SQLite
//	email         : UNIQUE, enforced by the database
//	date_of_birth : stored as YYYY-MM-DD text, so BETWEEN compares correctly
//	created_*     : written once on insert, never by an UPDATE
const schema = `
	CREATE TABLE IF NOT EXISTS students (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		name               TEXT        NOT NULL,
		email              TEXT        NOT NULL UNIQUE,
		date_of_birth      DATE,
		phone_number       VARCHAR(20),
		student_status     VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
		created_date       TIMESTAMP   NOT NULL,
		last_modified_date TIMESTAMP,
		created_by         TEXT        NOT NULL,
		last_modified_by   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_students_status ON students (student_status);
`

// driverName is go-sqlite3 with lower() replaced by a Unicode-aware
// version. The built-in one only folds ASCII, while search patterns are
// lower-cased with strings.ToLower, so "ÉLODIE" would never match.
const driverName = "sqlite3_unicode"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", strings.ToLower, true)
		},
	})
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

// New opens the SQLite database at path, creates the students table if it
// does not already exist, and returns a ready-to-use store.
func New(path string) (*sqlstore.Store, error) {
	// sqlx.Open does NOT open a real connection yet: it just validates
	// the driver name and data source name (DSN).
	db, err := sqlx.Open(driverName, path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	// SQLite allows a single writer; one pooled connection keeps
	// transactions from tripping over each other with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: create table: %w", err)
	}

	return sqlstore.New(db, IsUniqueViolation), nil
}

// IsUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
