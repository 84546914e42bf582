// Package postgres opens the PostgreSQL-backed student store using lib/pq.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aanand-mishra/student-manager/internal/storage/sqlstore"
)

const uniqueViolation = pq.ErrorCode("23505")

const schema = `
	CREATE TABLE IF NOT EXISTS students (
		id                 BIGSERIAL    PRIMARY KEY,
		name               VARCHAR(100) NOT NULL,
		email              VARCHAR(255) NOT NULL UNIQUE,
		date_of_birth      DATE,
		phone_number       VARCHAR(20),
		student_status     VARCHAR(20)  NOT NULL DEFAULT 'ACTIVE',
		created_date       TIMESTAMPTZ  NOT NULL,
		last_modified_date TIMESTAMPTZ,
		created_by         TEXT         NOT NULL,
		last_modified_by   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_students_status ON students (student_status);
`

// New connects to dsn, verifies the connection, and bootstraps the schema.
func New(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: open db: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres.New: create table: %w", err)
	}

	return sqlstore.New(db, IsUniqueViolation), nil
}

// IsUniqueViolation reports whether err carries SQLSTATE 23505.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
