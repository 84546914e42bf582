// Package storage defines the persistence contract for students: the
// set of reads, queries and writes any relational backend must offer.
//
// The service only ever sees these interfaces, so a test can hand it a
// SQLite file while production runs on PostgreSQL.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/aanand-mishra/student-manager/internal/types"
)

var (
	// ErrNotFound is returned when no student matches the requested identifier.
	ErrNotFound = errors.New("student not found")

	// ErrDuplicateEmail is returned when a write would break email uniqueness.
	ErrDuplicateEmail = errors.New("email already in use")
)

// Queries is every operation that can run either directly against the
// database or inside a transaction.
type Queries interface {
	// FindByID returns ErrNotFound when the id does not exist.
	FindByID(ctx context.Context, id int64) (types.Student, error)

	// FindByEmail returns ErrNotFound when no student has that email.
	FindByEmail(ctx context.Context, email string) (types.Student, error)

	// FindAll returns every student ordered by id. Never nil.
	FindAll(ctx context.Context) ([]types.Student, error)

	FindAllPaged(ctx context.Context, page types.PageRequest) (types.Page[types.Student], error)

	// Save inserts when s.ID is zero and returns the row with its generated
	// id; otherwise it replaces every mutable column of the existing row.
	// Creation audit columns are never rewritten by an update.
	Save(ctx context.Context, s types.Student) (types.Student, error)

	// DeleteByID returns ErrNotFound when nothing was removed.
	DeleteByID(ctx context.Context, id int64) error

	FindByStatus(ctx context.Context, status types.Status) ([]types.Student, error)

	// FindByStatusOrderByName sorts ascending by name.
	FindByStatusOrderByName(ctx context.Context, status types.Status) ([]types.Student, error)

	FindByStatusIn(ctx context.Context, statuses []types.Status) ([]types.Student, error)

	// FindByDateOfBirthBetween uses inclusive bounds.
	FindByDateOfBirthBetween(ctx context.Context, from, to types.Date) ([]types.Student, error)

	// FindByNameContaining matches a case-insensitive substring of the name.
	FindByNameContaining(ctx context.Context, name string, page types.PageRequest) (types.Page[types.Student], error)

	// Search matches a case-insensitive substring of the name or the email.
	Search(ctx context.Context, keyword string, page types.PageRequest) (types.Page[types.Student], error)

	FindActive(ctx context.Context, page types.PageRequest) (types.Page[types.Student], error)

	CountByStatus(ctx context.Context, status types.Status) (int64, error)

	// UpdateStatus sets the status of the student with the given id and
	// returns the number of rows affected.
	UpdateStatus(ctx context.Context, id int64, status types.Status, modifiedBy string, modifiedAt time.Time) (int64, error)
}

// Storage is a Queries bound to a database plus transaction control.
type Storage interface {
	Queries

	// InTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. readOnly is a hint the driver
	// may use for optimisation; it does not change results.
	InTx(ctx context.Context, readOnly bool, fn func(q Queries) error) error

	Close() error
}
