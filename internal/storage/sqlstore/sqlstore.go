// Package sqlstore implements storage.Storage on top of sqlx so the same
// SQL serves every supported database. Queries are written with "?"
// placeholders and rebound to the driver's style (e.g. $1 for PostgreSQL)
// just before they run.
//
// Driver-specific concerns (opening the connection, creating the schema,
// recognising a unique-constraint violation) live in the sqlite and
// postgres packages, which hand a ready *sqlx.DB to New.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aanand-mishra/student-manager/internal/storage"
	"github.com/aanand-mishra/student-manager/internal/types"
)

// UniqueViolation reports whether err came from a UNIQUE constraint.
type UniqueViolation func(err error) bool

// Store is the database-bound implementation of storage.Storage.
// A single *sqlx.DB is safe for concurrent use by multiple goroutines.
type Store struct {
	*queries
	db *sqlx.DB
}

var _ storage.Storage = (*Store)(nil)

// New wraps db. isUnique may be nil, in which case no error is
// translated to storage.ErrDuplicateEmail.
func New(db *sqlx.DB, isUnique UniqueViolation) *Store {
	if isUnique == nil {
		isUnique = func(error) bool { return false }
	}
	return &Store{
		queries: &queries{ext: db, isUnique: isUnique},
		db:      db,
	}
}

// DB exposes the underlying handle, e.g. for health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

// InTx begins a transaction, hands fn a Queries bound to it, and commits
// or rolls back depending on fn's result. A panic inside fn rolls back
// and is re-raised.
func (s *Store) InTx(ctx context.Context, readOnly bool, fn func(q storage.Queries) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("sqlstore.InTx: begin: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&queries{ext: tx, isUnique: s.isUnique}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("sqlstore.InTx: rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore.InTx: commit: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// queries runs every statement through ext, which is either the *sqlx.DB
// or an open *sqlx.Tx.
// ─────────────────────────────────────────────────────────────────────────────
type queries struct {
	ext      sqlx.ExtContext
	isUnique UniqueViolation
}

var _ storage.Queries = (*queries)(nil)

// Explicitly list columns. The order here is irrelevant to sqlx, which
// maps by the db:"..." tag, but SELECT * would break on schema drift.
const columns = `id, name, email, date_of_birth, phone_number, student_status,
	created_date, last_modified_date, created_by, last_modified_by`

const selectStudents = `SELECT ` + columns + ` FROM students`

func (q *queries) get(ctx context.Context, query string, args ...any) (types.Student, error) {
	var s types.Student
	err := sqlx.GetContext(ctx, q.ext, &s, q.ext.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Student{}, storage.ErrNotFound
	}
	if err != nil {
		return types.Student{}, err
	}
	return s, nil
}

func (q *queries) list(ctx context.Context, query string, args ...any) ([]types.Student, error) {
	// Return [] instead of null in JSON.
	students := make([]types.Student, 0)
	if err := sqlx.SelectContext(ctx, q.ext, &students, q.ext.Rebind(query), args...); err != nil {
		return nil, err
	}
	return students, nil
}

// page runs a COUNT over where and then fetches one ordered page of rows.
func (q *queries) page(ctx context.Context, where, orderBy string, req types.PageRequest, args ...any) (types.Page[types.Student], error) {
	req = req.Normalize()

	var total int64
	countQuery := `SELECT COUNT(*) FROM students` + where
	if err := sqlx.GetContext(ctx, q.ext, &total, q.ext.Rebind(countQuery), args...); err != nil {
		return types.Page[types.Student]{}, fmt.Errorf("count: %w", err)
	}

	pageArgs := append(append([]any{}, args...), req.Size, req.Offset())
	content, err := q.list(ctx, selectStudents+where+` ORDER BY `+orderBy+` LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return types.Page[types.Student]{}, err
	}

	return types.NewPage(content, req, total), nil
}

func (q *queries) FindByID(ctx context.Context, id int64) (types.Student, error) {
	s, err := q.get(ctx, selectStudents+` WHERE id = ?`, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return types.Student{}, fmt.Errorf("FindByID: %w", err)
	}
	return s, err
}

func (q *queries) FindByEmail(ctx context.Context, email string) (types.Student, error) {
	s, err := q.get(ctx, selectStudents+` WHERE email = ?`, email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return types.Student{}, fmt.Errorf("FindByEmail: %w", err)
	}
	return s, err
}

func (q *queries) FindAll(ctx context.Context) ([]types.Student, error) {
	students, err := q.list(ctx, selectStudents+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("FindAll: %w", err)
	}
	return students, nil
}

func (q *queries) FindAllPaged(ctx context.Context, req types.PageRequest) (types.Page[types.Student], error) {
	p, err := q.page(ctx, "", "id", req)
	if err != nil {
		return p, fmt.Errorf("FindAllPaged: %w", err)
	}
	return p, nil
}

func (q *queries) Save(ctx context.Context, s types.Student) (types.Student, error) {
	if s.ID == 0 {
		return q.insert(ctx, s)
	}
	return q.update(ctx, s)
}

func (q *queries) insert(ctx context.Context, s types.Student) (types.Student, error) {
	query := q.ext.Rebind(`
		INSERT INTO students (name, email, date_of_birth, phone_number, student_status,
			created_date, last_modified_date, created_by, last_modified_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	var id int64
	err := q.ext.QueryRowxContext(ctx, query,
		s.Name, s.Email, s.DateOfBirth, s.PhoneNumber, s.Status,
		s.CreatedDate, s.LastModifiedDate, s.CreatedBy, s.LastModifiedBy,
	).Scan(&id)
	if err != nil {
		if q.isUnique(err) {
			return types.Student{}, storage.ErrDuplicateEmail
		}
		return types.Student{}, fmt.Errorf("Save: insert: %w", err)
	}

	// Re-fetch so the caller gets exactly what is stored.
	return q.FindByID(ctx, id)
}

func (q *queries) update(ctx context.Context, s types.Student) (types.Student, error) {
	query := q.ext.Rebind(`
		UPDATE students
		SET name = ?, email = ?, date_of_birth = ?, phone_number = ?, student_status = ?,
			last_modified_date = ?, last_modified_by = ?
		WHERE id = ?`)

	res, err := q.ext.ExecContext(ctx, query,
		s.Name, s.Email, s.DateOfBirth, s.PhoneNumber, s.Status,
		s.LastModifiedDate, s.LastModifiedBy, s.ID,
	)
	if err != nil {
		if q.isUnique(err) {
			return types.Student{}, storage.ErrDuplicateEmail
		}
		return types.Student{}, fmt.Errorf("Save: update: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return types.Student{}, fmt.Errorf("Save: rows affected: %w", err)
	}
	if n == 0 {
		return types.Student{}, storage.ErrNotFound
	}

	return q.FindByID(ctx, s.ID)
}

func (q *queries) DeleteByID(ctx context.Context, id int64) error {
	res, err := q.ext.ExecContext(ctx, q.ext.Rebind(`DELETE FROM students WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("DeleteByID: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteByID: rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (q *queries) FindByStatus(ctx context.Context, status types.Status) ([]types.Student, error) {
	students, err := q.list(ctx, selectStudents+` WHERE student_status = ? ORDER BY id`, status)
	if err != nil {
		return nil, fmt.Errorf("FindByStatus: %w", err)
	}
	return students, nil
}

func (q *queries) FindByStatusOrderByName(ctx context.Context, status types.Status) ([]types.Student, error) {
	students, err := q.list(ctx, selectStudents+` WHERE student_status = ? ORDER BY name ASC, id ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("FindByStatusOrderByName: %w", err)
	}
	return students, nil
}

func (q *queries) FindByStatusIn(ctx context.Context, statuses []types.Status) ([]types.Student, error) {
	if len(statuses) == 0 {
		return make([]types.Student, 0), nil
	}

	// sqlx.In expands the single "?" into one placeholder per status.
	query, args, err := sqlx.In(selectStudents+` WHERE student_status IN (?) ORDER BY id`, statuses)
	if err != nil {
		return nil, fmt.Errorf("FindByStatusIn: expand: %w", err)
	}
	students, err := q.list(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("FindByStatusIn: %w", err)
	}
	return students, nil
}

func (q *queries) FindByDateOfBirthBetween(ctx context.Context, from, to types.Date) ([]types.Student, error) {
	students, err := q.list(ctx,
		selectStudents+` WHERE date_of_birth BETWEEN ? AND ? ORDER BY date_of_birth, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("FindByDateOfBirthBetween: %w", err)
	}
	return students, nil
}

func (q *queries) FindByNameContaining(ctx context.Context, name string, req types.PageRequest) (types.Page[types.Student], error) {
	p, err := q.page(ctx, ` WHERE LOWER(name) LIKE ? ESCAPE '\'`, "id", req, likePattern(name))
	if err != nil {
		return p, fmt.Errorf("FindByNameContaining: %w", err)
	}
	return p, nil
}

func (q *queries) Search(ctx context.Context, keyword string, req types.PageRequest) (types.Page[types.Student], error) {
	pattern := likePattern(keyword)
	p, err := q.page(ctx,
		` WHERE LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\'`,
		"id", req, pattern, pattern)
	if err != nil {
		return p, fmt.Errorf("Search: %w", err)
	}
	return p, nil
}

func (q *queries) FindActive(ctx context.Context, req types.PageRequest) (types.Page[types.Student], error) {
	p, err := q.page(ctx, ` WHERE student_status = ?`, "id", req, types.StatusActive)
	if err != nil {
		return p, fmt.Errorf("FindActive: %w", err)
	}
	return p, nil
}

func (q *queries) CountByStatus(ctx context.Context, status types.Status) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, q.ext, &n,
		q.ext.Rebind(`SELECT COUNT(*) FROM students WHERE student_status = ?`), status)
	if err != nil {
		return 0, fmt.Errorf("CountByStatus: %w", err)
	}
	return n, nil
}

func (q *queries) UpdateStatus(ctx context.Context, id int64, status types.Status, modifiedBy string, modifiedAt time.Time) (int64, error) {
	res, err := q.ext.ExecContext(ctx, q.ext.Rebind(`
		UPDATE students
		SET student_status = ?, last_modified_date = ?, last_modified_by = ?
		WHERE id = ?`), status, modifiedAt, modifiedBy, id)
	if err != nil {
		return 0, fmt.Errorf("UpdateStatus: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	return n, nil
}

// likePattern lower-cases s, escapes LIKE wildcards, and wraps it in %…%.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}
