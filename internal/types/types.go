// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles:
// handlers, the service, storage and the cache can all import types
// without depending on each other.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Status is the enrolment state of a student. Any value may be set at
// any time; there is no transition table.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusGraduated Status = "GRADUATED"
	StatusSuspended Status = "SUSPENDED"
)

// Statuses lists every known status in display order.
var Statuses = []Status{StatusActive, StatusInactive, StatusGraduated, StatusSuspended}

// ParseStatus converts a case-insensitive string into a Status.
func ParseStatus(s string) (Status, error) {
	candidate := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range Statuses {
		if st == candidate {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Student represents a student record in our system.
//
// Struct tags serve three purposes:
//
//  1. json:"..."    : the REST representation.
//  2. db:"..."      : the column the field is scanned from (sqlx).
//  3. validate:"...": rules checked by go-playground/validator; the
//     custom "past" and "phone" tags are registered in internal/validate.
//
// The audit fields are owned by the server: whatever a client sends is
// overwritten by the before-save hook.
type Student struct {
	ID          int64   `json:"id"                    db:"id"`
	Name        string  `json:"name"                  db:"name"               validate:"required,min=2,max=100"`
	Email       string  `json:"email"                 db:"email"              validate:"required,email"`
	DateOfBirth *Date   `json:"dateOfBirth,omitempty" db:"date_of_birth"      validate:"omitempty,past"`
	PhoneNumber *string `json:"phoneNumber,omitempty" db:"phone_number"       validate:"omitempty,phone"`
	Status      Status  `json:"status"                db:"student_status"     validate:"omitempty,oneof=ACTIVE INACTIVE GRADUATED SUSPENDED"`

	CreatedDate      time.Time  `json:"createdDate"                db:"created_date"`
	LastModifiedDate *time.Time `json:"lastModifiedDate,omitempty" db:"last_modified_date"`
	CreatedBy        string     `json:"createdBy"                  db:"created_by"`
	LastModifiedBy   *string    `json:"lastModifiedBy,omitempty"   db:"last_modified_by"`
}

// PageRequest selects one zero-based page of a result set.
type PageRequest struct {
	Page int
	Size int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps the request into a usable range.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset is the number of rows skipped before this page.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Page is one slice of a larger, ordered result set.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// NewPage assembles a Page and derives TotalPages from total and the page size.
func NewPage[T any](content []T, req PageRequest, total int64) Page[T] {
	if content == nil {
		content = make([]T, 0)
	}
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{
		Content:       content,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    pages,
	}
}
