// Package student contains the JSON REST handlers for the Student resource.
//
// HANDLER PATTERN USED HERE: THE CLOSURE / FACTORY PATTERN:
// ────────────────────────────────────────────────────────────
// Each exported function accepts its dependencies (the Service) and
// returns a function with the exact signature the router needs:
//
//	mux.HandleFunc("POST /api/students", student.New(svc))
//	//                                   ^^^^^^^^^^^^^^^
//	//                  New(svc) is called ONCE at startup; the returned
//	//                  handler runs on EVERY incoming request.
//
// The handlers hold no business logic: they decode, call the service and
// translate the result (or error) into a response.
package student

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aanand-mishra/student-manager/internal/storage"
	"github.com/aanand-mishra/student-manager/internal/types"
	"github.com/aanand-mishra/student-manager/internal/utils/response"
	"github.com/aanand-mishra/student-manager/internal/validate"
)

// Service is the slice of the domain service these handlers call.
type Service interface {
	GetAll(ctx context.Context) ([]types.Student, error)
	GetAllPaged(ctx context.Context, page types.PageRequest) (types.Page[types.Student], error)
	GetByID(ctx context.Context, id int64) (types.Student, error)
	Save(ctx context.Context, s types.Student) (types.Student, error)
	Delete(ctx context.Context, id int64) error
	UpdateStatus(ctx context.Context, id int64, status types.Status) (bool, error)
	FindByEmail(ctx context.Context, email string) (types.Student, error)
	Search(ctx context.Context, keyword string, page types.PageRequest) (types.Page[types.Student], error)
	FindByNameContaining(ctx context.Context, name string, page types.PageRequest) (types.Page[types.Student], error)
	FindActive(ctx context.Context, page types.PageRequest) (types.Page[types.Student], error)
	FindByStatus(ctx context.Context, status types.Status) ([]types.Student, error)
	FindByStatusOrdered(ctx context.Context, status types.Status) ([]types.Student, error)
	FindByMultipleStatuses(ctx context.Context, statuses []types.Status) ([]types.Student, error)
	FindByDateOfBirthBetween(ctx context.Context, from, to types.Date) ([]types.Student, error)
	CountByStatus(ctx context.Context, status types.Status) (int64, error)
}

// Register mounts every REST route on mux.
//
// Route table:
//
//	GET    /api/students                       → list all students
//	POST   /api/students                       → create a new student
//	GET    /api/students/{id}                  → get one student by ID
//	PUT    /api/students/{id}                  → update a student
//	DELETE /api/students/{id}                  → delete a student
//	PATCH  /api/students/{id}/status           → change only the status
//	GET    /api/students/paged                 → one page of all students
//	GET    /api/students/search?keyword=       → name-or-email search, paged
//	GET    /api/students/by-name?name=         → name search, paged
//	GET    /api/students/active                → ACTIVE students, paged
//	GET    /api/students/status?in=A,B         → students in any of the statuses
//	GET    /api/students/status/{status}       → students with a status (?ordered=true sorts by name)
//	GET    /api/students/status/{status}/count → count by status
//	GET    /api/students/born?from=&to=        → birth date range, inclusive
//	GET    /api/students/email/{email}         → lookup by email
func Register(mux *http.ServeMux, svc Service) {
	mux.HandleFunc("GET /api/students", GetList(svc))
	mux.HandleFunc("POST /api/students", New(svc))
	mux.HandleFunc("GET /api/students/{id}", GetByID(svc))
	mux.HandleFunc("PUT /api/students/{id}", Update(svc))
	mux.HandleFunc("DELETE /api/students/{id}", Delete(svc))
	mux.HandleFunc("PATCH /api/students/{id}/status", UpdateStatus(svc))
	mux.HandleFunc("GET /api/students/paged", GetPaged(svc))
	mux.HandleFunc("GET /api/students/search", Search(svc))
	mux.HandleFunc("GET /api/students/by-name", ByName(svc))
	mux.HandleFunc("GET /api/students/active", Active(svc))
	mux.HandleFunc("GET /api/students/status", ByStatuses(svc))
	mux.HandleFunc("GET /api/students/status/{status}", ByStatus(svc))
	mux.HandleFunc("GET /api/students/status/{status}/count", CountByStatus(svc))
	mux.HandleFunc("GET /api/students/born", BornBetween(svc))
	mux.HandleFunc("GET /api/students/email/{email}", ByEmail(svc))
}

// ─────────────────────────────────────────────────────────────────────────────
// New handles POST /api/students
//
// Request body (JSON):
//
//	{ "name": "John Doe", "email": "john@example.com", "dateOfBirth": "2000-01-01" }
//
// Success: 201 Created with the stored student, id populated.
// Errors:  400 empty/malformed/invalid body, 409 email already in use.
// ─────────────────────────────────────────────────────────────────────────────
func New(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("creating a student")

		st, ok := decodeStudent(w, r)
		if !ok {
			return
		}
		// The id is server generated: a client-supplied one must not turn
		// a create into an update.
		st.ID = 0

		saved, err := svc.Save(r.Context(), st)
		if err != nil {
			writeError(w, err, 0)
			return
		}

		slog.Info("student created", slog.Int64("id", saved.ID))
		_ = response.WriteJSON(w, http.StatusCreated, saved)
	}
}

// GetByID handles GET /api/students/{id}: 200, 400 bad id, 404 absent.
func GetByID(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		slog.Info("getting a student", slog.Int64("id", id))

		st, err := svc.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, err, id)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, st)
	}
}

// GetList handles GET /api/students and returns [] (not null) when empty.
func GetList(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("getting all students")

		students, err := svc.GetAll(r.Context())
		if err != nil {
			writeError(w, err, 0)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, students)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Update handles PUT /api/students/{id}
// Replaces ALL mutable fields of an existing student; the id in the path
// wins over any id in the body.
//
// Success: 200 OK with the updated student.
// Errors:  400 invalid id or body, 404 absent, 409 email already in use.
// ─────────────────────────────────────────────────────────────────────────────
func Update(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		slog.Info("updating a student", slog.Int64("id", id))

		st, ok := decodeStudent(w, r)
		if !ok {
			return
		}
		st.ID = id

		updated, err := svc.Save(r.Context(), st)
		if err != nil {
			writeError(w, err, id)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, updated)
	}
}

// Delete handles DELETE /api/students/{id}: 204, 400 bad id, 404 absent.
func Delete(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		slog.Info("deleting a student", slog.Int64("id", id))

		if err := svc.Delete(r.Context(), id); err != nil {
			writeError(w, err, id)
			return
		}
		response.NoContent(w)
	}
}

type statusUpdate struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /api/students/{id}/status with {"status":"INACTIVE"}.
func UpdateStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var body statusUpdate
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			response.Error(w, http.StatusBadRequest, "malformed request body", err.Error())
			return
		}
		status, err := types.ParseStatus(body.Status)
		if err != nil {
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		updated, err := svc.UpdateStatus(r.Context(), id, status)
		if err != nil {
			writeError(w, err, id)
			return
		}
		if !updated {
			writeError(w, storage.ErrNotFound, id)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, map[string]bool{"updated": true})
	}
}

// GetPaged handles GET /api/students/paged?page=0&size=20.
func GetPaged(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := pageRequest(w, r)
		if !ok {
			return
		}
		result, err := svc.GetAllPaged(r.Context(), page)
		if err != nil {
			writeError(w, err, 0)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, result)
	}
}

// Search handles GET /api/students/search?keyword=…, matching name or email.
func Search(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keyword, ok := requiredQuery(w, r, "keyword")
		if !ok {
			return
		}
		page, ok := pageRequest(w, r)
		if !ok {
			return
		}
		result, err := svc.Search(r.Context(), keyword, page)
		if err != nil {
			writeError(w, err, 0)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, result)
	}
}

// ByName handles GET /api/students/by-name?name=….
func ByName(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := requiredQuery(w, r, "name")
		if !ok {
			return
		}
		page, ok := pageRequest(w, r)
		if !ok {
			return
		}
		result, err := svc.FindByNameContaining(r.Context(), name, page)
		if err != nil {
			writeError(w, err, 0)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, result)
	}
}

// Active handles GET /api/students/active.
func Active(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := pageRequest(w, r)
		if !ok {
			return
		}
		result, err := svc.FindActive(r.Context(), page)
		if err != nil {
			writeError(w, err, 0)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, result)
	}
}

// ByStatus handles GET /api/students/status/{status}[?ordered=true].
func ByStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, ok := pathStatus(w, r)
		if !ok {
			return
		}

		ordered, _ := strconv.ParseBool(r.URL.Query().Get("ordered"))

		var (
			students []types.Student
			err      error
		)
		if ordered {
			students, err = svc.FindByStatusOrdered(r.Context(), status)
		} else {
			students, err = svc.FindByStatus(r.Context(), status)
		}
		if err != nil {
			writeError(w, err, 0)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, students)
	}
}

// ByStatuses handles GET /api/students/status?in=ACTIVE,INACTIVE.
func ByStatuses(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := requiredQuery(w, r, "in")
		if !ok {
			return
		}

		var statuses []types.Status
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			st, err := types.ParseStatus(part)
			if err != nil {
				response.Error(w, http.StatusBadRequest, err.Error())
				return
			}
			statuses = append(statuses, st)
		}

		students, err := svc.FindByMultipleStatuses(r.Context(), statuses)
		if err != nil {
			writeError(w, err, 0)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, students)
	}
}

type statusCount struct {
	Status types.Status `json:"status"`
	Count  int64        `json:"count"`
}

// CountByStatus handles GET /api/students/status/{status}/count.
func CountByStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, ok := pathStatus(w, r)
		if !ok {
			return
		}
		n, err := svc.CountByStatus(r.Context(), status)
		if err != nil {
			writeError(w, err, 0)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, statusCount{Status: status, Count: n})
	}
}

// BornBetween handles GET /api/students/born?from=2000-01-01&to=2000-12-31.
func BornBetween(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, ok := queryDate(w, r, "from")
		if !ok {
			return
		}
		to, ok := queryDate(w, r, "to")
		if !ok {
			return
		}
		students, err := svc.FindByDateOfBirthBetween(r.Context(), from, to)
		if err != nil {
			writeError(w, err, 0)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, students)
	}
}

// ByEmail handles GET /api/students/email/{email}: 200 or 404.
func ByEmail(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.PathValue("email")
		st, err := svc.FindByEmail(r.Context(), email)
		if errors.Is(err, storage.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "Student not found with email: "+email)
			return
		}
		if err != nil {
			writeError(w, err, 0)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, st)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers: each writes the 400 itself and reports ok=false so the
// handler can simply return.
// ─────────────────────────────────────────────────────────────────────────────

func decodeStudent(w http.ResponseWriter, r *http.Request) (types.Student, bool) {
	var st types.Student
	err := json.NewDecoder(r.Body).Decode(&st)
	if errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest, "request body is empty")
		return types.Student{}, false
	}
	if err != nil {
		response.Error(w, http.StatusBadRequest, "malformed request body", err.Error())
		return types.Student{}, false
	}
	return st, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(w, http.StatusBadRequest, "invalid id: must be a positive integer")
		return 0, false
	}
	return id, true
}

func pathStatus(w http.ResponseWriter, r *http.Request) (types.Status, bool) {
	st, err := types.ParseStatus(r.PathValue("status"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return st, true
}

func requiredQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		response.Error(w, http.StatusBadRequest, fmt.Sprintf("query parameter %q is required", name))
		return "", false
	}
	return v, true
}

func queryDate(w http.ResponseWriter, r *http.Request, name string) (types.Date, bool) {
	raw, ok := requiredQuery(w, r, name)
	if !ok {
		return types.Date{}, false
	}
	d, err := types.ParseDate(raw)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return types.Date{}, false
	}
	return d, true
}

// pageRequest reads ?page= and ?size=; both are optional.
func pageRequest(w http.ResponseWriter, r *http.Request) (types.PageRequest, bool) {
	var p types.PageRequest
	q := r.URL.Query()

	for name, dst := range map[string]*int{"page": &p.Page, "size": &p.Size} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.Error(w, http.StatusBadRequest, fmt.Sprintf("query parameter %q must be a non-negative integer", name))
			return types.PageRequest{}, false
		}
		*dst = n
	}
	return p.Normalize(), true
}

// writeError maps service errors onto HTTP statuses. id is only used for
// the not-found message.
func writeError(w http.ResponseWriter, err error, id int64) {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusBadRequest, "Validation failed", verr.Details...)
	case errors.Is(err, storage.ErrNotFound):
		response.Error(w, http.StatusNotFound, fmt.Sprintf("Student not found with id: %d", id))
	case errors.Is(err, storage.ErrDuplicateEmail):
		response.Error(w, http.StatusConflict, "A student with this email already exists")
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		response.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
