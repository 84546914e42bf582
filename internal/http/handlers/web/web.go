// Package web serves the server-rendered HTML pages for managing students.
// It sits beside the JSON handlers and calls the same service.
//
// Route table:
//
//	GET  /students               → list page
//	GET  /students/new           → empty form
//	GET  /students/{id}/edit     → pre-filled form
//	POST /students               → create, 303 back to the list
//	POST /students/{id}          → update, 303 back to the list
//	POST /students/{id}/delete   → delete, 303 back to the list
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aanand-mishra/student-manager/internal/storage"
	"github.com/aanand-mishra/student-manager/internal/types"
	"github.com/aanand-mishra/student-manager/internal/validate"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	listPage     = page("list.html")
	formPage     = page("form.html")
	notFoundPage = page("notfound.html")
)

func page(name string) *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/"+name))
}

// Service is what the pages need from the domain service.
type Service interface {
	GetAll(ctx context.Context) ([]types.Student, error)
	GetByID(ctx context.Context, id int64) (types.Student, error)
	Save(ctx context.Context, s types.Student) (types.Student, error)
	Delete(ctx context.Context, id int64) error
}

// Register mounts the HTML routes on mux.
func Register(mux *http.ServeMux, svc Service) {
	mux.HandleFunc("GET /students", List(svc))
	mux.HandleFunc("GET /students/new", NewForm())
	mux.HandleFunc("GET /students/{id}/edit", EditForm(svc))
	mux.HandleFunc("POST /students", Create(svc))
	mux.HandleFunc("POST /students/{id}", Update(svc))
	mux.HandleFunc("POST /students/{id}/delete", Delete(svc))
}

// formView carries the submitted (or stored) values back into form.html.
// Fields are strings so invalid input round-trips unchanged.
type formView struct {
	ID          int64
	Action      string
	Name        string
	Email       string
	DateOfBirth string
	PhoneNumber string
	Status      types.Status
	Statuses    []types.Status
	Errors      []string
}

func newFormView() formView {
	return formView{Action: "/students", Status: types.StatusActive, Statuses: types.Statuses}
}

func viewOf(s types.Student) formView {
	v := newFormView()
	v.ID = s.ID
	v.Action = fmt.Sprintf("/students/%d", s.ID)
	v.Name = s.Name
	v.Email = s.Email
	if s.DateOfBirth != nil {
		v.DateOfBirth = s.DateOfBirth.String()
	}
	if s.PhoneNumber != nil {
		v.PhoneNumber = *s.PhoneNumber
	}
	if s.Status != "" {
		v.Status = s.Status
	}
	return v
}

// List renders every student.
func List(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		students, err := svc.GetAll(r.Context())
		if err != nil {
			serverError(w, err)
			return
		}
		render(w, http.StatusOK, listPage, struct{ Students []types.Student }{students})
	}
}

// NewForm renders an empty form.
func NewForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, http.StatusOK, formPage, newFormView())
	}
}

// EditForm renders the form pre-filled with the stored student.
func EditForm(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		st, err := svc.GetByID(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			notFound(w, id)
			return
		}
		if err != nil {
			serverError(w, err)
			return
		}
		render(w, http.StatusOK, formPage, viewOf(st))
	}
}

// Create handles the new-student form submission.
func Create(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submit(w, r, svc, 0)
	}
}

// Update handles the edit form submission.
func Update(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		submit(w, r, svc, id)
	}
}

// Delete removes the student and returns to the list.
func Delete(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		err := svc.Delete(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			notFound(w, id)
			return
		}
		if err != nil {
			serverError(w, err)
			return
		}
		http.Redirect(w, r, "/students", http.StatusSeeOther)
	}
}

func submit(w http.ResponseWriter, r *http.Request, svc Service, id int64) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}

	view := newFormView()
	if id != 0 {
		view.ID = id
		view.Action = fmt.Sprintf("/students/%d", id)
	}
	view.Name = r.PostForm.Get("name")
	view.Email = r.PostForm.Get("email")
	view.DateOfBirth = strings.TrimSpace(r.PostForm.Get("dateOfBirth"))
	view.PhoneNumber = strings.TrimSpace(r.PostForm.Get("phoneNumber"))
	view.Status = types.Status(strings.ToUpper(strings.TrimSpace(r.PostForm.Get("status"))))

	st := types.Student{ID: id, Name: view.Name, Email: view.Email, Status: view.Status}
	if view.PhoneNumber != "" {
		st.PhoneNumber = &view.PhoneNumber
	}
	if view.DateOfBirth != "" {
		dob, err := types.ParseDate(view.DateOfBirth)
		if err != nil {
			view.Errors = []string{"Date of birth must be a date in YYYY-MM-DD form"}
			render(w, http.StatusBadRequest, formPage, view)
			return
		}
		st.DateOfBirth = &dob
	}

	_, err := svc.Save(r.Context(), st)

	var verr *validate.Error
	switch {
	case err == nil:
		http.Redirect(w, r, "/students", http.StatusSeeOther)
	case errors.As(err, &verr):
		view.Errors = verr.Details
		render(w, http.StatusBadRequest, formPage, view)
	case errors.Is(err, storage.ErrDuplicateEmail):
		view.Errors = []string{"A student with this email already exists"}
		render(w, http.StatusBadRequest, formPage, view)
	case errors.Is(err, storage.ErrNotFound):
		notFound(w, id)
	default:
		serverError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// render executes into a buffer first so a template error never leaves a
// half-written page behind a 200.
func render(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		serverError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func notFound(w http.ResponseWriter, id int64) {
	render(w, http.StatusNotFound, notFoundPage, struct{ Message string }{
		Message: fmt.Sprintf("Student not found with id: %d", id),
	})
}

func serverError(w http.ResponseWriter, err error) {
	slog.Error("page failed", slog.String("error", err.Error()))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
