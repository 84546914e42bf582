package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/student-manager/internal/cache"
	studentsvc "github.com/aanand-mishra/student-manager/internal/service/student"
	"github.com/aanand-mishra/student-manager/internal/storage/sqlite"
	"github.com/aanand-mishra/student-manager/internal/types"
)

func newServer(t *testing.T) (http.Handler, *studentsvc.Service) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "students.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := studentsvc.New(store, cache.NewMemory(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	Register(mux, svc)
	return mux, svc
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func post(h http.Handler, target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTemplatesParse(t *testing.T) {
	for _, tmpl := range []string{"list.html", "form.html", "notfound.html"} {
		assert.NotPanics(t, func() { page(tmpl) }, tmpl)
	}
}

func TestListAndNewForm(t *testing.T) {
	h, svc := newServer(t)

	rec := get(h, "/students")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No students yet.")

	_, err := svc.Save(context.Background(), types.Student{Name: "Ada <Lovelace>", Email: "ada@example.com"})
	require.NoError(t, err)

	rec = get(h, "/students")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Ada &lt;Lovelace&gt;")
	assert.Contains(t, rec.Body.String(), `href="/students/1/edit"`)

	rec = get(h, "/students/new")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/students"`)
	assert.Contains(t, rec.Body.String(), "New student")
}

func TestCreateRedirectsToList(t *testing.T) {
	h, svc := newServer(t)

	rec := post(h, "/students", url.Values{
		"name":        {"John Doe"},
		"email":       {"john@example.com"},
		"dateOfBirth": {"2000-01-15"},
		"phoneNumber": {"+15550100123"},
		"status":      {"graduated"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/students", rec.Header().Get("Location"))

	got, err := svc.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, types.StatusGraduated, got.Status)
	assert.Equal(t, "2000-01-15", got.DateOfBirth.String())
	require.NotNil(t, got.PhoneNumber)
}

func TestCreateRerendersOnInvalidInput(t *testing.T) {
	h, svc := newServer(t)

	rec := post(h, "/students", url.Values{"name": {"J"}, "email": {"bad"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `class="errors"`)
	assert.Contains(t, body, "Please provide a valid email address")
	assert.Contains(t, body, `value="bad"`)

	rec = post(h, "/students", url.Values{"name": {"John"}, "email": {"j@example.com"}, "dateOfBirth": {"yesterday"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="yesterday"`)

	all, err := svc.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateDuplicateEmailRerenders(t *testing.T) {
	h, _ := newServer(t)
	form := url.Values{"name": {"John Doe"}, "email": {"john@example.com"}}
	require.Equal(t, http.StatusSeeOther, post(h, "/students", form).Code)

	rec := post(h, "/students", form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")
}

func TestEditAndUpdate(t *testing.T) {
	h, svc := newServer(t)
	created, err := svc.Save(context.Background(), types.Student{Name: "John Doe", Email: "john@example.com"})
	require.NoError(t, err)

	rec := get(h, "/students/1/edit")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="John Doe"`)
	assert.Contains(t, rec.Body.String(), `action="/students/1"`)

	rec = post(h, "/students/1", url.Values{"name": {"John Smith"}, "email": {"john@example.com"}, "status": {"INACTIVE"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	got, err := svc.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "John Smith", got.Name)
	assert.Equal(t, types.StatusInactive, got.Status)
}

func TestMissingStudentPages(t *testing.T) {
	h, _ := newServer(t)

	rec := get(h, "/students/5/edit")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Student not found with id: 5")

	rec = post(h, "/students/5", url.Values{"name": {"Ghost"}, "email": {"ghost@example.com"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = post(h, "/students/5/delete", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(h, "/students/abc/edit")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteRedirects(t *testing.T) {
	h, svc := newServer(t)
	_, err := svc.Save(context.Background(), types.Student{Name: "John Doe", Email: "john@example.com"})
	require.NoError(t, err)

	rec := post(h, "/students/1/delete", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	all, err := svc.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}
