package student

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/student-manager/internal/audit"
	"github.com/aanand-mishra/student-manager/internal/cache"
	"github.com/aanand-mishra/student-manager/internal/storage"
	"github.com/aanand-mishra/student-manager/internal/storage/sqlite"
	"github.com/aanand-mishra/student-manager/internal/storage/sqlstore"
	"github.com/aanand-mishra/student-manager/internal/types"
	"github.com/aanand-mishra/student-manager/internal/validate"
)

var fixedNow = time.Date(2024, 4, 1, 8, 30, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *sqlstore.Store
	cache *cache.Memory
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "students.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mem := cache.NewMemory()
	auditor := audit.New("system").WithClock(func() time.Time { return fixedNow })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return fixture{svc: New(store, mem, auditor, log), store: store, cache: mem}
}

func (f fixture) create(t *testing.T, name, email string) types.Student {
	t.Helper()
	s, err := f.svc.Save(context.Background(), types.Student{Name: name, Email: email})
	require.NoError(t, err)
	return s
}

func TestSaveCreatesWithDefaultsAndAudit(t *testing.T) {
	f := newFixture(t)
	ctx := audit.WithActor(context.Background(), "registrar")

	s, err := f.svc.Save(ctx, types.Student{
		Name:      "  John Doe ",
		Email:     "john@example.com",
		CreatedBy: "client",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), s.ID)
	assert.Equal(t, "John Doe", s.Name)
	assert.Equal(t, types.StatusActive, s.Status)
	assert.Equal(t, "registrar", s.CreatedBy)
	assert.True(t, fixedNow.Equal(s.CreatedDate))
	require.NotNil(t, s.LastModifiedBy)
	assert.Equal(t, "registrar", *s.LastModifiedBy)
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Save(context.Background(), types.Student{Name: "J", Email: "nope"})
	var verr *validate.Error
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Details, 2)

	all, err := f.svc.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSaveNormalisesStatusAndBlankDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.svc.Save(ctx, types.Student{
		Name:        "John Doe",
		Email:       "john@example.com",
		Status:      "graduated",
		DateOfBirth: &types.Date{},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusGraduated, s.Status)
	assert.Nil(t, s.DateOfBirth)

	_, err = f.svc.Save(ctx, types.Student{Name: "Jane Doe", Email: "jane@example.com", Status: "expelled"})
	var verr *validate.Error
	assert.ErrorAs(t, err, &verr)
}

func TestSaveDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.create(t, "John Doe", "john@example.com")

	_, err := f.svc.Save(context.Background(), types.Student{Name: "Other", Email: "john@example.com"})
	assert.ErrorIs(t, err, storage.ErrDuplicateEmail)
}

func TestSaveUpdateKeepsIdentityAndCreation(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "John Doe", "john@example.com")

	ctx := audit.WithActor(context.Background(), "editor")
	upd := created
	upd.Name = "John Smith"
	upd.Status = types.StatusInactive
	upd.CreatedBy = "forged"

	saved, err := f.svc.Save(ctx, upd)
	require.NoError(t, err)

	assert.Equal(t, created.ID, saved.ID)
	assert.Equal(t, "John Smith", saved.Name)
	assert.Equal(t, types.StatusInactive, saved.Status)
	assert.Equal(t, "system", saved.CreatedBy)
	assert.Equal(t, "editor", *saved.LastModifiedBy)

	got, err := f.svc.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "John Smith", got.Name)
}

func TestSaveUpdateAbsent(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Save(context.Background(), types.Student{ID: 77, Name: "Ghost", Email: "ghost@example.com"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteThenGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t, "John Doe", "john@example.com")

	_, err := f.svc.GetByID(ctx, s.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, s.ID))

	_, err = f.svc.GetByID(ctx, s.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, s.ID), storage.ErrNotFound)
}

func TestReadThroughServesCachedRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t, "John Doe", "john@example.com")

	// Change the row behind the service's back: the cached copy still wins.
	_, err := f.store.UpdateStatus(ctx, s.ID, types.StatusSuspended, "dba", fixedNow)
	require.NoError(t, err)

	got, err := f.svc.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, got.Status)

	// A write through the service evicts the key.
	ok, err := f.svc.UpdateStatus(ctx, s.ID, types.StatusGraduated)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = f.svc.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusGraduated, got.Status)
}

func TestWritesEvictQueryResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "Zoe", "zoe@example.com")

	active, err := f.svc.FindByStatus(ctx, types.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)

	f.create(t, "Adam", "adam@example.com")

	active, err = f.svc.FindByStatusOrdered(ctx, types.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, []string{"Adam", "Zoe"}, []string{active[0].Name, active[1].Name})

	active, err = f.svc.FindByStatus(ctx, types.StatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	n, err := f.svc.CountByStatus(ctx, types.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, f.svc.Delete(ctx, active[0].ID))

	n, err = f.svc.CountByStatus(ctx, types.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAbsenceIsNotCached(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetByID(context.Background(), 1)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, ok, err := f.cache.Get(context.Background(), recordKey(1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dob, err := types.ParseDate("2001-05-05")
	require.NoError(t, err)

	alice, err := f.svc.Save(ctx, types.Student{Name: "Alice Johnson", Email: "alice@school.org", DateOfBirth: &dob})
	require.NoError(t, err)
	f.create(t, "Bob Stone", "bob.johnson@mail.com")

	page, err := f.svc.Search(ctx, "JOHNSON", types.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.TotalElements)
	assert.Equal(t, types.DefaultPageSize, page.Size)

	byName, err := f.svc.FindByNameContaining(ctx, "alice", types.PageRequest{Size: 1})
	require.NoError(t, err)
	require.Len(t, byName.Content, 1)
	assert.Equal(t, alice.ID, byName.Content[0].ID)

	byEmail, err := f.svc.FindByEmail(ctx, "bob.johnson@mail.com")
	require.NoError(t, err)
	assert.Equal(t, "Bob Stone", byEmail.Name)

	from, _ := types.ParseDate("2001-01-01")
	to, _ := types.ParseDate("2001-12-31")
	born, err := f.svc.FindByDateOfBirthBetween(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, born, 1)
	assert.Equal(t, "2001-05-05", born[0].DateOfBirth.String())

	_, err = f.svc.FindByDateOfBirthBetween(ctx, to, from)
	var verr *validate.Error
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.UpdateStatus(ctx, alice.ID, types.StatusInactive)
	require.NoError(t, err)

	multi, err := f.svc.FindByMultipleStatuses(ctx, []types.Status{types.StatusInactive, types.StatusActive, types.StatusInactive})
	require.NoError(t, err)
	assert.Len(t, multi, 2)

	activePage, err := f.svc.FindActive(ctx, types.PageRequest{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), activePage.TotalElements)

	all, err := f.svc.GetAllPaged(ctx, types.PageRequest{Page: 0, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, all.TotalPages)
}

func TestUpdateStatusRejectsUnknownAndReportsAbsent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateStatus(context.Background(), 1, "EXPELLED")
	var verr *validate.Error
	assert.ErrorAs(t, err, &verr)

	ok, err := f.svc.UpdateStatus(context.Background(), 1, types.StatusActive)
	require.NoError(t, err)
	assert.False(t, ok)
}

// brokenCache fails every call; the service must keep working off the store.
type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errCacheDown }
func (brokenCache) Set(context.Context, string, []byte) error         { return errCacheDown }
func (brokenCache) Delete(context.Context, ...string) error           { return errCacheDown }
func (brokenCache) DeletePrefix(context.Context, string) error        { return errCacheDown }
func (brokenCache) Close() error                                      { return nil }

func TestCacheFailuresFallBackToStore(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "students.db"))
	require.NoError(t, err)
	defer store.Close()

	svc := New(store, brokenCache{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	s, err := svc.Save(ctx, types.Student{Name: "John Doe", Email: "john@example.com"})
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Email, got.Email)
}

func TestUniqueStatuses(t *testing.T) {
	got := uniqueStatuses([]types.Status{types.StatusSuspended, types.StatusActive, types.StatusSuspended})
	assert.Equal(t, []types.Status{types.StatusActive, types.StatusSuspended}, got)
}
