// Package student is the domain service for students. It owns three
// cross-cutting concerns the storage layer knows nothing about:
//
//   - transaction scope: every call runs inside storage.InTx, read-only
//     for queries and read-write for mutations;
//   - read-through caching: queries consult the cache first and populate
//     it on a miss; every write evicts the affected keys after commit;
//   - the before-save hook: defaults, validation and audit stamping.
package student

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/aanand-mishra/student-manager/internal/audit"
	"github.com/aanand-mishra/student-manager/internal/cache"
	"github.com/aanand-mishra/student-manager/internal/metrics"
	"github.com/aanand-mishra/student-manager/internal/storage"
	"github.com/aanand-mishra/student-manager/internal/types"
	"github.com/aanand-mishra/student-manager/internal/validate"
)

// Cache key layout. Single records live under "student:<id>"; every query
// result lives under "students:" so one prefix eviction clears them all.
const (
	recordPrefix = "student:"
	queryPrefix  = "students:"
)

// Service orchestrates storage calls for the HTTP facades.
type Service struct {
	store   storage.Storage
	cache   cache.Cache
	auditor *audit.Auditor
	log     *slog.Logger
}

// New wires the service. A nil cache disables caching; a nil logger
// uses slog.Default().
func New(store storage.Storage, c cache.Cache, auditor *audit.Auditor, log *slog.Logger) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	if auditor == nil {
		auditor = audit.New("")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, cache: c, auditor: auditor, log: log}
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Save inserts s when s.ID is zero and replaces the existing record
// otherwise. An empty status defaults to ACTIVE and any other status is
// matched case-insensitively; a blank date of birth is treated as absent.
// Returns *validate.Error, storage.ErrNotFound or storage.ErrDuplicateEmail
// on the expected failure paths.
func (s *Service) Save(ctx context.Context, st types.Student) (types.Student, error) {
	st.Name = strings.TrimSpace(st.Name)
	st.Email = strings.TrimSpace(st.Email)
	if st.PhoneNumber != nil && strings.TrimSpace(*st.PhoneNumber) == "" {
		st.PhoneNumber = nil
	}
	if st.DateOfBirth != nil && st.DateOfBirth.IsZero() {
		st.DateOfBirth = nil
	}
	if st.Status == "" {
		st.Status = types.StatusActive
	} else if parsed, err := types.ParseStatus(string(st.Status)); err == nil {
		st.Status = parsed
	}

	if err := validate.Struct(st); err != nil {
		return types.Student{}, err
	}

	isNew := st.ID == 0
	s.auditor.Stamp(ctx, &st, isNew)

	var saved types.Student
	err := s.store.InTx(ctx, false, func(q storage.Queries) error {
		var err error
		saved, err = q.Save(ctx, st)
		return err
	})
	if err != nil {
		return types.Student{}, err
	}

	s.invalidate(ctx, saved.ID)
	s.put(ctx, recordKey(saved.ID), saved)

	if isNew {
		s.log.Info("student created", slog.Int64("id", saved.ID))
	} else {
		s.log.Info("student updated", slog.Int64("id", saved.ID))
	}
	return saved, nil
}

// Delete removes the student; storage.ErrNotFound if it does not exist.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.InTx(ctx, false, func(q storage.Queries) error {
		return q.DeleteByID(ctx, id)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, id)
	s.log.Info("student deleted", slog.Int64("id", id))
	return nil
}

// UpdateStatus sets only the status of one student and reports whether
// a row was changed.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status types.Status) (bool, error) {
	if _, err := types.ParseStatus(string(status)); err != nil {
		return false, &validate.Error{Details: []string{err.Error()}}
	}

	var n int64
	err := s.store.InTx(ctx, false, func(q storage.Queries) error {
		var err error
		n, err = q.UpdateStatus(ctx, id, status, s.auditor.Actor(ctx), s.auditor.Now())
		return err
	})
	if err != nil {
		return false, err
	}

	if n > 0 {
		s.invalidate(ctx, id)
		s.log.Info("student status updated", slog.Int64("id", id), slog.String("status", string(status)))
	}
	return n > 0, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads: every one goes through readThrough.
// ─────────────────────────────────────────────────────────────────────────────

func (s *Service) GetAll(ctx context.Context) ([]types.Student, error) {
	return readThrough(ctx, s, "get_all", queryKey("all"), func(q storage.Queries) ([]types.Student, error) {
		return q.FindAll(ctx)
	})
}

func (s *Service) GetAllPaged(ctx context.Context, page types.PageRequest) (types.Page[types.Student], error) {
	page = page.Normalize()
	return readThrough(ctx, s, "get_all_paged", queryKey("page", pageKey(page)), func(q storage.Queries) (types.Page[types.Student], error) {
		return q.FindAllPaged(ctx, page)
	})
}

// GetByID returns storage.ErrNotFound when absent. Absence is never cached.
func (s *Service) GetByID(ctx context.Context, id int64) (types.Student, error) {
	return readThrough(ctx, s, "get_by_id", recordKey(id), func(q storage.Queries) (types.Student, error) {
		return q.FindByID(ctx, id)
	})
}

func (s *Service) FindByEmail(ctx context.Context, email string) (types.Student, error) {
	return readThrough(ctx, s, "find_by_email", queryKey("email", email), func(q storage.Queries) (types.Student, error) {
		return q.FindByEmail(ctx, email)
	})
}

func (s *Service) Search(ctx context.Context, keyword string, page types.PageRequest) (types.Page[types.Student], error) {
	page = page.Normalize()
	return readThrough(ctx, s, "search", queryKey("search", keyword, pageKey(page)), func(q storage.Queries) (types.Page[types.Student], error) {
		return q.Search(ctx, keyword, page)
	})
}

func (s *Service) FindByNameContaining(ctx context.Context, name string, page types.PageRequest) (types.Page[types.Student], error) {
	page = page.Normalize()
	return readThrough(ctx, s, "find_by_name", queryKey("name", name, pageKey(page)), func(q storage.Queries) (types.Page[types.Student], error) {
		return q.FindByNameContaining(ctx, name, page)
	})
}

func (s *Service) FindActive(ctx context.Context, page types.PageRequest) (types.Page[types.Student], error) {
	page = page.Normalize()
	return readThrough(ctx, s, "find_active", queryKey("active", pageKey(page)), func(q storage.Queries) (types.Page[types.Student], error) {
		return q.FindActive(ctx, page)
	})
}

func (s *Service) FindByStatus(ctx context.Context, status types.Status) ([]types.Student, error) {
	return readThrough(ctx, s, "find_by_status", queryKey("status", string(status)), func(q storage.Queries) ([]types.Student, error) {
		return q.FindByStatus(ctx, status)
	})
}

// FindByStatusOrdered is FindByStatus sorted ascending by name.
func (s *Service) FindByStatusOrdered(ctx context.Context, status types.Status) ([]types.Student, error) {
	return readThrough(ctx, s, "find_by_status_ordered", queryKey("status-ordered", string(status)), func(q storage.Queries) ([]types.Student, error) {
		return q.FindByStatusOrderByName(ctx, status)
	})
}

func (s *Service) FindByMultipleStatuses(ctx context.Context, statuses []types.Status) ([]types.Student, error) {
	statuses = uniqueStatuses(statuses)

	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	return readThrough(ctx, s, "find_by_statuses", queryKey("status-in", strings.Join(names, ",")), func(q storage.Queries) ([]types.Student, error) {
		return q.FindByStatusIn(ctx, statuses)
	})
}

// FindByDateOfBirthBetween uses inclusive bounds. from after to is a
// validation error rather than an empty result.
func (s *Service) FindByDateOfBirthBetween(ctx context.Context, from, to types.Date) ([]types.Student, error) {
	if to.Before(from) {
		return nil, &validate.Error{Details: []string{
			fmt.Sprintf("from (%s) must not be after to (%s)", from, to),
		}}
	}
	return readThrough(ctx, s, "find_by_birth_range", queryKey("born", from.String(), to.String()), func(q storage.Queries) ([]types.Student, error) {
		return q.FindByDateOfBirthBetween(ctx, from, to)
	})
}

func (s *Service) CountByStatus(ctx context.Context, status types.Status) (int64, error) {
	return readThrough(ctx, s, "count_by_status", queryKey("count", string(status)), func(q storage.Queries) (int64, error) {
		return q.CountByStatus(ctx, status)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Cache plumbing
// ─────────────────────────────────────────────────────────────────────────────

// readThrough serves key from the cache, or runs load in a read-only
// transaction and stores the result. Cache failures are logged and never
// fail the call. Errors from load, including storage.ErrNotFound, are
// returned uncached.
func readThrough[T any](ctx context.Context, s *Service, op, key string, load func(q storage.Queries) (T, error)) (T, error) {
	var out T

	raw, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.log.Warn("cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	case ok:
		if err := json.Unmarshal(raw, &out); err == nil {
			metrics.RecordCacheLookup(op, true)
			return out, nil
		}
		s.log.Warn("discarding undecodable cache entry", slog.String("key", key))
		out = *new(T)
	}
	metrics.RecordCacheLookup(op, false)

	err = s.store.InTx(ctx, true, func(q storage.Queries) error {
		var err error
		out, err = load(q)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}

	s.put(ctx, key, out)
	return out, nil
}

func (s *Service) put(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.log.Warn("cache encode failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := s.cache.Set(ctx, key, raw); err != nil {
		s.log.Warn("cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// invalidate drops the record key for id and every cached query result.
func (s *Service) invalidate(ctx context.Context, id int64) {
	metrics.RecordCacheEviction()

	err := errors.Join(
		s.cache.Delete(ctx, recordKey(id)),
		s.cache.DeletePrefix(ctx, queryPrefix),
	)
	if err != nil {
		s.log.Error("cache invalidation failed", slog.Int64("id", id), slog.String("error", err.Error()))
	}
}

func recordKey(id int64) string {
	return recordPrefix + strconv.FormatInt(id, 10)
}

func queryKey(parts ...string) string {
	return queryPrefix + strings.Join(parts, ":")
}

func pageKey(p types.PageRequest) string {
	return strconv.Itoa(p.Page) + ":" + strconv.Itoa(p.Size)
}

// uniqueStatuses sorts and de-duplicates so equivalent sets share a key.
func uniqueStatuses(in []types.Status) []types.Status {
	seen := make(map[types.Status]struct{}, len(in))
	out := make([]types.Status, 0, len(in))
	for _, st := range in {
		if _, ok := seen[st]; ok {
			continue
		}
		seen[st] = struct{}{}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
