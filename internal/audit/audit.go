// Package audit stamps creation and modification metadata onto students
// before they are written. The service calls Stamp explicitly on every
// save path; nothing is populated behind its back.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/aanand-mishra/student-manager/internal/types"
)

type actorKey struct{}

// WithActor returns a copy of ctx carrying the acting user.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored in ctx, if any.
func ActorFrom(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey{}).(string)
	if !ok || strings.TrimSpace(actor) == "" {
		return "", false
	}
	return actor, true
}

// Auditor resolves the current actor and time.
type Auditor struct {
	defaultActor string
	now          func() time.Time
}

// New returns an Auditor that falls back to defaultActor when the
// request context carries none.
func New(defaultActor string) *Auditor {
	if defaultActor == "" {
		defaultActor = "system"
	}
	return &Auditor{defaultActor: defaultActor, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (a *Auditor) WithClock(now func() time.Time) *Auditor {
	a.now = now
	return a
}

// Actor returns the actor for ctx.
func (a *Auditor) Actor(ctx context.Context) string {
	if actor, ok := ActorFrom(ctx); ok {
		return actor
	}
	return a.defaultActor
}

// Now returns the current audit timestamp in UTC, truncated to microseconds
// so it survives a round trip through either database.
func (a *Auditor) Now() time.Time {
	return a.now().UTC().Truncate(time.Microsecond)
}

// Stamp sets the created fields when isNew and the modification fields always.
// Any audit values supplied by a client are overwritten.
func (a *Auditor) Stamp(ctx context.Context, s *types.Student, isNew bool) {
	actor := a.Actor(ctx)
	now := a.Now()

	if isNew {
		s.CreatedDate = now
		s.CreatedBy = actor
	}
	s.LastModifiedDate = &now
	s.LastModifiedBy = &actor
}
