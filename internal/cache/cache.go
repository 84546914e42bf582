// Package cache provides the key-value store the student service reads
// through. Entries never expire on their own and there is no size bound:
// the only way a key leaves the cache is an explicit Delete or
// DeletePrefix issued by a write path.
//
// Values are opaque bytes (the service stores JSON), so every backend hands
// out independent copies and callers can never mutate a shared entry.
package cache

import (
	"context"
	"fmt"
	"strings"
)

// Cache is the contract every backend satisfies.
type Cache interface {
	// Get returns the stored value and true, or nil and false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix removes every key that starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	Close() error
}

// Driver names accepted by New.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverNone   = "none"
)

// New builds the backend selected by driver. redisURL is only used by the
// redis driver.
func New(ctx context.Context, driver, redisURL string) (Cache, error) {
	switch strings.ToLower(driver) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverRedis:
		return NewRedis(ctx, redisURL)
	case DriverNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("cache.New: unknown driver %q", driver)
	}
}

// Noop never stores anything; every Get is a miss.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte) error         { return nil }
func (Noop) Delete(context.Context, ...string) error           { return nil }
func (Noop) DeletePrefix(context.Context, string) error        { return nil }
func (Noop) Close() error                                      { return nil }
