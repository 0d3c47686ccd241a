package cache

import (
	"context"
	"time"
)

const (
	DefaultAbsoluteTTL = 10 * time.Minute
	DefaultSlidingTTL  = 2 * time.Minute
)

// Policy bounds an entry's lifetime. Absolute is fixed when the entry is stored;
// Sliding is renewed on every hit but never past the absolute deadline.
type Policy struct {
	Absolute time.Duration
	Sliding  time.Duration
}

// DefaultPolicy returns the 10 minute absolute / 2 minute sliding policy.
func DefaultPolicy() Policy {
	return Policy{Absolute: DefaultAbsoluteTTL, Sliding: DefaultSlidingTTL}
}

func (p Policy) normalize() Policy {
	if p.Absolute <= 0 {
		p.Absolute = DefaultAbsoluteTTL
	}
	if p.Sliding <= 0 || p.Sliding > p.Absolute {
		p.Sliding = p.Absolute
	}
	return p
}

// Loader produces the value for a missing key.
type Loader func(ctx context.Context) ([]byte, error)

// Cache is a read-through byte cache. Loader errors are returned to the caller and never stored.
type Cache interface {
	GetOrLoad(ctx context.Context, key string, policy Policy, load Loader) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
}

// Noop calls the loader on every read.
type Noop struct{}

func (Noop) GetOrLoad(ctx context.Context, _ string, _ Policy, load Loader) ([]byte, error) {
	return load(ctx)
}

func (Noop) Delete(context.Context, ...string) error { return nil }

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
