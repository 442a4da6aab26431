package imagenotify

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// resolver caches an identifier looked up from a logical name. The cached
// value lives as long as the owning client and is dropped by reset.
// Concurrent misses share one lookup, and the cache lock is never held
// across it.
type resolver struct {
	mu     sync.Mutex
	id     string
	group  singleflight.Group
	lookup func(ctx context.Context) (string, error)
}

func newResolver(lookup func(ctx context.Context) (string, error)) *resolver {
	return &resolver{lookup: lookup}
}

func (r *resolver) cached() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

func (r *resolver) get(ctx context.Context) (string, error) {
	if id := r.cached(); id != "" {
		return id, nil
	}

	v, err, _ := r.group.Do("resolve", func() (any, error) {
		id, err := r.lookup(ctx)
		if err != nil {
			return "", err
		}
		r.mu.Lock()
		r.id = id
		r.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// resetOn drops the cached identifier when err says the resolved resource
// no longer exists, so the next call resolves the name again.
func (r *resolver) resetOn(err error) {
	if err == nil || !IsNotFound(err) {
		return
	}
	r.mu.Lock()
	r.id = ""
	r.mu.Unlock()
}
