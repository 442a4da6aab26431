package memory

import (
	"bytes"
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/tendant/image-notify/pkg/imagenotify"
)

const backendName = "memory"

type object struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// Backend is an in-memory implementation of the imagenotify.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]object),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Put stores a copy of data under key
func (b *Backend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = object{
		data:         bytes.Clone(data),
		contentType:  contentType,
		lastModified: b.now(),
	}
	return nil
}

// Get returns a copy of the bytes stored under key
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, &imagenotify.StorageError{Backend: backendName, Key: key, Op: "get", Err: imagenotify.ErrObjectNotFound}
	}
	return bytes.Clone(obj.data), nil
}

// Delete removes key; absent keys are ignored
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, key)
	return nil
}

// Stat reports size and modification time of key
func (b *Backend) Stat(ctx context.Context, key string) (*imagenotify.ObjectInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, &imagenotify.StorageError{Backend: backendName, Key: key, Op: "stat", Err: imagenotify.ErrObjectNotFound}
	}
	return &imagenotify.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: obj.lastModified,
		ContentType:  obj.contentType,
	}, nil
}

// ListAll yields a sorted snapshot of the keys taken when ranging starts
func (b *Backend) ListAll(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		b.mu.RLock()
		keys := make([]string, 0, len(b.objects))
		for key := range b.objects {
			keys = append(keys, key)
		}
		b.mu.RUnlock()
		slices.Sort(keys)

		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(key, nil) {
				return
			}
		}
	}
}
