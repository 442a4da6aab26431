package imagenotify

import (
	"context"
	"math/rand/v2"
)

// Extractor derives ImageMetaInfo records from a BlobStore. It never mutates
// the store.
type Extractor struct {
	store BlobStore
	intn  func(n int) int
}

// NewExtractor creates an Extractor reading from store.
func NewExtractor(store BlobStore) *Extractor {
	return &Extractor{store: store, intn: rand.IntN}
}

// MetaOf describes the object stored under name.
func (e *Extractor) MetaOf(ctx context.Context, name string) (*ImageMetaInfo, error) {
	info, err := e.store.Stat(ctx, name)
	if err != nil {
		return nil, err
	}

	ext, err := ExtensionOf(name)
	if err != nil {
		return nil, err
	}

	return &ImageMetaInfo{
		ImageName:     name,
		ContentLength: info.Size,
		LastModified:  info.LastModified.UTC(),
		FileExtension: ext,
	}, nil
}

// MetaOfRandom lists the store and describes one key chosen uniformly at
// random. The listing is repeated on every call.
func (e *Extractor) MetaOfRandom(ctx context.Context) (*ImageMetaInfo, error) {
	var keys []string
	for key, err := range e.store.ListAll(ctx) {
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return nil, ErrEmptyStore
	}

	return e.MetaOf(ctx, keys[e.intn(len(keys))])
}
