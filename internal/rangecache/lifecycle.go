package rangecache

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"asnlog/internal/rangestore"
)

// Backend abstracts where the serialized range cache lives. Load's second
// return value is false when no cache exists yet, which is a normal first
// run rather than an error.
type Backend interface {
	Load(ctx context.Context) ([]byte, bool, error)
	Store(ctx context.Context, data []byte) error
	Description() string
}

// Open builds the RangeStore from the backend. An absent cache yields an
// empty store; a present-but-undecodable one fails with
// domain.ErrCacheCorrupt and the run must not silently proceed.
func Open(ctx context.Context, backend Backend) (*rangestore.Store, error) {
	data, found, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("read range cache from %s: %w", backend.Description(), err)
	}
	if !found {
		log.Debug("No existing range cache, starting empty", "backend", backend.Description())
		return rangestore.New(), nil
	}

	store, err := rangestore.Load(data)
	if err != nil {
		return nil, fmt.Errorf("load range cache from %s: %w", backend.Description(), err)
	}
	log.Debug("Loaded range cache", "backend", backend.Description(), "ranges", store.Len())
	return store, nil
}

// Close persists the store back to the backend, but only when net-new ranges
// were added during the run; an unchanged cache is never rewritten. A write
// failure is reported to the caller without invalidating the resolutions the
// run already produced.
func Close(ctx context.Context, backend Backend, store *rangestore.Store) error {
	if !store.Dirty() {
		log.Debug("Range cache unchanged, skipping write", "backend", backend.Description())
		return nil
	}

	data, err := store.Dump()
	if err != nil {
		return fmt.Errorf("serialize range cache: %w", err)
	}
	if err := backend.Store(ctx, data); err != nil {
		return fmt.Errorf("write range cache to %s: %w", backend.Description(), err)
	}
	log.Debug("Wrote range cache", "backend", backend.Description(), "ranges", store.Len())
	return nil
}
