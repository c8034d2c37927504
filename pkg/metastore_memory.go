package metacache

import (
	"context"
	"sync"
)

// MemoryMetadataStore is an in-memory MetadataStore. Used as the
// no-persistence mode and as the store of choice in tests. Records are
// copied on the way in and out so callers cannot mutate shared state.
type MemoryMetadataStore struct {
	mu    sync.RWMutex
	metas map[string]FileMeta
}

func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{
		metas: map[string]FileMeta{},
	}
}

func (s *MemoryMetadataStore) Get(ctx context.Context, path string) (*FileMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.metas[path]
	if !ok {
		return nil, ErrMetaNotFound
	}

	return &meta, nil
}

func (s *MemoryMetadataStore) Put(ctx context.Context, path string, meta *FileMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.metas[path] = *meta
	return nil
}

func (s *MemoryMetadataStore) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.metas, path)
	return nil
}

func (s *MemoryMetadataStore) Paths(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.metas))
	for path := range s.metas {
		paths = append(paths, path)
	}

	return paths, nil
}

func (s *MemoryMetadataStore) Close() error {
	return nil
}
