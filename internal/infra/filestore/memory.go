package filestore

import (
	"context"
	"fmt"
	"sync"

	"bloodlink/internal/domain"

	"github.com/google/uuid"
)

// MemoryStore keeps uploaded certificate bytes in memory. Used in dev mode
// and tests. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (s *MemoryStore) Upload(ctx context.Context, ownerID, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", domain.ErrMissingFile
	}
	locator := fmt.Sprintf("mem://%s/%s", ownerID, uuid.NewString())

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	s.files[locator] = stored
	return locator, nil
}

func (s *MemoryStore) Download(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.files[locator]
	if !ok {
		return nil, fmt.Errorf("%w: file %s", domain.ErrNotFound, locator)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
