package normalize

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
)

// SourceStore holds raw upload bytes between enqueue and the end of an item's lifecycle.
// Several queued items may share one ref (pages of the same PDF).
type SourceStore interface {
	Put(data []byte) string
	Get(ref string) ([]byte, error)
	Retain(ref string)
	Release(ref string)
}

type memoryEntry struct {
	data []byte
	refs int
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemoryStore() SourceStore {
	return &memoryStore{entries: map[string]*memoryEntry{}}
}

func (s *memoryStore) Put(data []byte) string {
	ref := uuid.NewString()
	s.mu.Lock()
	s.entries[ref] = &memoryEntry{data: data}
	s.mu.Unlock()
	return ref
}

func (s *memoryStore) Get(ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[ref]
	if !ok {
		return nil, fmt.Errorf("source %q: %w", ref, pkgerrors.ErrNotFound)
	}
	return e.data, nil
}

func (s *memoryStore) Retain(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[ref]; ok {
		e.refs++
	}
}

// Release drops one reference; the bytes are freed when none remain.
func (s *memoryStore) Release(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[ref]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(s.entries, ref)
	}
}
