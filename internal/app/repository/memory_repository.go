package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sifan077/quotalink/internal/app/model"
)

type ownerURLKey struct {
	ownerID string
	url     string
}

// MemoryMappingStore is a process-local MappingStore. It enforces the same
// uniqueness constraints as the Postgres schema.
type MemoryMappingStore struct {
	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]*model.Mapping
	byCode     map[string]int64
	byOwnerURL map[ownerURLKey]int64
	now        func() time.Time
}

// NewMemoryMappingStore returns an empty in-memory store.
func NewMemoryMappingStore() *MemoryMappingStore {
	return &MemoryMappingStore{
		byID:       make(map[int64]*model.Mapping),
		byCode:     make(map[string]int64),
		byOwnerURL: make(map[ownerURLKey]int64),
		now:        time.Now,
	}
}

var _ MappingStore = (*MemoryMappingStore)(nil)

func (s *MemoryMappingStore) FindByOwnerAndURL(ctx context.Context, ownerID, originalURL string) (*model.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byOwnerURL[ownerURLKey{ownerID, originalURL}]
	if !ok {
		return nil, ErrMappingNotFound
	}
	return s.copyOf(id), nil
}

func (s *MemoryMappingStore) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, m := range s.byID {
		if m.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryMappingStore) Insert(ctx context.Context, ownerID, originalURL, code string) (*model.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byCode[code]; taken {
		return nil, ErrDuplicateCode
	}
	key := ownerURLKey{ownerID, originalURL}
	if _, exists := s.byOwnerURL[key]; exists {
		return nil, ErrDuplicateOwnerURL
	}

	s.nextID++
	m := &model.Mapping{
		ID:          s.nextID,
		OwnerID:     ownerID,
		OriginalURL: originalURL,
		Code:        code,
		CreatedAt:   s.now(),
	}
	s.byID[m.ID] = m
	s.byCode[code] = m.ID
	s.byOwnerURL[key] = m.ID

	out := *m
	return &out, nil
}

func (s *MemoryMappingStore) FindByCode(ctx context.Context, code string) (*model.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, ErrMappingNotFound
	}
	return s.copyOf(id), nil
}

func (s *MemoryMappingStore) IncrementClicks(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return ErrMappingNotFound
	}
	m.Clicks++
	return nil
}

func (s *MemoryMappingStore) ListByOwner(ctx context.Context, ownerID string) ([]model.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	result := make([]model.Mapping, 0)
	for _, m := range s.byID {
		if m.OwnerID == ownerID {
			result = append(result, *m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (s *MemoryMappingStore) FindByIDAndOwner(ctx context.Context, id int64, ownerID string) (*model.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok || m.OwnerID != ownerID {
		return nil, ErrMappingNotFound
	}
	return s.copyOf(id), nil
}

func (s *MemoryMappingStore) DeleteByID(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return ErrMappingNotFound
	}
	delete(s.byID, id)
	delete(s.byCode, m.Code)
	delete(s.byOwnerURL, ownerURLKey{m.OwnerID, m.OriginalURL})
	return nil
}

func (s *MemoryMappingStore) CountAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}

// copyOf must be called with s.mu held.
func (s *MemoryMappingStore) copyOf(id int64) *model.Mapping {
	out := *s.byID[id]
	return &out
}
