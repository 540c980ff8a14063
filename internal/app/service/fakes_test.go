package service

import (
	"context"
	"sync"

	"github.com/sifan077/quotalink/internal/app/model"
	"github.com/sifan077/quotalink/internal/app/repository"
)

// faultyStore delegates to an in-memory store unless a hook is set.
type faultyStore struct {
	*repository.MemoryMappingStore
	findByOwnerAndURLFn func(ctx context.Context, ownerID, originalURL string) (*model.Mapping, error)
	insertFn            func(ctx context.Context, ownerID, originalURL, code string) (*model.Mapping, error)
	incrementFn         func(ctx context.Context, id int64) error
	findByCodeFn        func(ctx context.Context, code string) (*model.Mapping, error)
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryMappingStore: repository.NewMemoryMappingStore()}
}

func (s *faultyStore) FindByOwnerAndURL(ctx context.Context, ownerID, originalURL string) (*model.Mapping, error) {
	if s.findByOwnerAndURLFn != nil {
		return s.findByOwnerAndURLFn(ctx, ownerID, originalURL)
	}
	return s.MemoryMappingStore.FindByOwnerAndURL(ctx, ownerID, originalURL)
}

func (s *faultyStore) Insert(ctx context.Context, ownerID, originalURL, code string) (*model.Mapping, error) {
	if s.insertFn != nil {
		return s.insertFn(ctx, ownerID, originalURL, code)
	}
	return s.MemoryMappingStore.Insert(ctx, ownerID, originalURL, code)
}

func (s *faultyStore) IncrementClicks(ctx context.Context, id int64) error {
	if s.incrementFn != nil {
		return s.incrementFn(ctx, id)
	}
	return s.MemoryMappingStore.IncrementClicks(ctx, id)
}

func (s *faultyStore) FindByCode(ctx context.Context, code string) (*model.Mapping, error) {
	if s.findByCodeFn != nil {
		return s.findByCodeFn(ctx, code)
	}
	return s.MemoryMappingStore.FindByCode(ctx, code)
}

// scriptedGenerator returns codes in order, repeating the last one.
type scriptedGenerator struct {
	mu         sync.Mutex
	codes      []string
	next       int
	remembered []string
}

func (g *scriptedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	code := g.codes[g.next]
	if g.next < len(g.codes)-1 {
		g.next++
	}
	return code
}

func (g *scriptedGenerator) Remember(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.remembered = append(g.remembered, code)
}

// memoryCache is a MappingCache kept in a map.
type memoryCache struct {
	mu          sync.Mutex
	entries     map[string]model.Mapping
	getErr      error
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]model.Mapping)}
}

func (c *memoryCache) Get(_ context.Context, code string) (*model.Mapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	m, ok := c.entries[code]
	if !ok {
		return nil, repository.ErrCacheMiss
	}
	return &m, nil
}

func (c *memoryCache) Set(_ context.Context, m *model.Mapping) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[m.Code] = *m
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, code)
	c.invalidated = append(c.invalidated, code)
	return nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	deleted []model.Mapping
	err     error
}

func (p *recordingPublisher) PublishDeleted(_ context.Context, m *model.Mapping) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, *m)
	return p.err
}
