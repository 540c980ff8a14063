package service

import (
	"context"
	"errors"
	"time"

	"github.com/sifan077/quotalink/internal/app/model"
	"github.com/sifan077/quotalink/internal/app/repository"
	"go.uber.org/zap"
)

// Listing is an owner's mappings, newest first, with quota figures.
type Listing struct {
	Mappings  []model.Mapping
	Total     int64
	Max       int
	Remaining int64
}

// MappingService exposes owner-scoped reads and deletion. A mapping owned by
// someone else is reported exactly like an absent one.
type MappingService interface {
	ListForOwner(ctx context.Context, ownerID string) (*Listing, error)
	GetOne(ctx context.Context, ownerID string, id int64) (*model.Mapping, error)
	Delete(ctx context.Context, ownerID string, id int64) error
}

// EventPublisher announces deletions to other instances.
type EventPublisher interface {
	PublishDeleted(ctx context.Context, m *model.Mapping) error
}

// MappingDeps groups the collaborators of the mapping service.
type MappingDeps struct {
	Logger       *zap.Logger
	Store        repository.MappingStore
	Cache        repository.MappingCache
	Events       EventPublisher
	Quota        int
	StoreTimeout time.Duration
}

type mappingService struct {
	logger  *zap.Logger
	store   repository.MappingStore
	cache   repository.MappingCache
	events  EventPublisher
	quota   int
	timeout time.Duration
}

// NewMappingService returns a MappingService. Cache and Events may be nil.
func NewMappingService(deps MappingDeps) MappingService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	quota := deps.Quota
	if quota <= 0 {
		quota = DefaultQuota
	}
	return &mappingService{
		logger:  logger,
		store:   deps.Store,
		cache:   deps.Cache,
		events:  deps.Events,
		quota:   quota,
		timeout: deps.StoreTimeout,
	}
}

func (s *mappingService) ListForOwner(ctx context.Context, ownerID string) (*Listing, error) {
	callCtx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	mappings, err := s.store.ListByOwner(callCtx, ownerID)
	if err != nil {
		return nil, storeErr("list mappings", err)
	}

	total := int64(len(mappings))
	remaining := int64(s.quota) - total
	if remaining < 0 {
		remaining = 0
	}
	return &Listing{
		Mappings:  mappings,
		Total:     total,
		Max:       s.quota,
		Remaining: remaining,
	}, nil
}

func (s *mappingService) GetOne(ctx context.Context, ownerID string, id int64) (*model.Mapping, error) {
	callCtx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	m, err := s.store.FindByIDAndOwner(callCtx, id, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("get mapping", err)
	}
	return m, nil
}

func (s *mappingService) Delete(ctx context.Context, ownerID string, id int64) error {
	m, err := s.GetOne(ctx, ownerID, id)
	if err != nil {
		return err
	}

	callCtx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.DeleteByID(callCtx, m.ID); err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			return ErrNotFound
		}
		return storeErr("delete mapping", err)
	}

	s.logger.Info("mapping deleted",
		zap.String("owner_id", ownerID),
		zap.Int64("id", m.ID),
		zap.String("code", m.Code),
	)

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, m.Code); err != nil {
			s.logger.Warn("failed to evict cached mapping", zap.String("code", m.Code), zap.Error(err))
		}
	}
	if s.events != nil {
		if err := s.events.PublishDeleted(ctx, m); err != nil {
			s.logger.Warn("failed to publish mapping deletion", zap.String("code", m.Code), zap.Error(err))
		}
	}
	return nil
}
