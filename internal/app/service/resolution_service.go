package service

import (
	"context"
	"errors"
	"time"

	"github.com/sifan077/quotalink/internal/app/model"
	"github.com/sifan077/quotalink/internal/app/repository"
	metrics "github.com/sifan077/quotalink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// ResolutionService turns a code into its destination and counts the click.
type ResolutionService interface {
	Resolve(ctx context.Context, code string) (string, error)
}

// ResolutionDeps groups the collaborators of the resolution service.
type ResolutionDeps struct {
	Logger       *zap.Logger
	Store        repository.MappingStore
	Cache        repository.MappingCache
	StoreTimeout time.Duration
}

type resolutionService struct {
	logger  *zap.Logger
	store   repository.MappingStore
	cache   repository.MappingCache
	timeout time.Duration
}

// NewResolutionService returns a ResolutionService. Cache may be nil.
func NewResolutionService(deps ResolutionDeps) ResolutionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &resolutionService{
		logger:  logger,
		store:   deps.Store,
		cache:   deps.Cache,
		timeout: deps.StoreTimeout,
	}
}

// Resolve succeeds only if the click was durably counted: lookup and
// increment form one logical operation.
func (s *resolutionService) Resolve(ctx context.Context, code string) (string, error) {
	if !ValidCode(code) {
		metrics.ResolveTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return "", ErrNotFound
	}

	m, err := s.lookup(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			metrics.ResolveTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
			return "", ErrNotFound
		}
		return "", s.failed(code, storeErr("find mapping by code", err))
	}

	if err := s.increment(ctx, m.ID); err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			// Deleted between lookup and increment, or a stale cache entry.
			s.evict(ctx, code)
			metrics.ResolveTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
			return "", ErrNotFound
		}
		return "", s.failed(code, storeErr("increment clicks", err))
	}

	metrics.ResolveTotal.WithLabelValues(metrics.OutcomeResolved).Inc()
	return m.OriginalURL, nil
}

func (s *resolutionService) lookup(ctx context.Context, code string) (*model.Mapping, error) {
	callCtx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	if s.cache != nil {
		m, err := s.cache.Get(callCtx, code)
		if err == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return m, nil
		}
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn("resolve cache unavailable", zap.String("code", code), zap.Error(err))
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	m, err := s.store.FindByCode(callCtx, code)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(callCtx, m); err != nil {
			s.logger.Warn("failed to cache mapping", zap.String("code", code), zap.Error(err))
		}
	}
	return m, nil
}

func (s *resolutionService) increment(ctx context.Context, id int64) error {
	callCtx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.IncrementClicks(callCtx, id)
}

func (s *resolutionService) evict(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, code); err != nil {
		s.logger.Warn("failed to evict cached mapping", zap.String("code", code), zap.Error(err))
	}
}

func (s *resolutionService) failed(code string, err error) error {
	outcome := metrics.OutcomeError
	if errors.Is(err, ErrTimeout) {
		outcome = metrics.OutcomeTimeout
	}
	metrics.ResolveTotal.WithLabelValues(outcome).Inc()
	s.logger.Error("resolve failed", zap.String("code", code), zap.Error(err))
	return err
}
