package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/sifan077/quotalink/internal/app/model"
	"github.com/sifan077/quotalink/internal/app/repository"
	metrics "github.com/sifan077/quotalink/internal/infra/prometheus"
	"go.uber.org/zap"
)

const (
	// DefaultMaxInsertAttempts bounds code-collision retries.
	DefaultMaxInsertAttempts = 5
	maxURLLength             = 2048
)

// ShortenResult is the mapping returned by Shorten. Created is false when an
// existing mapping for the same owner and URL was returned instead.
type ShortenResult struct {
	Mapping *model.Mapping
	Created bool
}

// ShorteningService creates mappings or returns the owner's existing one.
type ShorteningService interface {
	Shorten(ctx context.Context, ownerID, originalURL string) (*ShortenResult, error)
}

// ShorteningDeps groups the collaborators of the shortening service.
type ShorteningDeps struct {
	Logger       *zap.Logger
	Store        repository.MappingStore
	Generator    Generator
	Quota        *QuotaGate
	MaxAttempts  int
	StoreTimeout time.Duration
}

type shorteningService struct {
	logger      *zap.Logger
	store       repository.MappingStore
	gen         Generator
	quota       *QuotaGate
	maxAttempts int
	timeout     time.Duration
}

// NewShorteningService returns a ShorteningService backed by deps.Store.
func NewShorteningService(deps ShorteningDeps) ShorteningService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxInsertAttempts
	}
	gen := deps.Generator
	if gen == nil {
		gen = NewCodeGenerator(DefaultCodeLength)
	}
	quota := deps.Quota
	if quota == nil {
		quota = NewQuotaGate(deps.Store, DefaultQuota, deps.StoreTimeout)
	}
	return &shorteningService{
		logger:      logger,
		store:       deps.Store,
		gen:         gen,
		quota:       quota,
		maxAttempts: attempts,
		timeout:     deps.StoreTimeout,
	}
}

func (s *shorteningService) Shorten(ctx context.Context, ownerID, originalURL string) (*ShortenResult, error) {
	if ownerID == "" {
		metrics.ShortenTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if err := ValidateURL(originalURL); err != nil {
		metrics.ShortenTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, err
	}

	// Fast path only; the (owner, url) unique index is what prevents duplicates.
	existing, err := s.findExisting(ctx, ownerID, originalURL)
	if err == nil {
		return s.reused(existing), nil
	}
	if !errors.Is(err, repository.ErrMappingNotFound) {
		return nil, s.failed(storeErr("find existing mapping", err))
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		// Re-checked on every attempt so the count is fresh right before the insert.
		if err := s.quota.Check(ctx, ownerID); err != nil {
			if errors.Is(err, ErrQuotaExceeded) {
				metrics.ShortenTotal.WithLabelValues(metrics.OutcomeQuota).Inc()
				return nil, err
			}
			return nil, s.failed(err)
		}

		code := s.gen.Generate()
		m, err := s.insert(ctx, ownerID, originalURL, code)
		switch {
		case err == nil:
			s.gen.Remember(code)
			metrics.ShortenTotal.WithLabelValues(metrics.OutcomeCreated).Inc()
			s.logger.Debug("mapping created",
				zap.String("owner_id", ownerID),
				zap.String("code", m.Code),
				zap.Int64("id", m.ID),
			)
			return &ShortenResult{Mapping: m, Created: true}, nil

		case errors.Is(err, repository.ErrDuplicateCode):
			s.gen.Remember(code)
			metrics.CodeCollisions.Inc()
			s.logger.Warn("short code collision, retrying",
				zap.String("code", code),
				zap.Int("attempt", attempt),
			)

		case errors.Is(err, repository.ErrDuplicateOwnerURL):
			// A concurrent call for the same pair won the race.
			winner, ferr := s.findExisting(ctx, ownerID, originalURL)
			if ferr == nil {
				return s.reused(winner), nil
			}
			if !errors.Is(ferr, repository.ErrMappingNotFound) {
				return nil, s.failed(storeErr("reload existing mapping", ferr))
			}
			// The winner was deleted in between; try again.

		default:
			return nil, s.failed(storeErr("insert mapping", err))
		}
	}

	metrics.ShortenTotal.WithLabelValues(metrics.OutcomeExhausted).Inc()
	s.logger.Error("code space exhausted: every generated code collided",
		zap.String("owner_id", ownerID),
		zap.Int("attempts", s.maxAttempts),
	)
	return nil, fmt.Errorf("%w after %d attempts", ErrCodeSpaceExhausted, s.maxAttempts)
}

func (s *shorteningService) findExisting(ctx context.Context, ownerID, originalURL string) (*model.Mapping, error) {
	callCtx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.FindByOwnerAndURL(callCtx, ownerID, originalURL)
}

func (s *shorteningService) insert(ctx context.Context, ownerID, originalURL, code string) (*model.Mapping, error) {
	callCtx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.Insert(callCtx, ownerID, originalURL, code)
}

func (s *shorteningService) reused(m *model.Mapping) *ShortenResult {
	metrics.ShortenTotal.WithLabelValues(metrics.OutcomeReused).Inc()
	return &ShortenResult{Mapping: m, Created: false}
}

func (s *shorteningService) failed(err error) error {
	outcome := metrics.OutcomeError
	if errors.Is(err, ErrTimeout) {
		outcome = metrics.OutcomeTimeout
	}
	metrics.ShortenTotal.WithLabelValues(outcome).Inc()
	s.logger.Error("shorten failed", zap.Error(err))
	return err
}

// specialSchemes always carry a host.
var specialSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ws":    true,
	"wss":   true,
	"ftp":   true,
}

// ValidateURL accepts syntactically valid absolute URLs, opaque forms such as
// mailto: and urn: included. Where an authority is present (and for web
// schemes always) the host must be non-empty and any port within 1-65535.
// The input is not canonicalised: it is stored and compared exactly as supplied.
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if len(raw) > maxURLLength {
		return fmt.Errorf("%w: url exceeds %d characters", ErrInvalidInput, maxURLLength)
	}
	if strings.IndexFunc(raw, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: url contains whitespace", ErrInvalidInput)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: url could not be parsed", ErrInvalidInput)
	}
	if parsed.Scheme == "" || !parsed.IsAbs() {
		return fmt.Errorf("%w: url must be absolute, include http:// or https://", ErrInvalidInput)
	}

	hasAuthority := strings.HasPrefix(raw[len(parsed.Scheme)+1:], "//")
	needsHost := specialSchemes[parsed.Scheme] || (hasAuthority && parsed.Scheme != "file")
	if needsHost && parsed.Hostname() == "" {
		return fmt.Errorf("%w: url has no host", ErrInvalidInput)
	}
	if p := parsed.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("%w: url port %q out of range", ErrInvalidInput, p)
		}
	}
	return nil
}
