package service

import (
	"context"
	"time"

	"github.com/sifan077/quotalink/internal/app/repository"
)

// DefaultQuota is the number of live mappings an owner may hold.
const DefaultQuota = 100

// QuotaGate decides whether an owner may create another mapping.
// The decision is advisory: two concurrent creations at the boundary can both
// pass, which overshoots the limit by at most one mapping per race.
type QuotaGate struct {
	store   repository.MappingStore
	limit   int
	timeout time.Duration
}

// NewQuotaGate returns a gate enforcing limit (DefaultQuota if <= 0).
func NewQuotaGate(store repository.MappingStore, limit int, timeout time.Duration) *QuotaGate {
	if limit <= 0 {
		limit = DefaultQuota
	}
	return &QuotaGate{store: store, limit: limit, timeout: timeout}
}

// Limit returns the configured maximum.
func (g *QuotaGate) Limit() int {
	return g.limit
}

// Check returns nil when ownerID may create a mapping and a *QuotaError when
// the limit is reached.
func (g *QuotaGate) Check(ctx context.Context, ownerID string) error {
	callCtx, cancel := withStoreTimeout(ctx, g.timeout)
	defer cancel()

	used, err := g.store.CountByOwner(callCtx, ownerID)
	if err != nil {
		return storeErr("count mappings", err)
	}
	if used >= int64(g.limit) {
		return &QuotaError{Limit: g.limit, Used: used}
	}
	return nil
}
