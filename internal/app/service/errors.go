package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput signals a missing or malformed URL or owner.
	ErrInvalidInput = errors.New("invalid input")
	// ErrQuotaExceeded signals that the owner holds the maximum number of mappings.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrCodeSpaceExhausted signals that every generated code collided.
	ErrCodeSpaceExhausted = errors.New("code space exhausted")
	// ErrNotFound covers absent codes and ids as well as ids owned by someone else.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is reserved for actions on mappings whose existence may be disclosed.
	ErrForbidden = errors.New("forbidden")
	// ErrTimeout signals that a store call did not finish within its deadline.
	ErrTimeout = errors.New("store timeout")
	// ErrInternal signals a store failure other than a timeout.
	ErrInternal = errors.New("internal error")
)

// QuotaError is returned when the quota gate denies a creation.
type QuotaError struct {
	Limit int
	Used  int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: %d of %d mappings used", e.Used, e.Limit)
}

// Is makes errors.Is(err, ErrQuotaExceeded) hold for any *QuotaError.
func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// LimitReached lets callers render upgrade messaging.
func (e *QuotaError) LimitReached() bool {
	return e.Used >= int64(e.Limit)
}

// IsLimitReached reports whether err carries the owner quota signal.
func IsLimitReached(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe) && qe.LimitReached()
}

// storeErr classifies a failed store call. Deadline overruns become ErrTimeout,
// everything else ErrInternal. The original error stays in the chain.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
	}
}

func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
