package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sifan077/quotalink/internal/app/model"
	"github.com/sifan077/quotalink/internal/app/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShortener(store repository.MappingStore, gen Generator, quota int) ShorteningService {
	return NewShorteningService(ShorteningDeps{
		Store:        store,
		Generator:    gen,
		Quota:        NewQuotaGate(store, quota, time.Second),
		MaxAttempts:  5,
		StoreTimeout: time.Second,
	})
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		valid bool
	}{
		{"https", "https://example.com/some/long/path?q=1", true},
		{"http with port", "http://example.com:8080", true},
		{"other scheme with host", "ftp://files.example.com/a.txt", true},
		{"empty", "", false},
		{"no scheme", "example.com", false},
		{"relative", "/just/a/path", false},
		{"just text", "not a url", false},
		{"mailto", "mailto:someone@example.com", true},
		{"file without host", "file:///tmp/x", true},
		{"urn", "urn:isbn:0451450523", true},
		{"opaque javascript", "javascript:alert(1)", true},
		{"empty host with port", "http://:80", false},
		{"port too large", "http://a:99999999", false},
		{"port zero", "http://a:0", false},
		{"port at limit", "http://a:65535/x", true},
		{"web scheme without host", "https:", false},
		{"web scheme opaque", "http:example.com", false},
		{"authority without host", "custom://:8080/path", false},
		{"trailing space", "https://example.com ", false},
		{"control char", "https://exa\x7fmple.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestShorten_CreatesMapping(t *testing.T) {
	store := repository.NewMemoryMappingStore()
	svc := newTestShortener(store, NewCodeGenerator(7), 100)

	res, err := svc.Shorten(context.Background(), "alice", "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "alice", res.Mapping.OwnerID)
	assert.Equal(t, "https://example.com/a", res.Mapping.OriginalURL)
	assert.Len(t, res.Mapping.Code, 7)
	assert.Zero(t, res.Mapping.Clicks)
	assert.NotZero(t, res.Mapping.ID)
}

func TestShorten_InvalidInput(t *testing.T) {
	store := repository.NewMemoryMappingStore()
	svc := newTestShortener(store, NewCodeGenerator(7), 100)

	_, err := svc.Shorten(context.Background(), "alice", "example.com")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Shorten(context.Background(), "", "https://example.com")
	assert.ErrorIs(t, err, ErrInvalidInput)

	total, err := store.CountAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestShorten_IsIdempotentPerOwner(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryMappingStore()
	svc := newTestShortener(store, NewCodeGenerator(7), 100)

	first, err := svc.Shorten(ctx, "alice", "https://example.com/a")
	require.NoError(t, err)
	second, err := svc.Shorten(ctx, "alice", "https://example.com/a")
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Mapping.Code, second.Mapping.Code)
	assert.Equal(t, first.Mapping.ID, second.Mapping.ID)

	count, err := store.CountByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// No canonicalisation: a trailing slash is a different URL.
	third, err := svc.Shorten(ctx, "alice", "https://example.com/a/")
	require.NoError(t, err)
	assert.True(t, third.Created)
	assert.NotEqual(t, first.Mapping.Code, third.Mapping.Code)

	// Another owner gets its own mapping for the same URL.
	other, err := svc.Shorten(ctx, "bob", "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, other.Created)
	assert.NotEqual(t, first.Mapping.Code, other.Mapping.Code)
}

func TestShorten_DistinctURLsGetDistinctCodes(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryMappingStore()
	svc := newTestShortener(store, NewCodeGenerator(7), 1000)

	codes := make(map[string]bool)
	for i := 0; i < 300; i++ {
		res, err := svc.Shorten(ctx, "alice", fmt.Sprintf("https://example.com/page-%d", i))
		require.NoError(t, err)
		require.False(t, codes[res.Mapping.Code], "duplicate code %s", res.Mapping.Code)
		codes[res.Mapping.Code] = true
	}
}

func TestShorten_QuotaBoundary(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryMappingStore()
	svc := newTestShortener(store, NewCodeGenerator(7), 100)

	for i := 1; i <= 100; i++ {
		_, err := svc.Shorten(ctx, "alice", fmt.Sprintf("https://example.com/%d", i))
		require.NoError(t, err, "call %d", i)
	}

	_, err := svc.Shorten(ctx, "alice", "https://example.com/101")
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.True(t, IsLimitReached(err))

	var qe *QuotaError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 100, qe.Limit)
	assert.Equal(t, int64(100), qe.Used)

	// Re-shortening an existing URL is not charged against the quota.
	res, err := svc.Shorten(ctx, "alice", "https://example.com/42")
	require.NoError(t, err)
	assert.False(t, res.Created)

	// Other owners are unaffected.
	_, err = svc.Shorten(ctx, "bob", "https://example.com/101")
	assert.NoError(t, err)
}

func TestShorten_RetriesOnCodeCollision(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryMappingStore()
	_, err := store.Insert(ctx, "bob", "https://bob.example.com", "AAAAAAA")
	require.NoError(t, err)

	gen := &scriptedGenerator{codes: []string{"AAAAAAA", "AAAAAAA", "BBBBBBB"}}
	svc := newTestShortener(store, gen, 100)

	res, err := svc.Shorten(ctx, "alice", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "BBBBBBB", res.Mapping.Code)
	assert.Equal(t, []string{"AAAAAAA", "AAAAAAA", "BBBBBBB"}, gen.remembered)
}

func TestShorten_CodeSpaceExhausted(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryMappingStore()
	_, err := store.Insert(ctx, "bob", "https://bob.example.com", "AAAAAAA")
	require.NoError(t, err)

	svc := newTestShortener(store, &scriptedGenerator{codes: []string{"AAAAAAA"}}, 100)

	_, err = svc.Shorten(ctx, "alice", "https://example.com")
	require.ErrorIs(t, err, ErrCodeSpaceExhausted)
	assert.False(t, errors.Is(err, ErrQuotaExceeded))

	count, err := store.CountByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestShorten_LosingRaceReturnsWinner(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	winner, err := store.MemoryMappingStore.Insert(ctx, "alice", "https://example.com", "WINNER1")
	require.NoError(t, err)

	// The fast-path check misses the winner, as it would inside the race window.
	var calls int
	store.findByOwnerAndURLFn = func(ctx context.Context, ownerID, originalURL string) (*model.Mapping, error) {
		calls++
		if calls == 1 {
			return nil, repository.ErrMappingNotFound
		}
		return store.MemoryMappingStore.FindByOwnerAndURL(ctx, ownerID, originalURL)
	}

	svc := newTestShortener(store, &scriptedGenerator{codes: []string{"LOSER01"}}, 100)
	res, err := svc.Shorten(ctx, "alice", "https://example.com")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, winner.ID, res.Mapping.ID)
	assert.Equal(t, "WINNER1", res.Mapping.Code)
}

func TestShorten_ConcurrentSamePair(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryMappingStore()
	svc := newTestShortener(store, NewCodeGenerator(7), 100)

	const n = 50
	codes := make([]string, n)
	errs := make([]error, n)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := svc.Shorten(ctx, "alice", "https://example.com/hot")
			errs[i] = err
			if err == nil {
				codes[i] = res.Mapping.Code
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, codes[0], codes[i])
	}

	count, err := store.CountByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestShorten_StoreTimeout(t *testing.T) {
	store := newFaultyStore()
	store.insertFn = func(ctx context.Context, ownerID, originalURL, code string) (*model.Mapping, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	svc := NewShorteningService(ShorteningDeps{
		Store:        store,
		Generator:    NewCodeGenerator(7),
		Quota:        NewQuotaGate(store, 100, 20*time.Millisecond),
		StoreTimeout: 20 * time.Millisecond,
	})

	_, err := svc.Shorten(context.Background(), "alice", "https://example.com")
	require.ErrorIs(t, err, ErrTimeout)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrInvalidInput))
}

func TestShorten_StoreFailureIsInternal(t *testing.T) {
	store := newFaultyStore()
	boom := errors.New("connection refused")
	store.insertFn = func(ctx context.Context, ownerID, originalURL, code string) (*model.Mapping, error) {
		return nil, boom
	}

	svc := newTestShortener(store, NewCodeGenerator(7), 100)
	_, err := svc.Shorten(context.Background(), "alice", "https://example.com")
	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, boom)
}
