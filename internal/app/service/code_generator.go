package service

import (
	crand "crypto/rand"
	"math/rand/v2"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	metrics "github.com/sifan077/quotalink/internal/infra/prometheus"
)

// Alphabet holds the 62 symbols codes are drawn from.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	DefaultCodeLength = 7
	// DefaultFilterCapacity matches the live-mapping scale the keyspace is sized for.
	DefaultFilterCapacity = 10_000_000

	// maxFilterRedraws bounds how often a candidate the filter has already
	// seen is redrawn before it is handed to the store anyway.
	maxFilterRedraws   = 8
	filterFalsePosRate = 0.001
)

// Generator produces candidate codes. Remember records a code the store now
// holds (or refused as a duplicate).
type Generator interface {
	Generate() string
	Remember(code string)
}

// CodeGenerator draws codes uniformly from Alphabet.
type CodeGenerator struct {
	mu     sync.Mutex
	length int
	rng    *rand.Rand
	issued *bloom.BloomFilter
}

// CodeGeneratorOption customises a CodeGenerator.
type CodeGeneratorOption func(*CodeGenerator)

// WithRand replaces the randomness source, e.g. with a seeded one in tests.
func WithRand(rng *rand.Rand) CodeGeneratorOption {
	return func(g *CodeGenerator) {
		if rng != nil {
			g.rng = rng
		}
	}
}

// WithIssuedFilter keeps a bloom filter of codes seen by this process so that
// known-taken candidates are redrawn before reaching the store.
func WithIssuedFilter(capacity uint) CodeGeneratorOption {
	return func(g *CodeGenerator) {
		if capacity > 0 {
			g.issued = bloom.NewWithEstimates(capacity, filterFalsePosRate)
		}
	}
}

// NewCodeGenerator returns a generator of codes with the given length
// (DefaultCodeLength if <= 0), seeded from crypto/rand unless WithRand is given.
func NewCodeGenerator(length int, opts ...CodeGeneratorOption) *CodeGenerator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	g := &CodeGenerator{length: length}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = newSecureRand()
	}
	return g
}

// NewSeededRand returns a deterministic source for reproducible codes.
func NewSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func newSecureRand() *rand.Rand {
	var seed [32]byte
	_, _ = crand.Read(seed[:])
	return rand.New(rand.NewChaCha8(seed))
}

// Generate returns a candidate code. Uniqueness is decided by the store.
func (g *CodeGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	code := g.draw()
	for i := 0; g.issued != nil && i < maxFilterRedraws && g.issued.TestString(code); i++ {
		metrics.FilterRedraws.Inc()
		code = g.draw()
	}
	return code
}

// Remember adds code to the issued filter, if one is configured.
func (g *CodeGenerator) Remember(code string) {
	if g.issued == nil {
		return
	}
	g.mu.Lock()
	g.issued.AddString(code)
	g.mu.Unlock()
}

func (g *CodeGenerator) draw() string {
	buf := make([]byte, g.length)
	for i := range buf {
		buf[i] = Alphabet[g.rng.IntN(len(Alphabet))]
	}
	return string(buf)
}

// ValidCode reports whether code could have been issued: non-empty, at most
// 16 symbols, all from Alphabet.
func ValidCode(code string) bool {
	if code == "" || len(code) > 16 {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}
