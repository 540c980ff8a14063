package service

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	metrics "github.com/sifan077/quotalink/internal/infra/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeGenerator_LengthAndAlphabet(t *testing.T) {
	for _, length := range []int{6, 7, 8} {
		gen := NewCodeGenerator(length)
		for i := 0; i < 200; i++ {
			code := gen.Generate()
			require.Len(t, code, length)
			for _, r := range code {
				require.True(t, strings.ContainsRune(Alphabet, r), "unexpected symbol %q in %q", r, code)
			}
			require.True(t, ValidCode(code))
		}
	}
}

func TestCodeGenerator_DefaultLength(t *testing.T) {
	gen := NewCodeGenerator(0)
	assert.Len(t, gen.Generate(), DefaultCodeLength)
}

func TestCodeGenerator_SeededIsReproducible(t *testing.T) {
	a := NewCodeGenerator(7, WithRand(NewSeededRand(42)))
	b := NewCodeGenerator(7, WithRand(NewSeededRand(42)))

	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Generate(), b.Generate())
	}
}

func TestCodeGenerator_IssuedFilterRedraws(t *testing.T) {
	first := NewCodeGenerator(7, WithRand(NewSeededRand(7))).Generate()

	gen := NewCodeGenerator(7, WithRand(NewSeededRand(7)), WithIssuedFilter(1000))
	gen.Remember(first)

	collisions := testutil.ToFloat64(metrics.CodeCollisions)
	redraws := testutil.ToFloat64(metrics.FilterRedraws)

	assert.NotEqual(t, first, gen.Generate())
	assert.Equal(t, redraws+1, testutil.ToFloat64(metrics.FilterRedraws))
	assert.Equal(t, collisions, testutil.ToFloat64(metrics.CodeCollisions))
}

func TestCodeGenerator_FilterAtDesignScaleRarelyRedraws(t *testing.T) {
	gen := NewCodeGenerator(7, WithRand(NewSeededRand(11)), WithIssuedFilter(DefaultFilterCapacity))
	for i := 0; i < 5000; i++ {
		gen.Remember(gen.Generate())
	}

	redraws := testutil.ToFloat64(metrics.FilterRedraws)
	for i := 0; i < 1000; i++ {
		gen.Generate()
	}
	assert.Less(t, testutil.ToFloat64(metrics.FilterRedraws)-redraws, 10.0)
}

func TestCodeGenerator_SpreadsOverAlphabet(t *testing.T) {
	gen := NewCodeGenerator(8, WithRand(NewSeededRand(1)))
	seen := make(map[rune]bool)
	for i := 0; i < 500; i++ {
		for _, r := range gen.Generate() {
			seen[r] = true
		}
	}
	assert.Len(t, seen, len(Alphabet))
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("aZ09xYz"))
	assert.False(t, ValidCode(""))
	assert.False(t, ValidCode("abc-123"))
	assert.False(t, ValidCode("favicon.ico"))
	assert.False(t, ValidCode(strings.Repeat("a", 17)))
}
