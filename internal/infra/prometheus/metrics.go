package prometheus

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quotalink"

// Outcome labels shared by the shorten and resolve counters.
const (
	OutcomeCreated   = "created"
	OutcomeReused    = "reused"
	OutcomeInvalid   = "invalid"
	OutcomeQuota     = "quota_exceeded"
	OutcomeExhausted = "code_space_exhausted"
	OutcomeResolved  = "resolved"
	OutcomeNotFound  = "not_found"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

var (
	ShortenTotal = promauto.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "shorten_total",
		Help:      "Shorten requests by outcome.",
	}, []string{"outcome"})

	ResolveTotal = promauto.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "resolve_total",
		Help:      "Resolve requests by outcome.",
	}, []string{"outcome"})

	CodeCollisions = promauto.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "code_collisions_total",
		Help:      "Generated codes the store rejected as already taken.",
	})

	FilterRedraws = promauto.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "code_filter_redraws_total",
		Help:      "Candidate codes redrawn because the issued-code filter reported them, false positives included.",
	})

	CacheLookups = promauto.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Resolve cache lookups by result.",
	}, []string{"result"})

	Mappings = promauto.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "mappings",
		Help:      "Live mappings in the store.",
	})
)
