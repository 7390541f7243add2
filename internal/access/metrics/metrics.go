package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fallback reasons for role resolution.
const (
	FallbackNotFound    = "not_found"
	FallbackLookupError = "lookup_error"
	FallbackInvalidRole = "invalid_role"
)

// Decision outcomes at the enforcement boundary.
const (
	OutcomePermitted       = "permitted"
	OutcomeDenied          = "denied"
	OutcomeUnrestricted    = "unrestricted"
	OutcomeIdentityMissing = "identity_missing"
)

// Role cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics holds Prometheus metrics for role resolution and access decisions.
type Metrics struct {
	Decisions      *prometheus.CounterVec
	RoleFallbacks  *prometheus.CounterVec
	LookupDuration prometheus.Histogram
	CacheLookups   *prometheus.CounterVec
}

// New registers the access metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medorder_access_decisions_total",
			Help: "Access decisions at the resource boundary by outcome and role",
		}, []string{"outcome", "role"}),
		RoleFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medorder_access_role_fallbacks_total",
			Help: "Role lookups that fell back to the default role, by reason",
		}, []string{"reason"}),
		LookupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "medorder_access_role_lookup_duration_seconds",
			Help:    "Latency of role directory lookups",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medorder_access_role_cache_lookups_total",
			Help: "Role cache lookups by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncDecision(outcome, role string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(outcome, role).Inc()
}

func (m *Metrics) IncRoleFallback(reason string) {
	if m == nil {
		return
	}
	m.RoleFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveLookup(seconds float64) {
	if m == nil {
		return
	}
	m.LookupDuration.Observe(seconds)
}

func (m *Metrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
