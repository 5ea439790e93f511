// Package metrics instruments the governance kernel with Prometheus
// counters and histograms, covering every stage from friction gating
// through token issuance, adapter invocation, and ledger appends.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric this module emits, constructed once at
// process startup and threaded into the components that increment it.
type Registry struct {
	TokensIssued     *prometheus.CounterVec
	TokensConsumed   *prometheus.CounterVec
	TokensReplayed   prometheus.Counter
	FrictionStages   *prometheus.CounterVec
	FrictionViolated *prometheus.CounterVec
	AdapterInvokes   *prometheus.CounterVec
	GuardViolations  *prometheus.CounterVec
	LedgerHalts      prometheus.Counter
	LedgerAppends    *prometheus.CounterVec

	mu       sync.Mutex
	liveness prometheus.Gauge
}

// New constructs and registers every metric against reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "governd_tokens_issued_total",
			Help: "Authorization tokens issued.",
		}, []string{"content_kind"}),
		TokensConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "governd_tokens_consumed_total",
			Help: "Authorization tokens successfully consumed.",
		}, []string{"content_kind"}),
		TokensReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "governd_tokens_replay_blocked_total",
			Help: "Consume attempts blocked because the token was already used.",
		}),
		FrictionStages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "governd_friction_stage_completions_total",
			Help: "Friction gate stage completions, by stage.",
		}, []string{"stage"}),
		FrictionViolated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "governd_friction_violations_total",
			Help: "Friction gate stage violations, by stage.",
		}, []string{"stage"}),
		AdapterInvokes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "governd_adapter_invocations_total",
			Help: "External adapter invocations, by outcome.",
		}, []string{"outcome"}),
		GuardViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "governd_guard_violations_total",
			Help: "Guard layer violations, by kind.",
		}, []string{"kind"}),
		LedgerHalts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "governd_ledger_halts_total",
			Help: "Times the audit ledger entered a halted state.",
		}),
		LedgerAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "governd_ledger_appends_total",
			Help: "Ledger entries appended, by event type.",
		}, []string{"event_type"}),
		liveness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "governd_up",
			Help: "1 if the governance kernel is serving, 0 otherwise.",
		}),
	}
	reg.MustRegister(
		m.TokensIssued, m.TokensConsumed, m.TokensReplayed,
		m.FrictionStages, m.FrictionViolated, m.AdapterInvokes,
		m.GuardViolations, m.LedgerHalts, m.LedgerAppends, m.liveness,
	)
	return m
}

// SetLive flips the liveness gauge.
func (r *Registry) SetLive(up bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if up {
		r.liveness.Set(1)
	} else {
		r.liveness.Set(0)
	}
}

// LedgerAdapter adapts a Registry to auditledger.Metrics without creating
// an import cycle between pkg/metrics and pkg/auditledger.
type LedgerAdapter struct{ R *Registry }

func (a LedgerAdapter) IncAppend(eventType string) { a.R.LedgerAppends.WithLabelValues(eventType).Inc() }
func (a LedgerAdapter) IncHalt()                   { a.R.LedgerHalts.Inc() }

// CoordinatorAdapter adapts a Registry to pkg/coordinator.Metrics, again to
// avoid a direct import cycle (pkg/coordinator does not import pkg/metrics).
type CoordinatorAdapter struct{ R *Registry }

func (a CoordinatorAdapter) IncTokenIssued(contentKind string) {
	a.R.TokensIssued.WithLabelValues(contentKind).Inc()
}
func (a CoordinatorAdapter) IncTokenConsumed(contentKind string) {
	a.R.TokensConsumed.WithLabelValues(contentKind).Inc()
}
func (a CoordinatorAdapter) IncTokenReplayBlocked() { a.R.TokensReplayed.Inc() }
func (a CoordinatorAdapter) IncAdapterInvoke(outcome string) {
	a.R.AdapterInvokes.WithLabelValues(outcome).Inc()
}
