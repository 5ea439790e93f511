package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistersEveryMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TokensIssued.WithLabelValues("draft_report").Inc()
	m.TokensConsumed.WithLabelValues("draft_report").Inc()
	m.TokensReplayed.Inc()
	m.FrictionStages.WithLabelValues("deliberation").Inc()
	m.FrictionViolated.WithLabelValues("cooldown").Inc()
	m.AdapterInvokes.WithLabelValues("success").Inc()
	m.GuardViolations.WithLabelValues("duplicate_submission").Inc()
	m.LedgerHalts.Inc()
	m.LedgerAppends.WithLabelValues("TOKEN_ISSUED").Inc()
	m.SetLive(true)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected registered metric families")
	}

	live := findCounterValue(t, families, "governd_up")
	if live != 1 {
		t.Fatalf("expected governd_up to be 1 after SetLive(true), got %v", live)
	}

	m.SetLive(false)
	families, err = reg.Gather()
	if err != nil {
		t.Fatalf("gather after SetLive(false): %v", err)
	}
	live = findCounterValue(t, families, "governd_up")
	if live != 0 {
		t.Fatalf("expected governd_up to be 0 after SetLive(false), got %v", live)
	}
}

func TestLedgerAndCoordinatorAdaptersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	la := LedgerAdapter{R: m}
	la.IncAppend("WORKFLOW_TRANSITION")
	la.IncHalt()

	ca := CoordinatorAdapter{R: m}
	ca.IncTokenIssued("draft_report")
	ca.IncTokenConsumed("draft_report")
	ca.IncTokenReplayBlocked()
	ca.IncAdapterInvoke("error")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if findCounterValue(t, families, "governd_ledger_halts_total") != 1 {
		t.Fatalf("expected one ledger halt recorded via LedgerAdapter")
	}
}

func findCounterValue(t *testing.T, families []*dto.MetricFamily, name string) float64 {
	t.Helper()
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if g := metric.GetGauge(); g != nil {
				return g.GetValue()
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
		}
	}
	t.Fatalf("metric family %s not found", name)
	return 0
}
