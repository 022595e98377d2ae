package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/zulandar/reactoryard/internal/models"
)

func TestObserveTransition(t *testing.T) {
	m := New()

	m.ObserveTransition("", models.StatusPlanned)
	m.ObserveTransition(models.StatusPlanned, models.StatusInProgress)
	m.ObserveTransition(models.StatusInProgress, models.StatusCancelled)

	if got := testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("none", "planned")); got != 1 {
		t.Errorf("none->planned = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("planned", "in_progress")); got != 1 {
		t.Errorf("planned->in_progress = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActiveReactors); got != 0 {
		t.Errorf("ActiveReactors = %v, want 0 after create+cancel", got)
	}
}

func TestObserveFailure(t *testing.T) {
	m := New()
	m.ObserveFailure("start", "invalid_transition")
	m.ObserveFailure("start", "invalid_transition")
	m.ObserveFailure("start", "")

	if got := testutil.ToFloat64(m.FailuresTotal.WithLabelValues("start", "invalid_transition")); got != 2 {
		t.Errorf("failures = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(m.FailuresTotal); n != 1 {
		t.Errorf("series = %d, want 1", n)
	}
}

func TestObservePhase(t *testing.T) {
	m := New()
	m.ObserveProduction("1", 2*time.Hour)
	m.ObserveWashing("1", 30*time.Minute)
	m.ObserveWashing("2", 45*time.Minute)
	if n := testutil.CollectAndCount(m.ProductionDuration); n != 1 {
		t.Errorf("production series = %d, want 1", n)
	}
	if n := testutil.CollectAndCount(m.WashingDuration); n != 2 {
		t.Errorf("washing series = %d, want 2", n)
	}
}

func TestGaugesAndImport(t *testing.T) {
	m := New()
	m.SetActiveReactors(4)
	m.SetOverrun(2)
	m.ObserveImportRow(true)
	m.ObserveImportRow(false)
	m.ObserveImportRow(true)

	if got := testutil.ToFloat64(m.ActiveReactors); got != 4 {
		t.Errorf("ActiveReactors = %v", got)
	}
	if got := testutil.ToFloat64(m.OverrunBatches); got != 2 {
		t.Errorf("OverrunBatches = %v", got)
	}
	if got := testutil.ToFloat64(m.ImportRowsTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("import success = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTransition(models.StatusPlanned, models.StatusInProgress)
	m.ObserveFailure("start", "store")
	m.ObserveProduction("1", time.Second)
	m.ObserveWashing("1", time.Second)
	m.SetActiveReactors(1)
	m.SetOverrun(1)
	m.ObserveImportRow(true)
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.SetActiveReactors(3)
	if got := testutil.ToFloat64(b.ActiveReactors); got != 0 {
		t.Errorf("registries share state: %v", got)
	}
}
