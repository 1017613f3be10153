package orchestrator

import (
	"context"
	"testing"

	"cep95-engine/internal/config"
	"cep95-engine/internal/evaluator"
	"cep95-engine/internal/fix"
	"cep95-engine/internal/geometry"
	"cep95-engine/internal/pathloss"
	"cep95-engine/internal/registry"
)

type stubResolver struct{ coords map[string]geometry.Point3 }

func (s stubResolver) Resolve(_ context.Context, id string) (geometry.Point3, error) {
	return s.coords[id], nil
}

func newOrchestrator(coords map[string]geometry.Point3) *Orchestrator {
	reg := registry.New(stubResolver{coords: coords})
	calib := config.DefaultCalibration()
	eval := evaluator.New(pathloss.Default(), calib)
	return New(reg, eval, calib)
}

func TestProcessEmptyRSSIIsNoOp(t *testing.T) {
	o := newOrchestrator(nil)
	_, ok := o.Process(context.Background(), fix.Fix{TagID: "tag"}, nil, 0)
	if ok {
		t.Fatalf("expected no-op for empty RSSI map")
	}
}

func TestProcessParameterUpdateBeforeHealthUpdate(t *testing.T) {
	o := newOrchestrator(map[string]geometry.Point3{"a1": {}})
	f := fix.Fix{TagID: "tag", TagPosition: geometry.Point3{}, RSSI: map[string]float64{"a1": -59}, TimestampMS: 0}

	out, ok := o.Process(context.Background(), f, nil, 0)
	if !ok {
		t.Fatalf("expected a processed fix")
	}
	if len(out.AnchorsSelectedForEstimation) != 1 {
		t.Fatalf("expected a1 selected, got %+v", out.AnchorsSelectedForEstimation)
	}

	unlock := o.Registry.Lock()
	a := o.Registry.Get("a1")
	unlock()
	if a.MessageCount != 1 {
		t.Fatalf("expected message count 1, got %d", a.MessageCount)
	}
	// The fix's z-score is enormous (clamped distance), so health should
	// have moved ewma well off its 1.0 warm start.
	if a.EWMA <= 1.0 {
		t.Fatalf("expected ewma to have moved from warm start, got %v", a.EWMA)
	}
}

func TestProcessAdmissionGateZeroLastSeenScenario(t *testing.T) {
	o := newOrchestrator(map[string]geometry.Point3{"a1": {}, "a2": {X: 10, Y: 0, Z: 0}})
	f := fix.Fix{TagID: "tag", TagPosition: geometry.Point3{}, RSSI: map[string]float64{
		"a1": -50,
		"a2": -50,
	}}
	// First fix: last_seen=0 for all anchors, tau is defined as 0 per spec,
	// so health update is admitted (scenario 6 in the spec).
	out, ok := o.Process(context.Background(), f, nil, 0)
	if !ok {
		t.Fatalf("expected processed fix")
	}
	if len(out.AnchorsSelectedForEstimation) == 0 {
		t.Fatalf("expected anchors selected")
	}
}

func TestProcessAdmissionGateExcludesStaleAnchor(t *testing.T) {
	o := newOrchestrator(map[string]geometry.Point3{"a1": {}})
	// Tag 10 m from a1 with the RSSI the default model predicts there
	// (-59 - 20*log10(10) = -79), so z = 0 and ewma stays below the
	// faulty threshold that would drop a1 from selection.
	f := fix.Fix{TagID: "tag", TagPosition: geometry.Point3{X: 10}, RSSI: map[string]float64{"a1": -79}}

	// First fix at t=1000 admits the health update (last_seen was 0, so
	// tau=0) and sets last_seen=1000.
	o.Process(context.Background(), f, nil, 1000)

	unlock := o.Registry.Lock()
	ewmaAfterFirst := o.Registry.Get("a1").EWMA
	unlock()

	// Second fix 7000ms later, beyond T_vis (6000ms default): the anchor is
	// still selected (selection doesn't gate on last_seen) but the health
	// update must be skipped by the tau <= T_vis admission gate.
	out, ok := o.Process(context.Background(), f, nil, 8000)
	if !ok {
		t.Fatalf("expected processed fix")
	}
	if len(out.AnchorsSelectedForEstimation) != 1 {
		t.Fatalf("expected a1 still selected, got %+v", out.AnchorsSelectedForEstimation)
	}

	unlock = o.Registry.Lock()
	ewmaAfterSecond := o.Registry.Get("a1").EWMA
	unlock()
	if ewmaAfterSecond != ewmaAfterFirst {
		t.Fatalf("expected ewma unchanged by stale health update: before=%v after=%v",
			ewmaAfterFirst, ewmaAfterSecond)
	}
}

func TestProcessLazyDiscoversUnusedAnchors(t *testing.T) {
	o := newOrchestrator(map[string]geometry.Point3{"a1": {}, "a2": {}})
	f := fix.Fix{TagID: "tag", RSSI: map[string]float64{"a1": -50}}
	o.Process(context.Background(), f, []string{"a2"}, 0)

	unlock := o.Registry.Lock()
	defer unlock()
	if o.Registry.Get("a2") == nil {
		t.Fatalf("expected a2 to be lazily discovered via extraAnchorIDs")
	}
}

func TestProcessFaultyAnchorReportedInOutput(t *testing.T) {
	o := newOrchestrator(map[string]geometry.Point3{"a1": {}})
	o.Registry.EnsureAnchors(context.Background(), []string{"a1"})
	unlock := o.Registry.Lock()
	o.Registry.Get("a1").EWMA = 9
	unlock()

	f := fix.Fix{TagID: "tag", RSSI: map[string]float64{"a1": -50}}
	out, _ := o.Process(context.Background(), f, nil, 0)
	if len(out.AnchorsSelectedForEstimation) != 0 {
		t.Fatalf("faulty anchor should not be selected")
	}
	found := false
	for _, id := range out.FaultyAnchors {
		if id == "a1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a1 in FaultyAnchors, got %v", out.FaultyAnchors)
	}
}

func TestProcessFaultyAnchorScopedToCurrentFixCandidates(t *testing.T) {
	o := newOrchestrator(map[string]geometry.Point3{"a1": {}, "a2": {}})
	o.Registry.EnsureAnchors(context.Background(), []string{"a1", "a2"})
	unlock := o.Registry.Lock()
	o.Registry.Get("a2").EWMA = 9
	unlock()

	// a2 is faulty but not a candidate for this fix: only a1 reports RSSI.
	f := fix.Fix{TagID: "tag", RSSI: map[string]float64{"a1": -50}}
	out, _ := o.Process(context.Background(), f, nil, 0)

	for _, id := range out.FaultyAnchors {
		if id == "a2" {
			t.Fatalf("a2 is faulty but not a candidate for this fix, should not appear in FaultyAnchors: %v", out.FaultyAnchors)
		}
	}
}
