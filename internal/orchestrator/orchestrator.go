// Package orchestrator ties the registry, evaluator, and per-anchor state
// together for one fix: it resolves anchor state, computes the CEP95 via
// the evaluator, then updates Kalman parameters and EWMA health for the
// admitted anchors (§4.6), in that order, inside one registry lock so a fix
// is processed atomically end-to-end.
package orchestrator

import (
	"context"
	"log"
	"time"

	"cep95-engine/internal/anchor"
	"cep95-engine/internal/config"
	"cep95-engine/internal/evaluator"
	"cep95-engine/internal/fix"
	"cep95-engine/internal/registry"
)

// AnchorDiagnostic is one entry of the output message's
// anchors_selected_for_estimation array.
type AnchorDiagnostic struct {
	MAC  string
	NVar float64
	EWMA float64
}

// Output is everything the orchestrator produces for one fix: the public
// wire fields. The dashboard's diagnostics record adds the per-anchor
// counts from MessageCounts.
type Output struct {
	TagMAC                       string
	ErrorEstimate                float64
	AnchorsSelectedForEstimation []AnchorDiagnostic
	WarningAnchors               []string
	FaultyAnchors                []string
}

// Orchestrator wires one Evaluator and Registry together with the
// calibration's admission-gate parameters.
type Orchestrator struct {
	Registry  *registry.Registry
	Evaluator *evaluator.Evaluator
	Calib     config.Calibration
}

// New returns an Orchestrator.
func New(reg *registry.Registry, eval *evaluator.Evaluator, calib config.Calibration) *Orchestrator {
	return &Orchestrator{Registry: reg, Evaluator: eval, Calib: calib}
}

// candidateIDs returns the union of ids referenced by a fix's RSSI map and
// any extra ids supplied for lazy discovery (e.g. unused_anchors).
func candidateIDs(f fix.Fix, extra []string) []string {
	ids := make([]string, 0, len(f.RSSI)+len(extra))
	for id := range f.RSSI {
		ids = append(ids, id)
	}
	ids = append(ids, extra...)
	return ids
}

// Process runs one fix end-to-end per §4.6. extraAnchorIDs carries any
// "unused_anchors" ids so the registry can lazily discover them even though
// they contribute no RSSI to this fix. now is ms since epoch. Returns
// (output, false) if the fix is a no-op (empty RSSI map).
func (o *Orchestrator) Process(ctx context.Context, f fix.Fix, extraAnchorIDs []string, now float64) (Output, bool) {
	start := time.Now()

	if len(f.RSSI) == 0 {
		return Output{}, false
	}

	o.Registry.EnsureAnchors(ctx, candidateIDs(f, extraAnchorIDs))

	unlock := o.Registry.Lock()
	defer unlock()

	candidates := make([]*anchor.Anchor, 0, len(f.RSSI))
	for id := range f.RSSI {
		if a := o.Registry.Get(id); a != nil {
			a.IncrementMessageCount()
			candidates = append(candidates, a)
		}
	}

	result := o.Evaluator.Evaluate(f, candidates)

	// Parameter update strictly precedes health update (§4.6, §9a).
	for _, a := range result.Significant {
		rObs := f.RSSI[a.ID]
		d := result.Distances[a.ID]
		if !a.UpdateParameters(rObs, d) {
			log.Printf("orchestrator: rejected non-finite parameter update for anchor %s", a.ID)
		}
	}

	o.updateHealth(f, result, now)

	out := o.buildOutput(f, result, candidates)

	if elapsed := time.Since(start); elapsed > o.Calib.MaxProcessingTimeWarn {
		log.Printf("orchestrator: fix for tag %s took %s, exceeding %s budget",
			f.TagID, elapsed, o.Calib.MaxProcessingTimeWarn)
	}

	return out, true
}

// updateHealth applies the admission gates and health update using the
// evaluator's pre-update z-scores, per the resolved open question in §4.6a.
func (o *Orchestrator) updateHealth(f fix.Fix, result evaluator.Result, now float64) {
	maxRSSI, ok := f.MaxRSSI()
	if !ok {
		return
	}

	for _, a := range result.Significant {
		z, present := result.ZScores[a.ID]
		if !present {
			continue
		}
		rObs := f.RSSI[a.ID]
		delta := maxRSSI - rObs

		var tau float64
		if a.LastSeen != 0 {
			tau = now - a.LastSeen
		}

		if delta > o.Calib.DeltaR {
			continue
		}
		if tau > float64(o.Calib.TVis.Milliseconds()) {
			continue
		}

		a.UpdateHealth(z, now, o.Calib.Lambda)
	}
}

// MessageCounts returns the diagnostics-only per-anchor message counter
// (§FULL-3a), snapshotted under the registry lock. Intended for the
// dashboard feed; never part of the wire output.
func (o *Orchestrator) MessageCounts() map[string]int64 {
	unlock := o.Registry.Lock()
	defer unlock()

	counts := make(map[string]int64, o.Registry.Len())
	for _, a := range o.Registry.All() {
		counts[a.ID] = a.MessageCount
	}
	return counts
}

// buildOutput scopes warning_anchors/faulty_anchors to this fix's candidate
// anchors, matching the original (CppVersion/main.cpp's
// create_anchors_info(anch_list) and PyVersion/mqtt_runner.py's
// anchors_info(anch_list), both built from only this fix's readings) rather
// than every anchor ever registered in the process.
func (o *Orchestrator) buildOutput(f fix.Fix, result evaluator.Result, candidates []*anchor.Anchor) Output {
	selected := make([]AnchorDiagnostic, 0, len(result.Significant))
	for _, a := range result.Significant {
		selected = append(selected, AnchorDiagnostic{MAC: a.ID, NVar: a.N, EWMA: a.EWMA})
	}

	var warning, faulty []string
	for _, a := range candidates {
		if a.IsFaulty() {
			faulty = append(faulty, a.ID)
		} else if a.IsWarning() {
			warning = append(warning, a.ID)
		}
	}

	return Output{
		TagMAC:                       f.TagID,
		ErrorEstimate:                result.CEP95,
		AnchorsSelectedForEstimation: selected,
		WarningAnchors:               warning,
		FaultyAnchors:                faulty,
	}
}
