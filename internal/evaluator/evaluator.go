// Package evaluator implements the fix evaluator: significant-anchor
// selection, distance/z-score computation, the weighted Student-t
// confidence score, and CEP95 derivation. The evaluator never mutates
// anchor state.
package evaluator

import (
	"math"
	"sort"

	"cep95-engine/internal/anchor"
	"cep95-engine/internal/config"
	"cep95-engine/internal/fix"
	"cep95-engine/internal/geometry"
	"cep95-engine/internal/pathloss"
)

// Evaluator scores one Fix against a pool of candidate anchors.
type Evaluator struct {
	Model pathloss.Model
	Calib config.Calibration
}

// New returns an Evaluator with the given path-loss model and calibration.
func New(model pathloss.Model, calib config.Calibration) *Evaluator {
	return &Evaluator{Model: model, Calib: calib}
}

// Result carries every output of one evaluation pass: the significant
// anchors (in selection order), their distances and z-scores (keyed by
// anchor id, pre-update), the confidence score, and the derived CEP95
// radius.
type Result struct {
	Significant []*anchor.Anchor
	Distances   map[string]float64
	ZScores     map[string]float64
	Confidence  float64
	CEP95       float64
}

// SignificantAnchors selects, from candidates, those that (a) appear in
// f's RSSI map, (b) are within the configured dB threshold of the
// strongest RSSI in f, and (c) have EWMA strictly below the configured
// threshold. Survivors are sorted by RSSI descending and truncated to the
// configured maximum.
func (e *Evaluator) SignificantAnchors(f fix.Fix, candidates []*anchor.Anchor) []*anchor.Anchor {
	maxRSSI, ok := f.MaxRSSI()
	if !ok {
		return nil
	}

	var keep []*anchor.Anchor
	for _, a := range candidates {
		rssi, present := f.RSSI[a.ID]
		if !present {
			continue
		}
		if rssi < maxRSSI-e.Calib.RSSISignalThresholdDB {
			continue
		}
		if a.EWMA >= e.Calib.EWMAThreshold {
			continue
		}
		keep = append(keep, a)
	}

	sort.SliceStable(keep, func(i, j int) bool {
		return f.RSSI[keep[i].ID] > f.RSSI[keep[j].ID]
	})

	if len(keep) > e.Calib.MaxSignificantAnchors {
		keep = keep[:e.Calib.MaxSignificantAnchors]
	}
	return keep
}

// Distances computes the 3-D distance from each significant anchor to the
// tag's reported position.
func (e *Evaluator) Distances(f fix.Fix, significant []*anchor.Anchor) map[string]float64 {
	out := make(map[string]float64, len(significant))
	for _, a := range significant {
		out[a.ID] = geometry.Distance3(a.Coord, f.TagPosition)
	}
	return out
}

// ZScores computes the standardized residual of each significant anchor's
// observed RSSI against the path-loss model's prediction, using each
// anchor's *current* (rssi0, n) — callers that want pre-update z-scores
// must call this before mutating anchor state.
func (e *Evaluator) ZScores(f fix.Fix, significant []*anchor.Anchor, distances map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(significant))
	for _, a := range significant {
		rObs := f.RSSI[a.ID]
		d := distances[a.ID]
		out[a.ID] = e.Model.Z(rObs, a.RSSI0, a.N, d)
	}
	return out
}

// confidenceScore computes the weighted Student-t score L over zScores
// (§4.5 step 4): a weighted *average* of log-pdfs (not a log of a weighted
// likelihood), weighted by w_a = 1/(1+ewma_a+z_a^2), and returns the
// confidence exp(L/scale) (§4.5 step 5). Returns 0 if significant has no
// entries.
func (e *Evaluator) confidenceScore(significant []*anchor.Anchor, zScores map[string]float64) float64 {
	if len(significant) == 0 {
		return 0
	}

	var weightedSum, totalWeight float64
	for _, a := range significant {
		z := zScores[a.ID]
		w := 1.0 / (1.0 + a.EWMA + z*z)
		weightedSum += w * geometry.LogPDFStudentT(z, e.Calib.StudentTDoF)
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	l := weightedSum / totalWeight
	return math.Exp(l / e.Calib.ConfidenceScale)
}

// Evaluate runs the full §4.5 pipeline for f against candidates.
func (e *Evaluator) Evaluate(f fix.Fix, candidates []*anchor.Anchor) Result {
	significant := e.SignificantAnchors(f, candidates)
	distances := e.Distances(f, significant)
	zScores := e.ZScores(f, significant, distances)
	confidence := e.confidenceScore(significant, zScores)
	cep95 := geometry.CEP95FromConf(confidence, e.Calib.CEP95Table)

	return Result{
		Significant: significant,
		Distances:   distances,
		ZScores:     zScores,
		Confidence:  confidence,
		CEP95:       cep95,
	}
}
