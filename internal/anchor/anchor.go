// Package anchor defines per-anchor state: coordinates, current path-loss
// parameters, EWMA health, last-seen timestamp, and an owned Kalman filter.
package anchor

import (
	"math"
	"sync/atomic"

	"cep95-engine/internal/geometry"
	"cep95-engine/internal/kalman"
)

const (
	// DefaultRSSI0 is the default RSSI at the 1 m reference distance.
	DefaultRSSI0 = -59.0
	// DefaultN is the default path-loss exponent.
	DefaultN = 2.0
	// DefaultEWMA is the deliberate warm start: new anchors are not
	// instantly trusted.
	DefaultEWMA = 1.0
	// WarningThreshold and FaultyThreshold classify EWMA health.
	WarningThreshold = 4.0
	FaultyThreshold  = 8.0
	// DefaultLambda is the EWMA smoothing factor.
	DefaultLambda = 0.05
)

// Anchor is one fixed BLE beacon's mutable state. Anchor is not itself
// goroutine-safe; callers must hold the owning registry's lock while
// mutating it.
type Anchor struct {
	ID    string
	Coord geometry.Point3

	RSSI0 float64
	N     float64
	EWMA  float64

	// LastSeen is ms since epoch of the most recent admitted health update;
	// 0 if never.
	LastSeen float64

	Kalman *kalman.Filter

	// MessageCount is a diagnostics-only counter (not part of the wire
	// output), incremented whenever this anchor appears in a fix's RSSI
	// map, admitted or not.
	MessageCount int64
}

// New returns a freshly-discovered anchor with default parameters.
func New(id string, coord geometry.Point3) *Anchor {
	return &Anchor{
		ID:     id,
		Coord:  coord,
		RSSI0:  DefaultRSSI0,
		N:      DefaultN,
		EWMA:   DefaultEWMA,
		Kalman: kalman.New(),
	}
}

// IncrementMessageCount bumps the diagnostics-only message counter.
func (a *Anchor) IncrementMessageCount() {
	atomic.AddInt64(&a.MessageCount, 1)
}

// UpdateHealth applies the EWMA health update and records last_seen.
func (a *Anchor) UpdateHealth(z, now, lambda float64) {
	a.EWMA = lambda*z*z + (1-lambda)*a.EWMA
	a.LastSeen = now
}

// UpdateParameters runs one Kalman step and, if the result is valid per the
// data-model invariants (rssi0 finite and non-positive, n finite and
// positive), commits it. An invalid result is logged by the caller and the
// prior state is kept.
func (a *Anchor) UpdateParameters(rObs, dEst float64) (accepted bool) {
	newRSSI0, newN := a.Kalman.Step(a.RSSI0, a.N, rObs, dEst)
	if !validRSSI0(newRSSI0) || !validN(newN) {
		return false
	}
	a.RSSI0 = newRSSI0
	a.N = newN
	return true
}

func validRSSI0(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v <= 0
}

func validN(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// IsWarning reports 4 ≤ ewma < 8.
func (a *Anchor) IsWarning() bool {
	return a.EWMA >= WarningThreshold && a.EWMA < FaultyThreshold
}

// IsFaulty reports ewma ≥ 8.
func (a *Anchor) IsFaulty() bool {
	return a.EWMA >= FaultyThreshold
}
