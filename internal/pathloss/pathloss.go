// Package pathloss implements the log-distance path-loss model used to
// predict mean RSSI from distance and to standardize observed RSSI into a
// z-score.
package pathloss

import "math"

// MinDistance is the smallest distance the model will take a log10 of.
const MinDistance = 1e-6

// Model is the process-wide, immutable log-distance path-loss model.
// Sigma here is the model's own fixed measurement-noise scale used for
// z-scoring; it is distinct from a Kalman filter's adaptive sigma.
type Model struct {
	D0    float64
	Sigma float64
}

// Default returns the model with d0 = 1.0 m and sigma = 4.0 dB.
func Default() Model {
	return Model{D0: 1.0, Sigma: 4.0}
}

// Mu returns the mean predicted RSSI at distance d (metres), given the
// anchor's current (rssi0, n). d is clamped to MinDistance before the log.
func (m Model) Mu(rssi0, n, d float64) float64 {
	safeD := math.Max(d, MinDistance)
	return rssi0 - 10*n*math.Log10(safeD/m.D0)
}

// Z returns the standardized residual of an observed RSSI against the
// model's prediction at (rssi0, n, d).
func (m Model) Z(rObs, rssi0, n, d float64) float64 {
	return (rObs - m.Mu(rssi0, n, d)) / m.Sigma
}
