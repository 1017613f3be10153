// Package kalman implements the per-anchor adaptive Kalman filter that
// recalibrates the log-distance path-loss parameters (RSSI0, n) from the
// live stream of (RSSI, estimated distance) measurements. Process noise Q
// and measurement noise sigma are themselves adapted online from rolling
// residual and RSSI windows.
package kalman

import "math"

const (
	// minRequiredPoints is the minimum window size before adaptation fires.
	minRequiredPoints = 5
	// maxBuffer is the hard FIFO cap on the residual and RSSI windows.
	maxBuffer = 50
	// alpha scales residual variance into process noise Q.
	alpha = 0.1
	// beta scales RSSI standard deviation into measurement noise sigma.
	beta = 0.8
	// d0 is the reference distance, in metres.
	d0 = 1.0
	// minDistance is the smallest distance the filter will log10.
	minDistance = 1e-6
)

// Filter is one anchor's adaptive Kalman filter over the 2-state parameter
// vector [rssi0, n]. The state itself is owned by the caller (the Anchor);
// Filter owns only P, Q, sigma and the rolling windows.
type Filter struct {
	Q     [2][2]float64
	P     [2][2]float64
	sigma float64

	residuals []float64
	rssiVals  []float64
}

// New returns a filter with the spec's initial covariance, process noise,
// and measurement noise.
func New() *Filter {
	return &Filter{
		Q: [2][2]float64{
			{0.0025 * 0.0025, 0},
			{0, 0.0001 * 0.0001},
		},
		P: [2][2]float64{
			{1.0, 0},
			{0, 0.1},
		},
		sigma: 4.0,
	}
}

// Sigma returns the filter's current adaptive measurement-noise standard
// deviation.
func (f *Filter) Sigma() float64 { return f.sigma }

// ResidualWindowLen and RSSIWindowLen expose window sizes for diagnostics
// and tests.
func (f *Filter) ResidualWindowLen() int { return len(f.residuals) }
func (f *Filter) RSSIWindowLen() int     { return len(f.rssiVals) }

func popFront(s []float64) []float64 {
	return s[1:]
}

func pushCapped(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > maxBuffer {
		s = popFront(s)
	}
	return s
}

func populationVariance(s []float64) float64 {
	n := float64(len(s))
	mean := 0.0
	for _, v := range s {
		mean += v
	}
	mean /= n
	variance := 0.0
	for _, v := range s {
		d := v - mean
		variance += d * d
	}
	return variance / n
}

func populationStdDev(s []float64) float64 {
	return math.Sqrt(populationVariance(s))
}

// Step performs one sequence_step: given the anchor's current (rssi0, n)
// and one new (measured RSSI, estimated distance) pair, it updates the
// filter's adaptive Q/sigma, runs predict+update, and returns the new
// (rssi0, n) estimate.
func (f *Filter) Step(rssi0, n, rVal, dVal float64) (newRSSI0, newN float64) {
	// 1. bookkeeping: append RSSI, cap window.
	f.rssiVals = pushCapped(f.rssiVals, rVal)

	// 2. adapt sigma from RSSI window, once enough samples; never let a
	// degenerate (zero-stddev) window drive sigma to zero.
	if len(f.rssiVals) >= minRequiredPoints {
		if sd := populationStdDev(f.rssiVals); sd > 0 {
			f.sigma = beta * sd
		}
	}

	// 3. adapt Q from residual window, once enough samples.
	if len(f.residuals) >= minRequiredPoints {
		vr := populationVariance(f.residuals)
		f.Q[0][0] = alpha * vr
		f.Q[1][1] = alpha * vr / 100.0
	}

	// 4. predict covariance: P += Q (identity state prediction). Keep the
	// pre-predict P so a degenerate update below can hold prior P exactly,
	// per §7's "hold prior σ/P; continue".
	priorP := f.P
	f.P[0][0] += f.Q[0][0]
	f.P[0][1] += f.Q[0][1]
	f.P[1][0] += f.Q[1][0]
	f.P[1][1] += f.Q[1][1]

	// 5. observation row H = [1, X], distance clamped from below.
	safeD := math.Max(dVal, minDistance)
	x := -10 * math.Log10(safeD/d0)
	h0, h1 := 1.0, x

	// 6. predicted measurement and residual.
	rPredict := h0*rssi0 + h1*n
	resid := rVal - rPredict
	f.residuals = pushCapped(f.residuals, resid)

	// 7. innovation variance.
	s := h0*(f.P[0][0]*h0+f.P[0][1]*h1) + h1*(f.P[1][0]*h0+f.P[1][1]*h1) + f.sigma*f.sigma
	if s <= 0 {
		// Numeric degeneracy: hold prior state and prior P, skip the update.
		f.P = priorP
		return rssi0, n
	}

	// 8. Kalman gain.
	k0 := (f.P[0][0]*h0 + f.P[0][1]*h1) / s
	k1 := (f.P[1][0]*h0 + f.P[1][1]*h1) / s

	// 9. state update.
	newRSSI0 = rssi0 + k0*resid
	newN = n + k1*resid

	// 10. covariance update: P <- (I - K H) P, four entries computed
	// directly from the preceding P.
	kh00 := k0 * h0
	kh01 := k0 * h1
	kh10 := k1 * h0
	kh11 := k1 * h1

	i00, i01 := 1.0-kh00, -kh01
	i10, i11 := -kh10, 1.0-kh11

	p00, p01, p10, p11 := f.P[0][0], f.P[0][1], f.P[1][0], f.P[1][1]

	f.P[0][0] = i00*p00 + i01*p10
	f.P[0][1] = i00*p01 + i01*p11
	f.P[1][0] = i10*p00 + i11*p10
	f.P[1][1] = i10*p01 + i11*p11

	if !allFinite(newRSSI0, newN) {
		// Same degeneracy guard as the s<=0 case above: hold prior P too.
		f.P = priorP
		return rssi0, n
	}
	return newRSSI0, newN
}

func allFinite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
