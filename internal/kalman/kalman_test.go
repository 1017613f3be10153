package kalman

import "testing"

func TestStepFiniteAtDegenerateDistance(t *testing.T) {
	f := New()
	r0, n := f.Step(-59, 2, -59, 0)
	if !allFinite(r0, n) {
		t.Fatalf("Step(d=0) not finite: %v %v", r0, n)
	}
	f2 := New()
	r0b, nb := f2.Step(-59, 2, -59, -1)
	if !allFinite(r0b, nb) {
		t.Fatalf("Step(d=-1) not finite: %v %v", r0b, nb)
	}
}

func TestWindowCap(t *testing.T) {
	f := New()
	rssi0, n := -59.0, 2.0
	for i := 0; i < 100; i++ {
		rssi0, n = f.Step(rssi0, n, -60, 5)
	}
	if f.ResidualWindowLen() > 50 {
		t.Fatalf("residual window exceeded cap: %d", f.ResidualWindowLen())
	}
	if f.RSSIWindowLen() > 50 {
		t.Fatalf("rssi window exceeded cap: %d", f.RSSIWindowLen())
	}
}

func TestAdaptationGateHoldsBelowMinPoints(t *testing.T) {
	f := New()
	wantQ00 := f.Q[0][0]
	wantQ11 := f.Q[1][1]
	rssi0, n := -59.0, 2.0
	for i := 0; i < 4; i++ {
		rssi0, n = f.Step(rssi0, n, -60, 5)
	}
	if f.Q[0][0] != wantQ00 || f.Q[1][1] != wantQ11 {
		t.Fatalf("Q changed before adaptation gate fired: got (%v,%v) want (%v,%v)",
			f.Q[0][0], f.Q[1][1], wantQ00, wantQ11)
	}
}

func TestAdaptationFiresAndRatioHolds(t *testing.T) {
	f := New()
	rssi0, n := -59.0, 2.0
	for i := 0; i < 10; i++ {
		// vary the measured RSSI slightly so residual variance is nonzero.
		r := -60.0 + float64(i%3)
		rssi0, n = f.Step(rssi0, n, r, 5)
	}
	if f.ResidualWindowLen() < minRequiredPoints {
		t.Fatalf("expected adaptation gate to have fired")
	}
	if f.Q[1][1] != f.Q[0][0]/100.0 {
		t.Fatalf("Q[1][1] = %v, want Q[0][0]/100 = %v", f.Q[1][1], f.Q[0][0]/100.0)
	}
}

func TestConvergenceOnRepeatedIdenticalMeasurement(t *testing.T) {
	f := New()
	rssi0, n := -59.0, 2.0
	d := 10.0
	// The measurement that exactly matches the model's prediction at (rssi0,n,d).
	mu := rssi0 - 10*n*1 // log10(10/1) = 1
	var prevDelta float64 = 1e9
	for i := 0; i < 30; i++ {
		newR, newN := f.Step(rssi0, n, mu, d)
		delta := abs(newR-rssi0) + abs(newN-n)
		if i > minRequiredPoints && delta > prevDelta+1e-9 {
			t.Fatalf("state change grew at step %d: %v > %v", i, delta, prevDelta)
		}
		rssi0, n = newR, newN
		prevDelta = delta
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
