// Package geometry holds the 3-D distance and statistical kernels shared by
// the path-loss model, the fix evaluator, and the Kalman filter.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Point3 is a 3-D point in metres.
type Point3 struct {
	X, Y, Z float64
}

// Distance3 returns the Euclidean distance between a and b in ℝ³.
func Distance3(a, b Point3) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// LogPDFStudentT returns log(pdf(z)) for a standard Student's t-distribution
// with v degrees of freedom, evaluated via gonum's distuv implementation.
func LogPDFStudentT(z float64, v int) float64 {
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(v)}
	return t.LogProb(z)
}

// CEP95Point is one knot of the confidence-to-radius calibration table.
type CEP95Point struct {
	Conf   float64
	Radius float64
}

// DefaultCEP95Table is the calibrated confidence→radius lookup table.
var DefaultCEP95Table = []CEP95Point{
	{0.05, 7.4},
	{0.17, 6.1},
	{0.43, 4.3},
	{0.80, 2.5},
	{0.85, 2.0},
	{0.90, 1.6},
	{0.95, 1.2},
	{0.98, 0.9},
}

// CEP95FromConf maps a confidence score in [0, 1] to a CEP95 error radius by
// piecewise-linear interpolation on table. p below the first knot returns the
// first radius; p above the last knot returns the last radius.
func CEP95FromConf(p float64, table []CEP95Point) float64 {
	if len(table) == 0 {
		return 0
	}
	if p <= table[0].Conf {
		return table[0].Radius
	}
	last := table[len(table)-1]
	if p >= last.Conf {
		return last.Radius
	}

	i := 0
	for ; i < len(table)-1; i++ {
		if table[i+1].Conf > p {
			break
		}
	}

	x0, x1 := table[i].Conf, table[i+1].Conf
	y0, y1 := table[i].Radius, table[i+1].Radius
	t := (p - x0) / (x1 - x0)
	return y0 + t*(y1-y0)
}
