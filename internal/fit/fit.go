// Package fit extracts the decay constant Tau from a distribution of track
// durations by fitting a single exponential with Levenberg-Marquardt.
package fit

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/spt.report/internal/monitoring"
)

// Status classifies the outcome of FitTau. Fit failures are reported here,
// never as errors.
type Status string

const (
	StatusSuccess            Status = "SUCCESS"
	StatusInsufficientPoints Status = "INSUFFICIENT_POINTS"
	StatusRSquaredTooLow     Status = "RSQUARED_TOO_LOW"
	StatusNoFit              Status = "NO_FIT"
)

// TauResult is the outcome of FitTau. Tau is in milliseconds.
type TauResult struct {
	Tau      float64
	RSquared float64
	Status   Status
}

// Params are the coefficients of y = M·exp(−T·x) + B.
type Params struct {
	M, T, B float64
}

// Eval returns the model value at x.
func (p Params) Eval(x float64) float64 {
	return p.M*math.Exp(-p.T*x) + p.B
}

// Tau converts the rate constant to a millisecond time constant.
func (p Params) Tau() float64 {
	if p.T > 0 {
		return 1000 / p.T
	}
	return math.NaN()
}

// ErrNoConvergence is returned by FitExponential when the solver produced
// non-finite parameters.
var ErrNoConvergence = errors.New("exponential fit did not converge")

const (
	maxIterations  = 200
	costTolerance  = 1e-12
	stepTolerance  = 1e-12
	initialLambda  = 1e-3
	lambdaFactor   = 10.0
	maxLambda      = 1e16
	minPositive    = 1e-6
	minRate        = 1e-9
	maxRate        = 1e3
	minAmplitude   = 1e-9
	maxAmplitude   = 1e9
	logLinearFloor = 0.01
)

// FitTau fits the frequency distribution of durations and reports Tau with
// its goodness of fit. Fewer than minTracks finite durations yields
// INSUFFICIENT_POINTS with zero values; an R² below minRSquared yields
// RSQUARED_TOO_LOW with the computed values kept.
func FitTau(durations []float64, minTracks int, minRSquared float64) TauResult {
	res := fitTau(durations, minTracks, minRSquared)
	monitoring.FitTotal.WithLabelValues(string(res.Status)).Inc()
	return res
}

func fitTau(durations []float64, minTracks int, minRSquared float64) TauResult {
	if countFinite(durations) < minTracks {
		return TauResult{Status: StatusInsufficientPoints}
	}
	x, y := Frequency(durations)
	if len(x) < 2 {
		return TauResult{Tau: math.NaN(), RSquared: math.NaN(), Status: StatusNoFit}
	}

	p, err := FitExponential(x, y)
	if err != nil {
		return TauResult{Tau: math.NaN(), RSquared: math.NaN(), Status: StatusNoFit}
	}
	tau := p.Tau()
	r2 := RSquared(x, y, p)
	res := TauResult{Tau: tau, RSquared: r2}
	switch {
	case !isFinite(tau) || !isFinite(r2):
		res.Status = StatusNoFit
	case r2 < minRSquared:
		res.Status = StatusRSquaredTooLow
	default:
		res.Status = StatusSuccess
	}
	return res
}

// Frequency builds the duration histogram keyed by exact duration value,
// sorted ascending. NaN and infinite durations are ignored.
func Frequency(durations []float64) (x, y []float64) {
	counts := make(map[float64]int, len(durations))
	for _, d := range durations {
		if !isFinite(d) {
			continue
		}
		counts[d]++
	}
	x = make([]float64, 0, len(counts))
	for k := range counts {
		x = append(x, k)
	}
	sort.Float64s(x)
	y = make([]float64, len(x))
	for i, k := range x {
		y[i] = float64(counts[k])
	}
	return x, y
}

// RSquared is 1 − SS_res/SS_tot of the model over (x, y).
func RSquared(x, y []float64, p Params) float64 {
	mean := stat.Mean(y, nil)
	var ssRes, ssTot float64
	for i := range x {
		r := y[i] - p.Eval(x[i])
		ssRes += r * r
		d := y[i] - mean
		ssTot += d * d
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return math.NaN()
	}
	return 1 - ssRes/ssTot
}

// InitialGuess derives starting parameters from the data: B from the floor
// of y, M from its range, and T from a log-linear regression of the points
// that stand clearly above the floor.
func InitialGuess(x, y []float64) Params {
	b := math.Max(0, floats.Min(y))
	m := math.Max(minPositive, floats.Max(y)-b)

	cutoff := math.Max(minPositive, logLinearFloor*m)
	var lx, ly []float64
	for i := range x {
		if d := y[i] - b; d > cutoff {
			lx = append(lx, x[i])
			ly = append(ly, math.Log(d))
		}
	}

	var t float64
	if len(lx) >= 2 {
		_, slope := stat.LinearRegression(lx, ly, nil, false)
		t = math.Max(minRate, -slope)
	} else {
		t = 1 / math.Max(1e-3, floats.Max(x))
	}
	if math.IsNaN(t) {
		t = 1 / math.Max(1e-3, floats.Max(x))
	}
	return clampParams(Params{M: m, T: t, B: b}, floats.Max(y))
}

// FitExponential runs a bounded Levenberg-Marquardt fit of
// y = M·exp(−T·x) + B. Parameters are projected back into the box
// M∈[1e-9,1e9], T∈[1e-9,1e3], B∈[0,max(1,max y)] after every step.
func FitExponential(x, y []float64) (p Params, err error) {
	if len(x) != len(y) {
		return Params{}, fmt.Errorf("x and y lengths differ: %d != %d", len(x), len(y))
	}
	if len(x) < 2 {
		return Params{}, fmt.Errorf("need at least 2 points, got %d", len(x))
	}
	defer func() {
		if r := recover(); r != nil {
			p = Params{M: math.NaN(), T: math.NaN(), B: math.NaN()}
			err = fmt.Errorf("%w: %v", ErrNoConvergence, r)
		}
	}()

	yMax := floats.Max(y)
	p = InitialGuess(x, y)
	p = levenbergMarquardt(x, y, p, yMax)
	if !isFinite(p.M) || !isFinite(p.T) || !isFinite(p.B) {
		return p, ErrNoConvergence
	}
	return p, nil
}

func levenbergMarquardt(x, y []float64, p Params, yMax float64) Params {
	n := len(x)
	jac := mat.NewDense(n, 3, nil)
	res := mat.NewVecDense(n, nil)
	var jtj mat.Dense
	var jtr mat.VecDense
	var delta mat.VecDense

	lambda := initialLambda
	cost := sumSquares(x, y, p)

	for iter := 0; iter < maxIterations; iter++ {
		for i := range x {
			e := math.Exp(-p.T * x[i])
			jac.Set(i, 0, e)
			jac.Set(i, 1, -p.M*x[i]*e)
			jac.Set(i, 2, 1)
			res.SetVec(i, y[i]-(p.M*e+p.B))
		}
		jtj.Mul(jac.T(), jac)
		jtr.MulVec(jac.T(), res)

		improved := false
		for !improved && lambda < maxLambda {
			a := mat.DenseCopyOf(&jtj)
			for k := 0; k < 3; k++ {
				d := jtj.At(k, k)
				if d == 0 {
					d = 1
				}
				a.Set(k, k, d*(1+lambda))
			}
			if err := delta.SolveVec(a, &jtr); err != nil {
				lambda *= lambdaFactor
				continue
			}

			next := clampParams(Params{
				M: p.M + delta.AtVec(0),
				T: p.T + delta.AtVec(1),
				B: p.B + delta.AtVec(2),
			}, yMax)
			nextCost := sumSquares(x, y, next)
			if !isFinite(nextCost) || nextCost >= cost {
				lambda *= lambdaFactor
				continue
			}

			improved = true
			step := math.Sqrt(sq(next.M-p.M) + sq(next.T-p.T) + sq(next.B-p.B))
			rel := (cost - nextCost) / math.Max(cost, math.SmallestNonzeroFloat64)
			p, cost = next, nextCost
			lambda = math.Max(lambda/lambdaFactor, 1e-12)
			if rel < costTolerance || step < stepTolerance {
				return p
			}
		}
		if !improved {
			return p
		}
	}
	return p
}

func clampParams(p Params, yMax float64) Params {
	p.M = clamp(p.M, minAmplitude, maxAmplitude)
	p.T = clamp(p.T, minRate, maxRate)
	p.B = clamp(p.B, 0, math.Max(1, yMax))
	return p
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Min(math.Max(v, lo), hi)
}

func sumSquares(x, y []float64, p Params) float64 {
	var s float64
	for i := range x {
		r := y[i] - p.Eval(x[i])
		s += r * r
	}
	return s
}

func sq(v float64) float64 { return v * v }

func countFinite(xs []float64) int {
	n := 0
	for _, v := range xs {
		if isFinite(v) {
			n++
		}
	}
	return n
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
