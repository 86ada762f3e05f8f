package squares

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/spt.report/internal/model"
)

// tailShare is the fraction of longest (shortest) tracks whose median
// duration is reported as the long (short) track duration.
const tailShare = 0.1

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return floats.Max(xs)
}

// squareMetrics summarises the tracks of one square. Empty squares get NaN
// medians and maxima and zero totals.
func squareMetrics(tracks []*model.Track) model.SquareMetrics {
	n := len(tracks)
	var (
		diff      = make([]float64, n)
		diffExt   = make([]float64, n)
		durations = make([]float64, n)
		disp      = make([]float64, n)
		maxSpeed  = make([]float64, n)
		meanSpeed = make([]float64, n)
		confine   = make([]float64, n)
	)
	for i, t := range tracks {
		diff[i] = t.DiffusionCoefficient
		diffExt[i] = t.DiffusionCoefficientExt
		durations[i] = t.Duration
		disp[i] = t.Displacement
		maxSpeed[i] = t.MaxSpeed
		meanSpeed[i] = t.MeanSpeed
		confine[i] = t.ConfinementRatio
	}

	long, short := math.NaN(), math.NaN()
	if n > 0 {
		sorted := append([]float64(nil), durations...)
		sort.Float64s(sorted)
		k := max(1, int(float64(n)*tailShare))
		short = median(sorted[:k])
		long = median(sorted[n-k:])
	}

	return model.SquareMetrics{
		MedianDiffusionCoefficient:    median(diff),
		MedianDiffusionCoefficientExt: median(diffExt),
		MedianLongTrackDuration:       long,
		MedianShortTrackDuration:      short,
		MedianDisplacement:            median(disp),
		MaxDisplacement:               maxOf(disp),
		TotalDisplacement:             floats.Sum(disp),
		MedianMaxSpeed:                median(maxSpeed),
		MaxMaxSpeed:                   maxOf(maxSpeed),
		MedianMeanSpeed:               median(meanSpeed),
		MaxMeanSpeed:                  maxOf(meanSpeed),
		MaxTrackDuration:              maxOf(durations),
		TotalTrackDuration:            floats.Sum(durations),
		MedianTrackDuration:           median(durations),
		MedianConfinementRatio:        median(confine),
	}
}
