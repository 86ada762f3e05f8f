package grid

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	backgroundMaxIterations = 10
	backgroundSigmas        = 2.0
	backgroundTolerance     = 0.01
)

// BackgroundResult is the outcome of EstimateBackground: the trimmed mean
// track count and the squares that survived outlier removal.
type BackgroundResult struct {
	Mean    float64
	Members []*Square
}

// EstimateBackground approximates the non-specific track density of a
// recording. Squares whose track count lies more than two standard
// deviations above the running mean are treated as signal and dropped; the
// mean of the survivors is recomputed until it changes by less than 1% or ten
// iterations have run. If a pass would drop every square, the previous
// state is returned.
func EstimateBackground(squares []*Square) BackgroundResult {
	if len(squares) == 0 {
		return BackgroundResult{}
	}

	members := squares
	mean := stat.Mean(trackCounts(members), nil)

	for iter := 0; iter < backgroundMaxIterations; iter++ {
		counts := trackCounts(members)
		stddev := math.Sqrt(stat.MomentAbout(2, counts, mean, nil))
		threshold := mean + backgroundSigmas*stddev

		survivors := make([]*Square, 0, len(members))
		for _, sq := range members {
			if float64(sq.NrTracks) <= threshold {
				survivors = append(survivors, sq)
			}
		}
		if len(survivors) == 0 {
			break
		}

		newMean := stat.Mean(trackCounts(survivors), nil)
		converged := mean == 0 || math.Abs(newMean-mean)/mean < backgroundTolerance
		mean, members = newMean, survivors
		if converged {
			break
		}
	}

	return BackgroundResult{Mean: mean, Members: members}
}

func trackCounts(squares []*Square) []float64 {
	counts := make([]float64, len(squares))
	for i, sq := range squares {
		counts[i] = float64(sq.NrTracks)
	}
	return counts
}
