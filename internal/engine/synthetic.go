package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// SyntheticEngine generates deterministic detections for testing and demos.
// Output depends only on the image path and the detection parameters, so a
// sweep over Threshold produces different but repeatable results.
type SyntheticEngine struct {
	// Configuration
	NrFrames      int           // frames per recording
	FrameInterval float64       // seconds per frame
	BaseTracks    int           // tracks at threshold 0
	MeanDuration  float64       // seconds, mean of the exponential duration distribution
	ImageSize     float64       // µm, edge of the field of view
	Hotspots      int           // clustered signal regions per image
	SignalShare   float64       // fraction of tracks placed in hotspots
	Delay         time.Duration // simulated processing time

	// Fail, when set, is consulted before generating; a non-nil error fails
	// the request.
	Fail func(Request) error
}

// NewSyntheticEngine returns a generator with defaults matching a typical
// 2000-frame acquisition.
func NewSyntheticEngine() *SyntheticEngine {
	return &SyntheticEngine{
		NrFrames:      2000,
		FrameInterval: 0.05,
		BaseTracks:    2400,
		MeanDuration:  0.5,
		ImageSize:     82.0864,
		Hotspots:      4,
		SignalShare:   0.4,
	}
}

func seedFor(req Request) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%g|%g", req.ImagePath, req.Params.Threshold, req.Params.LinkingMaxDistance)
	return int64(h.Sum64())
}

// Detect implements Engine.
func (s *SyntheticEngine) Detect(ctx context.Context, req Request) (*Result, error) {
	if s.Fail != nil {
		if err := s.Fail(req); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEngine, req.Recording, err)
		}
	}
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.Delay):
		}
	}

	rng := rand.New(rand.NewSource(seedFor(req)))
	raw := int(float64(s.BaseTracks) / (1 + 0.25*math.Max(0, req.Params.Threshold)))
	minSpots := max(req.Params.MinNrSpotsInTrack, 1)

	type hotspot struct{ x, y, sigma float64 }
	spots := make([]hotspot, s.Hotspots)
	for i := range spots {
		spots[i] = hotspot{
			x:     s.ImageSize * (0.15 + 0.7*rng.Float64()),
			y:     s.ImageSize * (0.15 + 0.7*rng.Float64()),
			sigma: s.ImageSize * 0.03,
		}
	}

	res := &Result{NrFrames: s.NrFrames, NrTracksRaw: raw}
	for i := 0; i < raw; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		frames := 1 + int(rng.ExpFloat64()*s.MeanDuration/s.FrameInterval)
		nrSpots := frames + 1
		res.NrSpots += nrSpots
		if nrSpots < minSpots {
			continue
		}

		var x, y float64
		if len(spots) > 0 && rng.Float64() < s.SignalShare {
			h := spots[rng.Intn(len(spots))]
			x = clampTo(h.x+rng.NormFloat64()*h.sigma, s.ImageSize)
			y = clampTo(h.y+rng.NormFloat64()*h.sigma, s.ImageSize)
		} else {
			x = rng.Float64() * s.ImageSize
			y = rng.Float64() * s.ImageSize
		}

		duration := float64(frames) * s.FrameInterval
		diffusion := 0.05 + 0.2*rng.Float64()
		displacement := math.Sqrt(4*diffusion*duration) * (0.5 + rng.Float64())
		meanSpeed := displacement / duration * (1 + rng.Float64())
		gaps := 0
		if req.Params.AllowGapClosing && frames > 4 {
			gaps = rng.Intn(min(frames/4, req.Params.MaxFrameGap+1) + 1)
		}
		total := meanSpeed * duration

		res.Tracks = append(res.Tracks, Track{
			TrackID:                 len(res.Tracks),
			NrSpots:                 nrSpots,
			NrGaps:                  gaps,
			LongestGap:              min(gaps, req.Params.MaxFrameGap),
			Duration:                math.Round(duration*1000) / 1000,
			X:                       x,
			Y:                       y,
			Displacement:            displacement,
			MaxSpeed:                meanSpeed * (1.5 + rng.Float64()),
			MedianSpeed:             meanSpeed * (0.8 + 0.2*rng.Float64()),
			MeanSpeed:               meanSpeed,
			DiffusionCoefficient:    diffusion,
			DiffusionCoefficientExt: diffusion * (0.9 + 0.2*rng.Float64()),
			TotalDistance:           total,
			ConfinementRatio:        math.Min(1, displacement/math.Max(total, 1e-9)),
		})
	}
	res.NrTracksFiltered = len(res.Tracks)
	return res, nil
}

func clampTo(v, size float64) float64 {
	return math.Min(math.Max(v, 0), size)
}
