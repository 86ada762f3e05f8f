package config

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/spt.report/internal/monitoring"
)

// value returns the decoded value of a registered parameter. Missing or
// invalid values are replaced by the default, written back into the
// document and logged; the caller still gets a usable value.
func (h *Handle) value(name string) any {
	spec, ok := registry[name]
	if !ok {
		panic("config: unregistered parameter " + name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	raw, present := h.doc[spec.section][name]
	if present {
		if v, ok := decode(raw, spec.kind); ok && (spec.valid == nil || spec.valid(v)) {
			return v
		}
	}

	log := monitoring.Component("config").Warn().
		Str("section", spec.section).
		Str("parameter", name).
		Interface("default", spec.def)
	if present {
		log.Interface("value", raw).Msg("invalid configuration value, using default")
	} else {
		log.Msg("missing configuration value, using default")
	}
	h.put(spec.section, name, encode(spec.def))
	return spec.def
}

func decode(raw any, k kind) (any, bool) {
	switch k {
	case kindFloat:
		switch v := raw.(type) {
		case json.Number:
			f, err := v.Float64()
			return f, err == nil && !math.IsNaN(f)
		case float64:
			return v, true
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			return f, err == nil
		}
	case kindInt:
		switch v := raw.(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return int(n), true
			}
			f, err := v.Float64()
			if err == nil && f == math.Trunc(f) {
				return int(f), true
			}
		case float64:
			if v == math.Trunc(v) {
				return int(v), true
			}
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			return n, err == nil
		}
	case kindBool:
		switch v := raw.(type) {
		case bool:
			return v, true
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			return b, err == nil
		}
	case kindString:
		if s, ok := raw.(string); ok {
			return s, true
		}
	}
	return nil, false
}

// The typed accessors below panic when name is not a registered parameter;
// callers pass the package's parameter constants.

// Float returns a registered float parameter.
func (h *Handle) Float(name string) float64 { return h.value(name).(float64) }

// Int returns a registered integer parameter.
func (h *Handle) Int(name string) int { return h.value(name).(int) }

// Bool returns a registered boolean parameter.
func (h *Handle) Bool(name string) bool { return h.value(name).(bool) }

// String returns a registered string parameter.
func (h *Handle) String(name string) string { return h.value(name).(string) }

// DetectionParams is the parameter bundle handed to the detection engine.
type DetectionParams struct {
	Threshold              float64 `json:"threshold"`
	Radius                 float64 `json:"radius"`
	DoSubpixelLocalization bool    `json:"do_subpixel_localization"`
	DoMedianFiltering      bool    `json:"do_median_filtering"`
	LinkingMaxDistance     float64 `json:"linking_max_distance"`
	AllowGapClosing        bool    `json:"allow_gap_closing"`
	GapClosingMaxDistance  float64 `json:"gap_closing_max_distance"`
	MaxFrameGap            int     `json:"max_frame_gap"`
	AllowTrackSplitting    bool    `json:"allow_track_splitting"`
	SplittingMaxDistance   float64 `json:"splitting_max_distance"`
	AllowTrackMerging      bool    `json:"allow_track_merging"`
	MergingMaxDistance     float64 `json:"merging_max_distance"`
	MinNrSpotsInTrack      int     `json:"min_nr_spots_in_track"`
}

// Detection returns the TrackMate section as engine parameters.
func (h *Handle) Detection() DetectionParams {
	return DetectionParams{
		Threshold:              h.Float(Threshold),
		Radius:                 h.Float(Radius),
		DoSubpixelLocalization: h.Bool(DoSubpixelLocalization),
		DoMedianFiltering:      h.Bool(DoMedianFiltering),
		LinkingMaxDistance:     h.Float(LinkingMaxDistance),
		AllowGapClosing:        h.Bool(AllowGapClosing),
		GapClosingMaxDistance:  h.Float(GapClosingMaxDistance),
		MaxFrameGap:            h.Int(MaxFrameGap),
		AllowTrackSplitting:    h.Bool(AllowTrackSplitting),
		SplittingMaxDistance:   h.Float(SplittingMaxDistance),
		AllowTrackMerging:      h.Bool(AllowTrackMerging),
		MergingMaxDistance:     h.Float(MergingMaxDistance),
		MinNrSpotsInTrack:      h.Int(MinNrSpotsInTrack),
	}
}

// SquaresParams drives squares generation.
type SquaresParams struct {
	NrSquaresInRow  int
	MinTracksForTau int
	MinRSquared     float64
	MinDensityRatio float64
	MaxVariability  float64
	NeighbourMode   string
	ImageSize       float64
	FrameInterval   float64 // seconds
	Granularity     int
	Plot            bool
}

// Squares returns the Generate Squares section.
func (h *Handle) Squares() SquaresParams {
	return SquaresParams{
		NrSquaresInRow:  h.Int(NrSquaresInRow),
		MinTracksForTau: h.Int(MinTracksForTau),
		MinRSquared:     h.Float(MinRequiredRSquared),
		MinDensityRatio: h.Float(MinRequiredDensity),
		MaxVariability:  h.Float(MaxAllowedVariability),
		NeighbourMode:   h.String(NeighbourMode),
		ImageSize:       h.Float(ImageSize),
		FrameInterval:   h.Float(FrameInterval),
		Granularity:     h.Int(VariabilityGranularity),
		Plot:            h.Bool(Plot),
	}
}

// ProcessingParams drives the recording pipeline.
type ProcessingParams struct {
	TimeLimit      time.Duration
	ImagesRoot     string
	ImageExtension string
}

// Processing returns the Recording Processing section.
func (h *Handle) Processing() ProcessingParams {
	return ProcessingParams{
		TimeLimit:      time.Duration(h.Int(TimeLimit)) * time.Second,
		ImagesRoot:     h.String(ImagesRoot),
		ImageExtension: h.String(ImageExtension),
	}
}
