package config

// Section names of the configuration document.
const (
	SectionTrackMate  = "TrackMate"
	SectionSquares    = "Generate Squares"
	SectionProcessing = "Recording Processing"
	SectionPaths      = "Paths"
)

// Parameter names. Names are unique across sections so a sweep can address
// a parameter by name alone.
const (
	Threshold              = "Threshold"
	Radius                 = "RADIUS"
	DoSubpixelLocalization = "DO_SUBPIXEL_LOCALIZATION"
	DoMedianFiltering      = "DO_MEDIAN_FILTERING"
	LinkingMaxDistance     = "LINKING_MAX_DISTANCE"
	AllowGapClosing        = "ALLOW_GAP_CLOSING"
	GapClosingMaxDistance  = "GAP_CLOSING_MAX_DISTANCE"
	MaxFrameGap            = "MAX_FRAME_GAP"
	AllowTrackSplitting    = "ALLOW_TRACK_SPLITTING"
	SplittingMaxDistance   = "SPLITTING_MAX_DISTANCE"
	AllowTrackMerging      = "ALLOW_TRACK_MERGING"
	MergingMaxDistance     = "MERGING_MAX_DISTANCE"
	MinNrSpotsInTrack      = "MIN_NR_SPOTS_IN_TRACK"

	NrSquaresInRow         = "Nr of Squares in Row"
	MinTracksForTau        = "Min Tracks to Calculate Tau"
	MinRequiredRSquared    = "Min Required R Squared"
	MinRequiredDensity     = "Min Required Density Ratio"
	MaxAllowedVariability  = "Max Allowable Variability"
	NeighbourMode          = "Neighbour Mode"
	ImageSize              = "Image Size"
	FrameInterval          = "Frame Interval"
	VariabilityGranularity = "Variability Granularity"
	Plot                   = "Plot"

	TimeLimit      = "Time Limit"
	ImagesRoot     = "Images Root"
	ImageExtension = "Image Extension"

	ProjectRoot = "Project Root"
)

type kind int

const (
	kindFloat kind = iota
	kindInt
	kindBool
	kindString
)

type paramSpec struct {
	section string
	kind    kind
	def     any
	// valid reports whether a decoded value is acceptable; nil accepts any
	// value of the right kind.
	valid func(any) bool
}

func positive(v any) bool {
	switch n := v.(type) {
	case float64:
		return n > 0
	case int:
		return n > 0
	}
	return false
}

func nonNegative(v any) bool {
	switch n := v.(type) {
	case float64:
		return n >= 0
	case int:
		return n >= 0
	}
	return false
}

func neighbourMode(v any) bool {
	s, _ := v.(string)
	return s == "Free" || s == "Relaxed" || s == "Strict"
}

var registry = map[string]paramSpec{
	Threshold:              {SectionTrackMate, kindFloat, 3.0, nonNegative},
	Radius:                 {SectionTrackMate, kindFloat, 0.5, positive},
	DoSubpixelLocalization: {SectionTrackMate, kindBool, false, nil},
	DoMedianFiltering:      {SectionTrackMate, kindBool, false, nil},
	LinkingMaxDistance:     {SectionTrackMate, kindFloat, 0.6, positive},
	AllowGapClosing:        {SectionTrackMate, kindBool, true, nil},
	GapClosingMaxDistance:  {SectionTrackMate, kindFloat, 1.2, positive},
	MaxFrameGap:            {SectionTrackMate, kindInt, 3, nonNegative},
	AllowTrackSplitting:    {SectionTrackMate, kindBool, false, nil},
	SplittingMaxDistance:   {SectionTrackMate, kindFloat, 15.0, positive},
	AllowTrackMerging:      {SectionTrackMate, kindBool, false, nil},
	MergingMaxDistance:     {SectionTrackMate, kindFloat, 15.0, positive},
	MinNrSpotsInTrack:      {SectionTrackMate, kindInt, 3, positive},

	NrSquaresInRow:         {SectionSquares, kindInt, 20, positive},
	MinTracksForTau:        {SectionSquares, kindInt, 20, positive},
	MinRequiredRSquared:    {SectionSquares, kindFloat, 0.9, nil},
	MinRequiredDensity:     {SectionSquares, kindFloat, 2.0, nonNegative},
	MaxAllowedVariability:  {SectionSquares, kindFloat, 10.0, nonNegative},
	NeighbourMode:          {SectionSquares, kindString, "Free", neighbourMode},
	ImageSize:              {SectionSquares, kindFloat, 82.0864, positive},
	FrameInterval:          {SectionSquares, kindFloat, 0.05, positive},
	VariabilityGranularity: {SectionSquares, kindInt, 10, positive},
	Plot:                   {SectionSquares, kindBool, false, nil},

	TimeLimit:      {SectionProcessing, kindInt, 600, positive},
	ImagesRoot:     {SectionProcessing, kindString, "", nil},
	ImageExtension: {SectionProcessing, kindString, ".nd2", nil},

	ProjectRoot: {SectionPaths, kindString, "", nil},
}
