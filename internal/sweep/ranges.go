package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxValues bounds the values a single range may expand to.
const maxValues = 10000

// RangeSpec is a "start:end:step" range of candidate values.
type RangeSpec struct {
	Start float64
	End   float64
	Step  float64
}

// ParseRangeSpec parses a "start:end:step" string into a RangeSpec.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected start:end:step", s)
	}

	var vals [3]float64
	for i, name := range []string{"start", "end", "step"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return RangeSpec{}, fmt.Errorf("invalid %s value %q: %w", name, parts[i], err)
		}
		vals[i] = v
	}
	if vals[2] <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %g", vals[2])
	}
	return RangeSpec{Start: vals[0], End: vals[1], Step: vals[2]}, nil
}

// Values expands the range with GenerateRange.
func (r RangeSpec) Values() []float64 {
	return GenerateRange(r.Start, r.End, r.Step)
}

// GenerateRange returns the values from start to end inclusive, stepping by
// step and rounded to three decimals. It returns nil for an empty or
// oversized range.
func GenerateRange(start, end, step float64) []float64 {
	if step <= 0 || start > end {
		return nil
	}
	expected := int((end-start)/step) + 1
	if expected > maxValues || expected < 0 {
		return nil
	}

	var out []float64
	for i := 0; i < expected+1 && len(out) < maxValues; i++ {
		// Multiplying avoids accumulating step error.
		v := math.Round((start+float64(i)*step)*1000) / 1000
		if v > end+step/1000 {
			break
		}
		out = append(out, v)
	}
	return out
}

// FormatValue renders a candidate value the way it appears in case labels
// and in the configuration document.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
