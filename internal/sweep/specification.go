package sweep

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/banshee-data/spt.report/internal/fsutil"
)

// ErrNoEnabledParameters is returned when a specification enables nothing.
var ErrNoEnabledParameters = errors.New("sweep specification enables no parameters")

const (
	sweepTable  = "sweep"
	valuePrefix = "Value "
	rangeKey    = "range"
)

// Parameter is one configuration parameter and its candidate values.
type Parameter struct {
	Name    string
	Enabled bool
	Values  []float64
}

// Specification lists the parameters of a sweep in document order. Each
// enabled parameter is swept on its own against the same baseline.
type Specification struct {
	Parameters []Parameter
}

// Enabled returns the enabled parameters in document order.
func (s Specification) Enabled() []Parameter {
	var out []Parameter
	for _, p := range s.Parameters {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Runs is the number of sandbox runs the specification expands to.
func (s Specification) Runs() int {
	n := 0
	for _, p := range s.Enabled() {
		n += len(p.Values)
	}
	return n
}

// LoadSpecification reads a TOML sweep document.
func LoadSpecification(fsys fsutil.FileSystem, path string) (Specification, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return Specification{}, fmt.Errorf("read sweep specification: %w", err)
	}
	spec, err := ParseSpecification(string(data))
	if err != nil {
		return Specification{}, fmt.Errorf("sweep specification %s: %w", path, err)
	}
	return spec, nil
}

// ParseSpecification decodes a sweep document of the form
//
//	[sweep]
//	Threshold = { enabled = true }
//
//	[Threshold]
//	"Value 0" = 5
//	"Value 1" = 6
//
// A parameter table may give range = "start:end:step" instead of, or in
// addition to, numbered values; range values follow the numbered ones.
func ParseSpecification(doc string) (Specification, error) {
	var raw map[string]map[string]any
	md, err := toml.Decode(doc, &raw)
	if err != nil {
		return Specification{}, err
	}
	flags, ok := raw[sweepTable]
	if !ok {
		return Specification{}, fmt.Errorf("missing [%s] table", sweepTable)
	}

	var spec Specification
	for _, key := range md.Keys() {
		if len(key) != 2 || key[0] != sweepTable {
			continue
		}
		name := key[1]
		p := Parameter{Name: name}
		switch v := flags[name].(type) {
		case map[string]any:
			enabled, ok := v["enabled"].(bool)
			if !ok {
				return Specification{}, fmt.Errorf("parameter %q: enabled must be a boolean", name)
			}
			p.Enabled = enabled
		case bool:
			p.Enabled = v
		default:
			return Specification{}, fmt.Errorf("parameter %q: expected { enabled = bool }, got %T", name, v)
		}

		values, err := parameterValues(raw[name])
		if err != nil {
			return Specification{}, fmt.Errorf("parameter %q: %w", name, err)
		}
		if p.Enabled && len(values) == 0 {
			return Specification{}, fmt.Errorf("parameter %q is enabled but has no values", name)
		}
		p.Values = values
		spec.Parameters = append(spec.Parameters, p)
	}
	return spec, nil
}

func parameterValues(table map[string]any) ([]float64, error) {
	type indexed struct {
		idx int
		v   float64
	}
	var numbered []indexed
	var ranged []float64
	for k, raw := range table {
		if k == rangeKey {
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("range must be a string, got %T", raw)
			}
			r, err := ParseRangeSpec(s)
			if err != nil {
				return nil, err
			}
			ranged = r.Values()
			continue
		}
		if !strings.HasPrefix(k, valuePrefix) {
			return nil, fmt.Errorf("unexpected key %q", k)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(k, valuePrefix)))
		if err != nil {
			return nil, fmt.Errorf("bad value key %q: %w", k, err)
		}
		v, err := toFloat64(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		numbered = append(numbered, indexed{idx, v})
	}
	sort.Slice(numbered, func(i, j int) bool { return numbered[i].idx < numbered[j].idx })

	out := make([]float64, 0, len(numbered)+len(ranged))
	for _, n := range numbered {
		out = append(out, n.v)
	}
	return append(out, ranged...), nil
}

func toFloat64(v any) (float64, error) {
	switch val := v.(type) {
	case int64:
		return float64(val), nil
	case float64:
		return val, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as a number: %w", val, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}
