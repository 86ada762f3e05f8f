package tabular

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/monitoring"
)

// Concatenate merges inputs into output: the header of the first input is
// written once, followed by every data row of every input in order.
//
// Every input is read completely before the output is written, and inputs are
// only removed (deleteInputs) after the output has been written. A failure on
// any input aborts the whole operation and leaves all inputs in place.
func Concatenate(fsys fsutil.FileSystem, inputs []string, output string, deleteInputs bool) error {
	log := monitoring.Component("aggregate")
	if len(inputs) == 0 {
		return fmt.Errorf("concatenate %s: no inputs", filepath.Base(output))
	}

	merged := &Table{}
	for i, in := range inputs {
		data, err := fsys.ReadFile(in)
		if err != nil {
			monitoring.ConcatenationsTotal.WithLabelValues("failed").Inc()
			return fmt.Errorf("concatenate %s: %w: %s: %v", filepath.Base(output), ErrMissingInput, in, err)
		}
		t, err := Decode(bytes.NewReader(data))
		if err != nil {
			monitoring.ConcatenationsTotal.WithLabelValues("failed").Inc()
			return fmt.Errorf("concatenate %s: read %s: %w", filepath.Base(output), in, err)
		}
		if i == 0 {
			merged.Header = t.Header
		}
		merged.Rows = append(merged.Rows, t.Rows...)
	}

	if err := Write(fsys, output, merged); err != nil {
		monitoring.ConcatenationsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("concatenate: %w", err)
	}
	monitoring.ConcatenationsTotal.WithLabelValues("ok").Inc()
	log.Debug().Str("output", output).Int("inputs", len(inputs)).Int("rows", len(merged.Rows)).Msg("concatenated")

	if !deleteInputs {
		return nil
	}
	for _, in := range inputs {
		if filepath.Clean(in) == filepath.Clean(output) {
			continue
		}
		if err := fsys.Remove(in); err != nil {
			log.Warn().Err(err).Str("input", in).Msg("could not remove merged input")
		}
	}
	return nil
}
