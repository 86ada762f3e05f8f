package model

import (
	"fmt"
	"math"
	"strconv"

	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/tabular"
)

// rowReader pulls typed cells out of one table row by column name and keeps
// the first conversion error.
type rowReader struct {
	t   *tabular.Table
	row int
	err error
}

func (r *rowReader) fail(col, cell string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("row %d column %q value %q: %w", r.row+1, col, cell, err)
	}
}

func (r *rowReader) str(col string) string { return r.t.Get(r.row, col) }

func (r *rowReader) int(col string) int {
	cell := r.str(col)
	v, err := tabular.ParseInt(cell)
	if err != nil {
		r.fail(col, cell, err)
	}
	return v
}

func (r *rowReader) float(col string) float64 {
	cell := r.str(col)
	v, err := tabular.ParseFloat(cell)
	if err != nil {
		r.fail(col, cell, err)
	}
	return v
}

func (r *rowReader) optional(col string) *float64 {
	cell := r.str(col)
	v, err := tabular.ParseOptional(cell)
	if err != nil {
		r.fail(col, cell, err)
	}
	return v
}

func (r *rowReader) optionalInt(col string) *int {
	cell := r.str(col)
	if cell == "" {
		return nil
	}
	v, err := tabular.ParseInt(cell)
	if err != nil {
		r.fail(col, cell, err)
		return nil
	}
	return &v
}

func (r *rowReader) bool(col string) bool {
	cell := r.str(col)
	v, err := tabular.ParseBool(cell)
	if err != nil {
		r.fail(col, cell, err)
	}
	return v
}

func formatInt(n int) string { return strconv.Itoa(n) }

func formatOptionalInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

// Float returns a pointer to v, or nil when v is NaN.
func Float(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// Int returns a pointer to n.
func Int(n int) *int { return &n }

// readAll decodes every row of a table with conv.
func readAll[T any](fsys fsutil.FileSystem, path string, s tabular.Schema, conv func(*rowReader) T) ([]T, error) {
	t, err := tabular.Read(fsys, path, s)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(t.Rows))
	for i := range t.Rows {
		r := &rowReader{t: t, row: i}
		v := conv(r)
		if r.err != nil {
			return nil, fmt.Errorf("read %s: %w", path, r.err)
		}
		out = append(out, v)
	}
	return out, nil
}

type rower interface {
	Row() []string
}

func writeAll[T rower](fsys fsutil.FileSystem, path string, s tabular.Schema, items []T) error {
	t := tabular.NewTable(s)
	t.Rows = make([][]string, 0, len(items))
	for _, it := range items {
		t.Rows = append(t.Rows, it.Row())
	}
	return tabular.Write(fsys, path, t)
}
