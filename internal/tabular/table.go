// Package tabular reads and writes the flat, header-first CSV tables that
// carry recordings, tracks and squares between pipeline stages.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/spt.report/internal/fsutil"
)

var (
	// ErrSchema reports a header that does not match the expected schema.
	ErrSchema = errors.New("table schema mismatch")

	// ErrMissingInput reports an input table that could not be opened.
	ErrMissingInput = errors.New("missing input table")
)

// Schema names the required leading columns of a table. Tables may carry
// extra trailing columns (for example "Case" after a sweep flatten).
type Schema struct {
	Name    string
	Columns []string
}

// Validate checks that header starts with the schema columns in order.
func (s Schema) Validate(header []string) error {
	if len(header) < len(s.Columns) {
		return fmt.Errorf("%w: %s table has %d columns, want at least %d",
			ErrSchema, s.Name, len(header), len(s.Columns))
	}
	for i, col := range s.Columns {
		if strings.TrimSpace(header[i]) != col {
			return fmt.Errorf("%w: %s column %d is %q, want %q", ErrSchema, s.Name, i, header[i], col)
		}
	}
	return nil
}

// Table is an in-memory header plus data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// NewTable returns an empty table with a copy of the schema columns as header.
func NewTable(s Schema) *Table {
	return &Table{Header: append([]string(nil), s.Columns...)}
}

// Column returns the index of name in the header, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Get returns the cell at row/name, or "" when the column is absent.
func (t *Table) Get(row int, name string) string {
	i := t.Column(name)
	if i < 0 || i >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][i]
}

// SetColumn sets name to value in every row, appending the column if absent.
func (t *Table) SetColumn(name, value string) {
	i := t.Column(name)
	if i < 0 {
		t.Header = append(t.Header, name)
		i = len(t.Header) - 1
	}
	for r := range t.Rows {
		for len(t.Rows[r]) <= i {
			t.Rows[r] = append(t.Rows[r], "")
		}
		t.Rows[r][i] = value
	}
}

// Read parses a CSV table and validates its header against s. A zero Schema
// skips validation.
func Read(fsys fsutil.FileSystem, path string, s Schema) (*Table, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingInput, path, err)
	}
	defer f.Close()

	t, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(s.Columns) > 0 {
		if err := s.Validate(t.Header); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return t, nil
}

// Decode parses a CSV stream whose first record is the header.
func Decode(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrSchema)
	}
	// Spreadsheet exports sometimes prefix the first cell with a BOM.
	records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	return &Table{Header: records[0], Rows: records[1:]}, nil
}

// Write encodes t to path, creating the parent directory.
func Write(fsys fsutil.FileSystem, path string, t *Table) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := Encode(w, t); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return w.Close()
}

// Encode writes the header and rows as CSV.
func Encode(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// FormatFloat renders v with the fixed three-decimal precision used by every
// numeric table column. NaN renders as an empty cell.
func FormatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// FormatOptional renders a pending value (nil) as an empty cell.
func FormatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return FormatFloat(*v)
}

// FormatBool renders flags the way the tables store them.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ParseBool accepts True/False in any case plus 1/0 and yes/no.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y":
		return true, nil
	case "false", "0", "no", "n", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// ParseFloat parses a numeric cell; empty cells parse as NaN.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// ParseOptional parses a numeric cell; empty cells yield nil.
func ParseOptional(s string) (*float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ParseInt parses an integer cell, tolerating a "12.000" float rendering.
func ParseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return int(math.Round(f)), nil
}
