// Package config loads and edits the project configuration document, a
// sectioned JSON file shared by the pipeline, squares generation and sweeps.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/banshee-data/spt.report/internal/fsutil"
	"github.com/banshee-data/spt.report/internal/monitoring"
)

// FileName is the configuration document kept in every project root and
// copied into every sweep sandbox.
const FileName = "Paint Configuration.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// ErrUnknownParameter is returned for parameter names that are neither
// registered nor present in the document.
var ErrUnknownParameter = errors.New("unknown configuration parameter")

// ErrInvalidValue is returned by Check for a value a registered parameter
// would reject.
var ErrInvalidValue = errors.New("invalid configuration value")

// Document is the decoded configuration: section name to parameter map.
// Numbers are kept as json.Number so "3" and "3.0" survive a round trip.
type Document map[string]map[string]any

func (d Document) clone() Document {
	out := make(Document, len(d))
	for sec, params := range d {
		m := make(map[string]any, len(params))
		for k, v := range params {
			m[k] = v
		}
		out[sec] = m
	}
	return out
}

// Checkpoint is an opaque snapshot taken by Handle.Checkpoint.
type Checkpoint struct {
	doc Document
}

// Handle is the single owner of a configuration document. Callers pass it
// explicitly; nothing in the module reads configuration from globals.
type Handle struct {
	mu    sync.Mutex
	fsys  fsutil.FileSystem
	path  string
	doc   Document
	dirty bool
}

// Default returns a handle holding every registered parameter at its
// default value, bound to path.
func Default(fsys fsutil.FileSystem, path string) *Handle {
	doc := make(Document)
	for name, spec := range registry {
		if doc[spec.section] == nil {
			doc[spec.section] = make(map[string]any)
		}
		doc[spec.section][name] = encode(spec.def)
	}
	return &Handle{fsys: fsys, path: path, doc: doc, dirty: true}
}

// Load reads the configuration document at path. The file must have a .json
// extension and be under 1MB. Missing parameters are not an error; the
// typed accessors substitute and persist defaults on first use.
func Load(fsys fsutil.FileSystem, path string) (*Handle, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	doc := make(Document)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON %s: %w", cleanPath, err)
	}
	return &Handle{fsys: fsys, path: cleanPath, doc: doc}, nil
}

// LoadOrDefault loads path, or writes and returns the defaults when the file
// does not exist yet.
func LoadOrDefault(fsys fsutil.FileSystem, path string) (*Handle, error) {
	if !fsys.Exists(path) {
		h := Default(fsys, path)
		monitoring.Component("config").Warn().Str("path", path).Msg("configuration missing, writing defaults")
		return h, h.Save()
	}
	return Load(fsys, path)
}

// Path returns the file the handle saves to.
func (h *Handle) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

// Dirty reports unsaved changes.
func (h *Handle) Dirty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirty
}

// Checkpoint snapshots the whole document.
func (h *Handle) Checkpoint() Checkpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Checkpoint{doc: h.doc.clone()}
}

// Restore replaces the document with a snapshot and marks it dirty.
func (h *Handle) Restore(cp Checkpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.doc = cp.doc.clone()
	h.dirty = true
}

// sectionOf finds the section holding name, preferring the document over the
// registry so unregistered parameters can still be swept.
func (h *Handle) sectionOf(name string) (string, bool) {
	secs := make([]string, 0, len(h.doc))
	for sec := range h.doc {
		secs = append(secs, sec)
	}
	sort.Strings(secs)
	for _, sec := range secs {
		if _, ok := h.doc[sec][name]; ok {
			return sec, true
		}
	}
	if spec, ok := registry[name]; ok {
		return spec.section, true
	}
	return "", false
}

// Lookup returns the stored value of name.
func (h *Handle) Lookup(name string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sec, ok := h.sectionOf(name)
	if !ok {
		return nil, false
	}
	v, ok := h.doc[sec][name]
	return v, ok
}

// Raw returns the textual form of name's stored value, suitable for SetTyped.
// A registered parameter missing from the document gets its default written
// back first, as the typed accessors do.
func (h *Handle) Raw(name string) (string, bool) {
	v, ok := h.Lookup(name)
	if !ok {
		if _, registered := registry[name]; !registered {
			return "", false
		}
		h.value(name)
		if v, ok = h.Lookup(name); !ok {
			return "", false
		}
	}
	switch vv := v.(type) {
	case json.Number:
		return vv.String(), true
	case string:
		return vv, true
	case bool:
		return strconv.FormatBool(vv), true
	default:
		b, err := json.Marshal(vv)
		if err != nil {
			return fmt.Sprint(vv), true
		}
		return string(b), true
	}
}

// Set stores value under name. Go numbers are converted to json.Number.
func (h *Handle) Set(name string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	sec, ok := h.sectionOf(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	h.put(sec, name, encode(value))
	return nil
}

// SetTyped stores a textual value, trying integer, then float, then boolean,
// and finally keeping it as a string. Numbers keep their exact text.
func (h *Handle) SetTyped(name, raw string) error {
	return h.Set(name, parseTyped(raw))
}

// Check reports whether SetTyped(name, raw) would store a value the typed
// accessors accept. Parameters outside the registry accept any value.
func (h *Handle) Check(name, raw string) error {
	spec, ok := registry[name]
	if !ok {
		if _, present := h.Lookup(name); !present {
			return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
		}
		return nil
	}
	v, ok := decode(parseTyped(raw), spec.kind)
	if !ok || (spec.valid != nil && !spec.valid(v)) {
		return fmt.Errorf("%w: %s = %q", ErrInvalidValue, name, raw)
	}
	return nil
}

func parseTyped(raw string) any {
	if _, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return json.Number(raw)
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		return json.Number(raw)
	}
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return b
	}
	return raw
}

func (h *Handle) put(sec, name string, v any) {
	if h.doc[sec] == nil {
		h.doc[sec] = make(map[string]any)
	}
	h.doc[sec][name] = v
	h.dirty = true
}

// Save writes the document back to its path.
func (h *Handle) Save() error {
	return h.SaveAs(h.Path())
}

// SaveIfDirty persists substituted defaults or edits, if any.
func (h *Handle) SaveIfDirty() error {
	if !h.Dirty() {
		return nil
	}
	return h.Save()
}

// SaveAs writes the document to path without rebinding the handle.
func (h *Handle) SaveAs(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, err := json.MarshalIndent(h.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := h.fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := h.fsys.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	if path == h.path {
		h.dirty = false
	}
	return nil
}

func encode(v any) any {
	switch n := v.(type) {
	case int:
		return json.Number(strconv.Itoa(n))
	case int64:
		return json.Number(strconv.FormatInt(n, 10))
	case float64:
		return json.Number(strconv.FormatFloat(n, 'f', -1, 64))
	case float32:
		return json.Number(strconv.FormatFloat(float64(n), 'f', -1, 32))
	default:
		return v
	}
}
