// Package manifest loads the soarAgents.json project manifest, which lists
// the entry points the server analyses.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/jward/soarls/internal/document"
)

// FileName is the manifest looked up in the workspace root.
const FileName = "soarAgents.json"

// ErrNotFound is returned when a directory has no manifest.
var ErrNotFound = errors.New("manifest: not found")

var validate = validator.New()

// EntryPoint is one agent start file.
type EntryPoint struct {
	// Path is relative to the manifest's directory unless absolute.
	Path    string `json:"path" validate:"required"`
	Name    string `json:"name,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// IsEnabled reports whether the entry point should be analysed. Entry
// points are enabled unless the manifest says otherwise.
func (ep EntryPoint) IsEnabled() bool { return ep.Enabled == nil || *ep.Enabled }

// Label returns the name of the entry point, or its path when unnamed.
func (ep EntryPoint) Label() string {
	if ep.Name != "" {
		return ep.Name
	}
	return ep.Path
}

// Manifest is a decoded soarAgents.json.
type Manifest struct {
	EntryPoints  []EntryPoint `json:"entryPoints" validate:"dive"`
	Active       string       `json:"active,omitempty"`
	RHSFunctions []string     `json:"rhsFunctions,omitempty" validate:"dive,required"`

	dir string
}

// Parse decodes and validates a manifest. Relative entry point paths are
// resolved against dir.
func Parse(data []byte, dir string) (*Manifest, error) {
	m := &Manifest{dir: dir}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads FileName from dir.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(data, dir)
}

// Single returns a manifest with one unnamed entry point.
func Single(path string) *Manifest {
	return &Manifest{EntryPoints: []EntryPoint{{Path: path}}, dir: filepath.Dir(path)}
}

// Validate checks field constraints, that names are unique and that the
// active name refers to an entry point.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	seen := make(map[string]bool)
	for _, ep := range m.EntryPoints {
		if ep.Name == "" {
			continue
		}
		if seen[ep.Name] {
			return fmt.Errorf("manifest: duplicate entry point name %q", ep.Name)
		}
		seen[ep.Name] = true
	}
	if m.Active != "" && !seen[m.Active] {
		return fmt.Errorf("manifest: active entry point %q is not defined", m.Active)
	}
	return nil
}

// Dir returns the directory entry point paths are relative to.
func (m *Manifest) Dir() string { return m.dir }

// Lookup returns the entry point with the given name.
func (m *Manifest) Lookup(name string) (EntryPoint, bool) {
	for _, ep := range m.EntryPoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

// Path returns the absolute path of ep.
func (m *Manifest) Path(ep EntryPoint) string {
	if filepath.IsAbs(ep.Path) {
		return filepath.Clean(ep.Path)
	}
	return filepath.Join(m.dir, filepath.FromSlash(ep.Path))
}

// URI returns the file URI of ep.
func (m *Manifest) URI(ep EntryPoint) string { return document.FileURI(m.Path(ep)) }

// ActiveEntryPoint returns the entry point named active, falling back to the
// manifest's own active name and then to the first enabled entry point.
func (m *Manifest) ActiveEntryPoint(active string) (EntryPoint, bool) {
	for _, name := range []string{active, m.Active} {
		if name == "" {
			continue
		}
		if ep, ok := m.Lookup(name); ok && ep.IsEnabled() {
			return ep, true
		}
	}
	for _, ep := range m.EntryPoints {
		if ep.IsEnabled() {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

// Ordered returns every enabled entry point with the active one first.
func (m *Manifest) Ordered(active string) []EntryPoint {
	first, ok := m.ActiveEntryPoint(active)
	if !ok {
		return nil
	}
	out := []EntryPoint{first}
	for _, ep := range m.EntryPoints {
		if ep.IsEnabled() && ep.Label() != first.Label() {
			out = append(out, ep)
		}
	}
	return out
}
