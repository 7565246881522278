// Package manifest merges custom recipe versions into a conan version manifest
// (conandata.yml).
//
// A manifest maps versions to a source archive descriptor and an ordered list
// of patch descriptors. An overlay document declares new versions, optionally
// based on another version; the base's resolved patches come first, followed by
// the overlay's own increment. Descriptors are opaque and round-trip untouched.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Manifest is the original version manifest.
type Manifest struct {
	Patches map[string][]any `yaml:"patches"`
	Sources map[string]any   `yaml:"sources"`
	// Extra keeps any other top-level keys so they survive a rewrite.
	Extra map[string]any `yaml:",inline"`
}

// Overlay is the custom versions document.
type Overlay struct {
	Patches     map[string][]any  `yaml:"patches"`
	BaseVersion map[string]string `yaml:"base_version,omitempty"`
}

// Versions returns the overlay's versions in sorted order.
func (o *Overlay) Versions() []string {
	versions := make([]string, 0, len(o.Patches))
	for v := range o.Patches {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// Parse decodes an original manifest. name is only used in error messages.
func Parse(name string, data []byte) (*Manifest, error) {
	return decodeManifest(name, bytes.NewReader(data))
}

// ParseOverlay decodes an overlay document.
func ParseOverlay(name string, data []byte) (*Overlay, error) {
	return decodeOverlay(name, bytes.NewReader(data))
}

// Load reads and decodes the original manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	return decodeManifest(path, f)
}

// LoadOverlay reads and decodes the overlay document at path.
func LoadOverlay(path string) (*Overlay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open custom versions: %w", err)
	}
	defer f.Close()
	return decodeOverlay(path, f)
}

func decodeManifest(name string, r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := decode(name, r, &m); err != nil {
		return nil, err
	}
	if m.Patches == nil {
		return nil, &MalformedManifestError{Path: name, Err: errors.New("missing 'patches' mapping")}
	}
	if m.Sources == nil {
		return nil, &MalformedManifestError{Path: name, Err: errors.New("missing 'sources' mapping")}
	}
	return &m, nil
}

func decodeOverlay(name string, r io.Reader) (*Overlay, error) {
	var o Overlay
	if err := decode(name, r, &o); err != nil {
		return nil, err
	}
	if o.Patches == nil {
		return nil, &MalformedManifestError{Path: name, Err: errors.New("missing 'patches' mapping")}
	}
	if o.BaseVersion == nil {
		o.BaseVersion = make(map[string]string)
	}
	for v, base := range o.BaseVersion {
		if base == "" {
			return nil, &MalformedManifestError{Path: name, Err: fmt.Errorf("empty base_version for %q", v)}
		}
	}
	return &o, nil
}

func decode(name string, r io.Reader, out any) error {
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return &MalformedManifestError{Path: name, Err: errors.New("empty document")}
		}
		return &MalformedManifestError{Path: name, Err: err}
	}
	return nil
}

// Encode serializes m as YAML. Keys are sorted and no anchors or aliases are
// emitted, even when the source document used them, so the output is
// self-contained and stable across runs.
func Encode(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes m to path through a temporary file in the same directory, so
// readers never observe a partially written manifest.
func Save(path string, m *Manifest) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// cloneValue deep-copies decoded YAML values so merged entries never share
// nodes with each other or with the inputs.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case map[any]any:
		out := make(map[any]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		return clonePatches(t)
	default:
		return v
	}
}

func clonePatches(list []any) []any {
	out := make([]any, len(list))
	for i, e := range list {
		out[i] = cloneValue(e)
	}
	return out
}
