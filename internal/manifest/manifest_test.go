package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMalformed(t *testing.T) {
	for name, doc := range map[string]string{
		"Empty":              "",
		"NotAMapping":        "- a\n- b\n",
		"PatchesNotAMapping": "patches: [a, b]\nsources: {}\n",
		"PatchListNotAList":  "patches:\n  \"1.0\": {a: b}\nsources: {}\n",
		"MissingPatches":     "sources: {}\n",
		"MissingSources":     "patches: {}\n",
		"InvalidSyntax":      "patches: {\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("conandata.yml", []byte(doc))
			var malformed *MalformedManifestError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			assert.Equal(t, "conandata.yml", malformed.Path)
		})
	}
}

func TestParseOverlayMalformed(t *testing.T) {
	for name, doc := range map[string]string{
		"MissingPatches":        "base_version: {a: b}\n",
		"BaseVersionNotMapping": "patches: {}\nbase_version: [a]\n",
		"EmptyBase":             "patches: {a: []}\nbase_version: {a: \"\"}\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOverlay("custom-versions.yml", []byte(doc))
			var malformed *MalformedManifestError
			require.True(t, errors.As(err, &malformed), "got %v", err)
		})
	}

	t.Run("BaseVersionOptional", func(t *testing.T) {
		o, err := ParseOverlay("custom-versions.yml", []byte("patches:\n  \"1.0\": [a.patch]\n"))
		require.NoError(t, err)
		assert.NotNil(t, o.BaseVersion)
		assert.Equal(t, []string{"1.0"}, o.Versions())
	})
}

func TestEncodePreservesExtraKeysAndExpandsAliases(t *testing.T) {
	m, err := Parse("conandata.yml", []byte(`
sources:
  "5.15.2": &src
    url: https://example.invalid/qt.tar.xz
  "5.15.1": *src
patches:
  "5.15.2": []
  "5.15.1": []
extra_key:
  nested: true
`))
	require.NoError(t, err)
	data, err := Encode(m)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "&")
	assert.NotContains(t, out, "*")
	assert.Contains(t, out, "extra_key:")
	assert.Contains(t, out, "nested: true")

	again, err := Parse("roundtrip", data)
	require.NoError(t, err)
	assert.Equal(t, m.Sources, again.Sources)
	assert.Equal(t, m.Extra, again.Extra)
}

func TestLoadMergeSave(t *testing.T) {
	dir := t.TempDir()
	originalPath := filepath.Join(dir, "conandata.yml")
	overlayPath := filepath.Join(dir, "custom-versions.yml")
	require.NoError(t, os.WriteFile(originalPath, []byte(`
sources:
  "5.15.2": src-a
patches:
  "5.15.2": [p1.patch]
`), 0o600))
	require.NoError(t, os.WriteFile(overlayPath, []byte(`
patches:
  "5.15.2-p1": [p2.patch]
base_version:
  "5.15.2-p1": "5.15.2"
`), 0o644))

	run := func() []byte {
		original, err := Load(originalPath)
		require.NoError(t, err)
		overlay, err := LoadOverlay(overlayPath)
		require.NoError(t, err)
		require.NoError(t, Merge(original, overlay, "5.15.2"))
		require.NoError(t, Save(originalPath, original))
		data, err := os.ReadFile(originalPath)
		require.NoError(t, err)
		return data
	}

	first := run()
	second := run()
	assert.Equal(t, string(first), string(second))

	merged, err := Load(originalPath)
	require.NoError(t, err)
	assert.Equal(t, []any{"p1.patch", "p2.patch"}, merged.Patches["5.15.2-p1"])
	assert.Equal(t, "src-a", merged.Sources["5.15.2-p1"])

	info, err := os.Stat(originalPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
