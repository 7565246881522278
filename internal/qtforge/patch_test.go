package qtforge

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPatchStripLevels(t *testing.T) {
	for name, tCase := range map[string]struct {
		fits    string // strip level whose dry run succeeds
		want    []string
		wantErr bool
	}{
		"FirstLevel": {
			fits: "-p1",
			want: []string{
				"patch -p1 -Nt --dry-run -i fix.patch",
				"patch -p1 -Nt -i fix.patch",
			},
		},
		"FallsBackToZero": {
			fits: "-p0",
			want: []string{
				"patch -p1 -Nt --dry-run -i fix.patch",
				"patch -p0 -Nt --dry-run -i fix.patch",
				"patch -p0 -Nt -i fix.patch",
			},
		},
		"NoLevelFits": {
			fits: "-p9",
			want: []string{
				"patch -p1 -Nt --dry-run -i fix.patch",
				"patch -p0 -Nt --dry-run -i fix.patch",
				"patch -p2 -Nt --dry-run -i fix.patch",
			},
			wantErr: true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			r := &recordingRunner{fail: func(args []string) error {
				if slices.Contains(args, "--dry-run") && args[1] != tCase.fits {
					return errors.New("hunk FAILED")
				}
				return nil
			}}
			err := applyPatch(r, "/build", "fix.patch")
			if tCase.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "does not apply")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tCase.want, r.commands())
			for _, dir := range r.dirs {
				assert.Equal(t, "/build", dir)
			}
		})
	}
}

func TestApplyConanfilePatchesOrder(t *testing.T) {
	custom := t.TempDir()
	writeFiles(t, custom, map[string]string{
		"conanfile-patches/02-options.patch": "b",
		"conanfile-patches/01-sources.patch": "a",
	})
	s := &Settings{CustomDir: custom, BuildDir: "/build"}
	r := &recordingRunner{}
	require.NoError(t, applyConanfilePatches(r, s))

	dir := filepath.Join(custom, conanfilePatchesDir)
	assert.Equal(t, []string{
		"patch -p1 -Nt --dry-run -i " + filepath.Join(dir, "01-sources.patch"),
		"patch -p1 -Nt -i " + filepath.Join(dir, "01-sources.patch"),
		"patch -p1 -Nt --dry-run -i " + filepath.Join(dir, "02-options.patch"),
		"patch -p1 -Nt -i " + filepath.Join(dir, "02-options.patch"),
	}, r.commands())
}

func TestApplyConanfilePatchesWithoutDirectory(t *testing.T) {
	r := &recordingRunner{}
	require.NoError(t, applyConanfilePatches(r, &Settings{CustomDir: t.TempDir()}))
	assert.Empty(t, r.calls)
}

func TestApplyPatchWithPatchTool(t *testing.T) {
	if _, err := exec.LookPath("patch"); err != nil {
		t.Skip("patch not installed")
	}

	build := t.TempDir()
	writeFiles(t, build, map[string]string{"conanfile.py": "shared = False\n"})
	file := filepath.Join(t.TempDir(), "shared.patch")
	writeFiles(t, filepath.Dir(file), map[string]string{"shared.patch": `--- a/conanfile.py
+++ b/conanfile.py
@@ -1 +1 @@
-shared = False
+shared = True
`})

	require.NoError(t, applyPatch(NewExecutor(context.Background()), build, file))
	assert.Equal(t, "shared = True\n", readFile(t, filepath.Join(build, "conanfile.py")))

	// already applied; -N refuses to reverse it
	assert.Error(t, applyPatch(NewExecutor(context.Background()), build, file))
}

func TestMergeManifestFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"conandata.yml": `sources:
  "5.15.2":
    url: https://example.invalid/qt.tar.xz
patches:
  "5.15.2":
    - patches/a.patch
`,
		"custom-versions.yml": `patches:
  "5.15.2-p1":
    - patches/b.patch
base_version:
  "5.15.2-p1": "5.15.2"
`,
		"broken-versions.yml": `patches:
  "5.15.2-p1":
    - patches/b.patch
base_version:
  "5.15.2-p1": "5.15.1"
`,
	})
	original := filepath.Join(dir, "conandata.yml")
	before := readFile(t, original)

	err := mergeManifestFiles(original, filepath.Join(dir, "broken-versions.yml"), "5.15.2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5.15.1")
	assert.Equal(t, before, readFile(t, original))

	require.NoError(t, mergeManifestFiles(original, filepath.Join(dir, "custom-versions.yml"), "5.15.2"))
	after := readFile(t, original)
	assert.Contains(t, after, "5.15.2-p1")
	assert.Contains(t, after, "patches/b.patch")
}
