package qtforge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayTree(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFiles(t, src, map[string]string{
		"conanfile.py":         "new recipe",
		"patches/0001.patch":   "patch one",
		"patches/deep/x.patch": "patch x",
	})
	require.NoError(t, os.Chmod(filepath.Join(src, "conanfile.py"), 0o755))
	require.NoError(t, os.Symlink("patches/0001.patch", filepath.Join(src, "latest.patch")))
	writeFiles(t, dst, map[string]string{
		"conanfile.py":        "old recipe",
		"patches/local.patch": "mine",
	})

	var copied []string
	require.NoError(t, overlayTree(src, dst, func(from, to string) {
		copied = append(copied, strings.TrimPrefix(to, dst))
	}))

	for name, tCase := range map[string]func(t *testing.T){
		"ReplacesSameNamedFiles": func(t *testing.T) {
			assert.Equal(t, "new recipe", readFile(t, filepath.Join(dst, "conanfile.py")))
		},
		"KeepsFileModes": func(t *testing.T) {
			info, err := os.Stat(filepath.Join(dst, "conanfile.py"))
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
		},
		"CreatesNestedDirectories": func(t *testing.T) {
			assert.Equal(t, "patch x", readFile(t, filepath.Join(dst, "patches", "deep", "x.patch")))
		},
		"LeavesUnrelatedFiles": func(t *testing.T) {
			assert.Equal(t, "mine", readFile(t, filepath.Join(dst, "patches", "local.patch")))
		},
		"RecreatesSymlinks": func(t *testing.T) {
			link, err := os.Readlink(filepath.Join(dst, "latest.patch"))
			require.NoError(t, err)
			assert.Equal(t, "patches/0001.patch", link)
		},
		"ReportsEachRegularFile": func(t *testing.T) {
			assert.ElementsMatch(t, []string{
				string(filepath.Separator) + "conanfile.py",
				string(filepath.Separator) + filepath.Join("patches", "0001.patch"),
				string(filepath.Separator) + filepath.Join("patches", "deep", "x.patch"),
			}, copied)
		},
	} {
		t.Run(name, tCase)
	}
}

func TestOverlayTreeMissingSource(t *testing.T) {
	err := overlayTree(filepath.Join(t.TempDir(), "nope"), t.TempDir(), nil)
	assert.Error(t, err)
}

func TestLockBuildDir(t *testing.T) {
	buildDir := filepath.Join(t.TempDir(), "build-qt")

	unlock, err := lockBuildDir(buildDir)
	require.NoError(t, err)

	_, err = lockBuildDir(buildDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in use")

	unlock()
	assert.FileExists(t, buildDir+".lock")

	unlock, err = lockBuildDir(buildDir)
	require.NoError(t, err)
	unlock()
}

func TestPrepareBuildDir(t *testing.T) {
	yes := func(string) bool { return true }
	no := func(string) bool { return false }

	newSettingsIn := func(t *testing.T) (*Settings, string) {
		root := t.TempDir()
		export := filepath.Join(root, "export")
		writeFiles(t, export, map[string]string{
			"conanfile.py":  "recipe",
			"conandata.yml": "sources: {}\npatches: {}\n",
		})
		return &Settings{BuildDir: filepath.Join(root, "build"), BaseVersion: "5.15.2"}, export
	}

	for name, tCase := range map[string]func(t *testing.T){
		"CopiesExport": func(t *testing.T) {
			s, export := newSettingsIn(t)
			require.NoError(t, prepareBuildDir(s, export, no))
			assert.Equal(t, "recipe", readFile(t, filepath.Join(s.BuildDir, "conanfile.py")))
		},
		"ReplacesExistingBuildDirWhenConfirmed": func(t *testing.T) {
			s, export := newSettingsIn(t)
			writeFiles(t, s.BuildDir, map[string]string{"stale.txt": "old"})
			require.NoError(t, prepareBuildDir(s, export, yes))
			_, err := os.Stat(filepath.Join(s.BuildDir, "stale.txt"))
			assert.True(t, os.IsNotExist(err))
		},
		"KeepsExistingBuildDirWhenDeclined": func(t *testing.T) {
			s, export := newSettingsIn(t)
			writeFiles(t, s.BuildDir, map[string]string{"stale.txt": "old"})
			err := prepareBuildDir(s, export, no)
			require.Error(t, err)
			assert.Equal(t, "old", readFile(t, filepath.Join(s.BuildDir, "stale.txt")))
		},
		"MissingExport": func(t *testing.T) {
			s, export := newSettingsIn(t)
			err := prepareBuildDir(s, export+"-missing", yes)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "not found")
		},
		"UnpacksExportArchive": func(t *testing.T) {
			s, export := newSettingsIn(t)
			packed := t.TempDir()
			writeFiles(t, packed, map[string]string{"patches/0001-fix.patch": "fix"})
			require.NoError(t, packTree(packed, filepath.Join(export, conanExportArchive), formatGzip))

			require.NoError(t, prepareBuildDir(s, export, yes))
			assert.Equal(t, "fix", readFile(t, filepath.Join(s.BuildDir, "patches", "0001-fix.patch")))
			_, err := os.Stat(filepath.Join(s.BuildDir, conanExportArchive))
			assert.True(t, os.IsNotExist(err))
		},
	} {
		t.Run(name, tCase)
	}
}
