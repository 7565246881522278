package qtforge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"qtforge/internal/manifest"
)

// Strip levels tried in order for each conanfile patch.
var patchStripLevels = []int{1, 0, 2}

// applyConanfilePatches applies every file in <custom>/conanfile-patches to
// the recipe in buildDir, in file name order.
func applyConanfilePatches(r Runner, s *Settings) error {
	patchesDir := filepath.Join(s.CustomDir, conanfilePatchesDir)
	entries, err := os.ReadDir(patchesDir)
	if errors.Is(err, fs.ErrNotExist) {
		s.debugf("No %s directory, recipe left unpatched\n", patchesDir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", patchesDir, err)
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		stepf("Applying conanfile patch: %s", e.Name())
		if err := applyPatch(r, s.BuildDir, filepath.Join(patchesDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// applyPatch applies file inside dir with patch(1). Each strip level is
// dry-run first so a level that does not fit leaves no partial changes.
func applyPatch(r Runner, dir, file string) error {
	var lastErr error
	for _, level := range patchStripLevels {
		strip := fmt.Sprintf("-p%d", level)

		var out bytes.Buffer
		check := exec.Command("patch", strip, "-Nt", "--dry-run", "-i", file)
		check.Dir = dir
		check.Stdout = &out
		check.Stderr = &out
		if err := r.Run(check); err != nil {
			lastErr = fmt.Errorf("%w: %s", err, bytes.TrimSpace(out.Bytes()))
			continue
		}

		apply := exec.Command("patch", strip, "-Nt", "-i", file)
		apply.Dir = dir
		apply.Stdout = io.Discard
		if err := r.Run(apply); err != nil {
			return fmt.Errorf("failed to apply %s: %w", filepath.Base(file), err)
		}
		return nil
	}
	return fmt.Errorf("patch %s does not apply at any strip level: %w", filepath.Base(file), lastErr)
}

// addCustomPatches copies the custom source patches into the build
// directory and merges the custom versions into its conandata.yml.
func addCustomPatches(s *Settings) error {
	stepf("Add custom patches to buildDir = %s from customDir = %s", s.BuildDir, s.CustomDir)

	src := filepath.Join(s.CustomDir, customPatchesDir)
	if dirExists(src) {
		dst := filepath.Join(s.BuildDir, customPatchesDir)
		if err := overlayTree(src, dst, func(from, to string) {
			s.debugf("from %s to %s\n", from, to)
		}); err != nil {
			return err
		}
	}

	return mergeManifestFiles(
		filepath.Join(s.BuildDir, conandataFile),
		filepath.Join(s.CustomDir, customVersionsFile),
		s.BaseVersion,
	)
}

// mergeManifestFiles merges the overlay at overlayPath into the manifest at
// originalPath and writes the result back to originalPath. Nothing is
// written unless the whole merge succeeds.
func mergeManifestFiles(originalPath, overlayPath, runBaseVersion string) error {
	original, err := manifest.Load(originalPath)
	if err != nil {
		return err
	}
	overlay, err := manifest.LoadOverlay(overlayPath)
	if err != nil {
		return err
	}
	if err := manifest.Merge(original, overlay, runBaseVersion); err != nil {
		return fmt.Errorf("failed to merge %s into %s: %w", filepath.Base(overlayPath), filepath.Base(originalPath), err)
	}
	if err := manifest.Save(originalPath, original); err != nil {
		return err
	}
	for _, v := range overlay.Versions() {
		colArrow.Print("   ")
		colNote.Printf("%s: %d patches\n", v, len(original.Patches[v]))
	}
	return nil
}
