package qtforge

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"qtforge/internal/manifest"
)

// describePatch renders one patch entry of a conandata.yml patch list.
func describePatch(entry any) string {
	m, ok := entry.(map[string]any)
	if !ok {
		return fmt.Sprint(entry)
	}
	file, _ := m["patch_file"].(string)
	if file == "" {
		file, _ = m["patch"].(string)
	}
	desc, _ := m["patch_description"].(string)
	switch {
	case file == "" && desc == "":
		return fmt.Sprint(entry)
	case desc == "":
		return file
	case file == "":
		return desc
	}
	return fmt.Sprintf("%s (%s)", file, desc)
}

// showLines resolves versions (all overlay versions when empty) and renders
// each with its base chain and resolved patches. Nothing is written.
func showLines(original *manifest.Manifest, overlay *manifest.Overlay, versions []string) ([]string, error) {
	if len(versions) == 0 {
		versions = overlay.Versions()
	}

	r := manifest.NewResolver(original, overlay)
	var lines []string
	for i, v := range versions {
		patches, err := r.Resolve(v)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, fmt.Sprintf("%s  [%s]  %d patches", v, strings.Join(r.Chain(v), " -> "), len(patches)))
		for n, p := range patches {
			lines = append(lines, fmt.Sprintf("  %3d. %s", n+1, describePatch(p)))
		}
	}
	return lines, nil
}

// handleShowCommand implements 'qtforge show'.
func handleShowCommand(args []string, s *Settings) error {
	showCmd := flag.NewFlagSet("show", flag.ContinueOnError)
	s.bindRecipeFlags(showCmd)
	originalPath := showCmd.String("original", "", "original manifest (default <build-dir>/conandata.yml)")
	customPath := showCmd.String("custom", "", "custom versions (default <custom-dir>/custom-versions.yml)")
	if err := showCmd.Parse(args); err != nil {
		return err
	}
	if err := s.finalize(); err != nil {
		return err
	}
	if *originalPath == "" {
		*originalPath = filepath.Join(s.BuildDir, conandataFile)
	}
	if *customPath == "" {
		*customPath = filepath.Join(s.CustomDir, customVersionsFile)
	}

	original, err := manifest.Load(*originalPath)
	if err != nil {
		return err
	}
	overlay, err := manifest.LoadOverlay(*customPath)
	if err != nil {
		return err
	}
	lines, err := showLines(original, overlay, showCmd.Args())
	if err != nil {
		return err
	}
	return RunPager(filepath.Base(*customPath), lines)
}
