package qtforge

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// runCreate assembles the build directory for s.Version from the base
// recipe and the custom directory, then builds it with conan create.
func runCreate(r Runner, s *Settings, in io.Reader) error {
	unlock, err := lockBuildDir(s.BuildDir)
	if err != nil {
		return err
	}
	defer unlock()

	if err := verifyChecksums(s); err != nil {
		return err
	}

	conan := newConan(r, s)
	if s.SkipDownload {
		s.debugf("Skipping download of %s\n", conan.reference(s.BaseVersion, ""))
	} else {
		if err := conan.Download(s.BaseVersion, s.Remote); err != nil {
			return err
		}
		if err := conan.Copy(s.BaseVersion); err != nil {
			return err
		}
	}

	confirm := func(dir string) bool {
		if s.AssumeYes {
			return true
		}
		return askForConfirmation(in, colWarn, "Build directory %s exists. Remove it?", dir)
	}
	if err := prepareBuildDir(s, conan.ExportDir(s.BaseVersion), confirm); err != nil {
		return err
	}
	if err := applyConanfilePatches(r, s); err != nil {
		return err
	}
	if err := addCustomPatches(s); err != nil {
		return err
	}
	if err := copyModulesConfig(s.BuildDir, s.BaseVersion, s.Version); err != nil {
		return err
	}
	return conan.Create(s.BuildDir, s.Version, s.Profile, s.TargetOS)
}

// handleCreateCommand implements 'qtforge create'.
func handleCreateCommand(args []string, s *Settings, r *Executor) error {
	createCmd := flag.NewFlagSet("create", flag.ContinueOnError)
	s.bindCreateFlags(createCmd)
	if err := createCmd.Parse(args); err != nil {
		return err
	}
	if createCmd.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", createCmd.Args())
	}
	if err := s.finalize(); err != nil {
		return err
	}
	r.DryRun = s.DryRun

	if err := runCreate(r, s, os.Stdin); err != nil {
		return err
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Built %s\n", newConan(r, s).reference(s.Version, s.Channel))
	return nil
}

// handleMergeCommand implements 'qtforge merge': the manifest merge alone.
func handleMergeCommand(args []string, s *Settings) error {
	mergeCmd := flag.NewFlagSet("merge", flag.ContinueOnError)
	s.bindRecipeFlags(mergeCmd)
	originalPath := mergeCmd.String("original", "", "manifest to update (default <build-dir>/conandata.yml)")
	customPath := mergeCmd.String("custom", "", "custom versions (default <custom-dir>/custom-versions.yml)")
	if err := mergeCmd.Parse(args); err != nil {
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

	stepf("Merge %s into %s with base version = %s", *customPath, *originalPath, s.BaseVersion)
	return mergeManifestFiles(*originalPath, *customPath, s.BaseVersion)
}

// handlePackCommand implements 'qtforge pack'.
func handlePackCommand(args []string, s *Settings) error {
	packCmd := flag.NewFlagSet("pack", flag.ContinueOnError)
	s.bindRecipeFlags(packCmd)
	packCmd.StringVar(&s.Package, "package", s.Package, "conan package name")
	format := packCmd.String("format", formatZstd, "compression: zst, xz or gz")
	output := packCmd.String("o", "", "output file (default <package>-<version>-recipe.tar.<format>)")
	if err := packCmd.Parse(args); err != nil {
		return err
	}
	if err := s.finalize(); err != nil {
		return err
	}
	if !dirExists(s.BuildDir) {
		return fmt.Errorf("build directory %s does not exist (run 'qtforge create' first)", s.BuildDir)
	}

	dest := *output
	if dest == "" {
		dest = archiveName(s.Package, s.Version, *format)
	}
	dest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	if rel, err := filepath.Rel(s.BuildDir, dest); err == nil && filepath.IsLocal(rel) {
		return fmt.Errorf("archive %s must not be written inside the build directory", dest)
	}
	stepf("Packing %s into %s", s.BuildDir, dest)
	if err := packTree(s.BuildDir, dest, *format); err != nil {
		return err
	}
	if info, err := os.Stat(dest); err == nil {
		colArrow.Print("   ")
		colNote.Printf("%s\n", humanReadableSize(info.Size()))
	}
	return nil
}
