package qtforge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"lukechampine.com/blake3"
)

// customFiles lists the files a custom directory contributes to a build,
// relative to customDir and in sorted order.
func customFiles(customDir string) ([]string, error) {
	var files []string
	if _, err := os.Stat(filepath.Join(customDir, customVersionsFile)); err == nil {
		files = append(files, customVersionsFile)
	}
	for _, sub := range []string{customPatchesDir, conanfilePatchesDir} {
		root := filepath.Join(customDir, sub)
		if !dirExists(root) {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(customDir, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// b3sum returns the hex BLAKE3-256 digest of the file at path.
func b3sum(path string, buf []byte) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// computeChecksums hashes root/rel for every rel in parallel.
func computeChecksums(root string, rels []string) (map[string]string, error) {
	results := make(map[string]string, len(rels))
	if len(rels) == 0 {
		return results, nil
	}

	numWorkers := runtime.NumCPU()
	if len(rels) < numWorkers {
		numWorkers = len(rels)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	var errOnce sync.Once
	var firstErr error

	jobs := make(chan string, len(rels))
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 64*1024)
			for rel := range jobs {
				hash, err := b3sum(filepath.Join(root, filepath.FromSlash(rel)), buf)
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					continue
				}
				mu.Lock()
				results[rel] = hash
				mu.Unlock()
			}
		}()
	}
	for _, rel := range rels {
		jobs <- rel
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// readChecksums parses "<hash>  <path>" lines.
func readChecksums(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sums := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			return nil, fmt.Errorf("malformed checksum line %q in %s", line, path)
		}
		sums[strings.Join(parts[1:], " ")] = parts[0]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sums, nil
}

// writeChecksums records sums in path, sorted by file name.
func writeChecksums(path string, sums map[string]string) error {
	names := make([]string, 0, len(sums))
	for name := range sums {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s  %s\n", sums[name], name)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// ChecksumMismatchError lists custom files that differ from the recorded sums.
type ChecksumMismatchError struct {
	Changed []string
	Missing []string
	Unknown []string
}

func (e *ChecksumMismatchError) Error() string {
	var parts []string
	if len(e.Changed) > 0 {
		parts = append(parts, "changed: "+strings.Join(e.Changed, ", "))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "not recorded: "+strings.Join(e.Unknown, ", "))
	}
	return "custom files do not match " + checksumsFile + " (" + strings.Join(parts, "; ") + ")"
}

// verifyChecksums compares the custom directory against its checksums file.
// A custom directory without one is accepted as is.
func verifyChecksums(s *Settings) error {
	path := filepath.Join(s.CustomDir, checksumsFile)
	recorded, err := readChecksums(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.debugf("No %s in %s, skipping verification\n", checksumsFile, s.CustomDir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	files, err := customFiles(s.CustomDir)
	if err != nil {
		return err
	}
	actual, err := computeChecksums(s.CustomDir, files)
	if err != nil {
		return err
	}

	mismatch := &ChecksumMismatchError{}
	for _, name := range files {
		want, ok := recorded[name]
		switch {
		case !ok:
			mismatch.Unknown = append(mismatch.Unknown, name)
		case want != actual[name]:
			mismatch.Changed = append(mismatch.Changed, name)
		}
	}
	for name := range recorded {
		if _, ok := actual[name]; !ok {
			mismatch.Missing = append(mismatch.Missing, name)
		}
	}
	sort.Strings(mismatch.Missing)
	if len(mismatch.Changed)+len(mismatch.Missing)+len(mismatch.Unknown) > 0 {
		return mismatch
	}
	stepf("Verified %d custom files against %s", len(files), checksumsFile)
	return nil
}

// handleChecksumCommand writes the checksums file for the custom directory.
func handleChecksumCommand(s *Settings, force bool, in io.Reader) error {
	path := filepath.Join(s.CustomDir, checksumsFile)
	if _, err := os.Stat(path); err == nil && !force {
		err := verifyChecksums(s)
		if err == nil {
			return nil
		}
		if !askForConfirmation(in, colWarn, "%v. Overwrite %s?", err, checksumsFile) {
			return err
		}
	}

	files, err := customFiles(s.CustomDir)
	if err != nil {
		return err
	}
	sums, err := computeChecksums(s.CustomDir, files)
	if err != nil {
		return err
	}
	if err := writeChecksums(path, sums); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	stepf("Wrote %d checksums to %s", len(sums), path)
	return nil
}
