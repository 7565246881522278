package qtforge

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// copyFile copies src to dst, replacing dst and keeping src's mode.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode().Perm())
}

// overlayTree copies every entry under src into dst. Directories are created
// as needed, same-named files are replaced and files that exist only in dst
// are left alone. onCopy, if set, is called for each copied file.
func overlayTree(src, dst string, onCopy func(from, to string)) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(target, info.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("failed to read symlink %s: %w", path, err)
			}
			if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to replace %s: %w", target, err)
			}
			if err := os.Symlink(link, target); err != nil {
				return fmt.Errorf("failed to create symlink %s -> %s: %w", target, link, err)
			}
		case d.Type().IsRegular():
			if onCopy != nil {
				onCopy(path, target)
			}
			if err := copyFile(path, target); err != nil {
				return fmt.Errorf("failed to copy %s: %w", path, err)
			}
		}
		return nil
	})
}

// dirExists reports whether path is an existing directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// lockBuildDir takes an exclusive advisory lock next to buildDir so two runs
// cannot assemble the same build directory at once. The lock lives beside the
// directory because the directory itself is deleted and recreated. The lock
// file is left in place so every run locks the same inode.
func lockBuildDir(buildDir string) (func(), error) {
	lockPath := filepath.Clean(buildDir) + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s is in use by another qtforge run", buildDir)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", lockPath, err)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// prepareBuildDir recreates buildDir from the exported recipe. An existing
// build directory is only removed after confirm returns true.
func prepareBuildDir(s *Settings, exportDir string, confirm func(string) bool) error {
	buildDir := s.BuildDir
	stepf("Create buildDir = %s for version = %s", buildDir, s.BaseVersion)

	if !dirExists(exportDir) {
		return fmt.Errorf("recipe export directory %s not found (was the recipe downloaded?)", exportDir)
	}

	if _, err := os.Lstat(buildDir); err == nil {
		if !confirm(buildDir) {
			return fmt.Errorf("build directory %s already exists", buildDir)
		}
		if err := os.RemoveAll(buildDir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", buildDir, err)
		}
	}
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", buildDir, err)
	}

	if err := overlayTree(exportDir, buildDir, func(from, to string) {
		s.debugf("from %s to %s\n", from, to)
	}); err != nil {
		return err
	}

	// Some caches keep the exported files packed.
	packed := filepath.Join(buildDir, conanExportArchive)
	if _, err := os.Stat(packed); err == nil {
		s.debugf("Unpacking %s\n", packed)
		if err := extractArchive(packed, buildDir); err != nil {
			return fmt.Errorf("failed to unpack %s: %w", conanExportArchive, err)
		}
		if err := os.Remove(packed); err != nil {
			return err
		}
	}
	return nil
}
