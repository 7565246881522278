package qtforge

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// Supported compressions for packed recipes.
const (
	formatZstd = "zst"
	formatXZ   = "xz"
	formatGzip = "gz"
)

// archiveName is the default file name of a packed recipe.
func archiveName(pkg, version, format string) string {
	return fmt.Sprintf("%s-%s-recipe.tar.%s", pkg, version, format)
}

func newCompressor(w io.Writer, format string) (io.WriteCloser, error) {
	switch format {
	case formatZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	case formatXZ:
		return xz.NewWriter(w)
	case formatGzip:
		return pgzip.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported archive format %q (expected zst, xz or gz)", format)
	}
}

// packTree writes the contents of src as a compressed tarball at dest.
// Entries are stored in lexical order with relative names, no owner
// information and a fixed modification time, so trees with the same content
// and modes give identical archives.
func packTree(src, dest, format string) (err error) {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	cw, err := newCompressor(out, format)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "", ""
		hdr.ModTime = time.Unix(0, 0)
		hdr.AccessTime, hdr.ChangeTime = time.Time{}, time.Time{}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, f)
			f.Close()
			return err
		}
		return nil
	})
	if walkErr != nil {
		tw.Close()
		cw.Close()
		return fmt.Errorf("failed to pack %s: %w", src, walkErr)
	}
	if err := tw.Close(); err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}

// extractArchive unpacks a .tar, .tar.gz/.tgz, .tar.xz or .tar.zst file into
// dest. Entries that would land outside dest are rejected.
func extractArchive(path, dest string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(path, ".tar.gz") || strings.HasSuffix(path, ".tgz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader for %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(path, ".tar.xz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create xz reader for %s: %w", path, err)
		}
		r = xr
	case strings.HasSuffix(path, ".tar.zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader for %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(path, ".tar"):
		// No compression
	default:
		return fmt.Errorf("unsupported archive format: %s", path)
	}

	dest, err = filepath.Abs(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	// entries are checked against the resolved destination
	if dest, err = filepath.EvalSymlinks(dest); err != nil {
		return err
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading tar header in %s: %w", path, err)
		}

		target := filepath.Join(dest, hdr.Name)
		if !isWithin(dest, target) {
			return fmt.Errorf("illegal file path in archive: %s", hdr.Name)
		}
		inside, err := resolvesWithin(dest, filepath.Dir(target))
		if err != nil {
			return err
		}
		if !inside {
			return fmt.Errorf("illegal file path in archive: %s leaves the destination through a symlink", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			// never write through a symlink left by an earlier entry
			if info, err := os.Lstat(target); err == nil && info.Mode()&fs.ModeSymlink != 0 {
				if err := os.Remove(target); err != nil {
					return err
				}
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("failed to write file %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) || !isWithin(dest, filepath.Join(filepath.Dir(target), hdr.Linkname)) {
				return fmt.Errorf("illegal symlink in archive: %s -> %s", hdr.Name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink %s -> %s: %w", target, hdr.Linkname, err)
			}
		}
	}
}

// isWithin reports whether path is root or lies below it, lexically.
func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && (rel == "." || filepath.IsLocal(rel))
}

// resolvesWithin reports whether path stays inside root once the symlinks in
// its existing part are followed. root must already be resolved. A dangling
// symlink on the way counts as leaving root.
func resolvesWithin(root, path string) (bool, error) {
	dir := path
	var rest []string
	for {
		real, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return isWithin(root, filepath.Join(append([]string{real}, rest...)...)), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
		if info, lerr := os.Lstat(dir); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
			return false, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false, err
		}
		rest = append([]string{filepath.Base(dir)}, rest...)
		dir = parent
	}
}
