package extraction

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mholt/archives"
	"github.com/pkg/errors"

	"dae2blend/internal/utils"
)

// Stats describes what an extraction wrote to disk.
type Stats struct {
	Files int
	Bytes int64
}

// Extractor unpacks an archive into an existing, empty directory.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) (Stats, error)
}

// Error reports a failed extraction. ExitCode is set when an external
// extraction program exited with a non-zero status.
type Error struct {
	Archive  string
	Method   string
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("extracting %s with %s failed with exit status %d: %v", e.Archive, e.Method, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("extracting %s with %s failed: %v", e.Archive, e.Method, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ArchiveExtractor extracts ZIP (and other formats known to mholt/archives)
// in-process.
type ArchiveExtractor struct{}

func (ArchiveExtractor) Extract(ctx context.Context, archivePath, destDir string) (Stats, error) {
	var stats Stats

	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return stats, &Error{Archive: archivePath, Method: "builtin", Err: err}
	}

	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		if !fs.ValidPath(path) {
			return errors.Errorf("unsafe path %q in archive", path)
		}

		destPath := filepath.Join(destDir, filepath.FromSlash(path))
		if d.IsDir() {
			return os.MkdirAll(destPath, 0o755)
		}
		// links and devices are not extracted
		if !d.Type().IsRegular() {
			return nil
		}

		n, err := copyEntry(fsys, path, destPath)
		if err != nil {
			return err
		}
		stats.Files++
		stats.Bytes += n
		return nil
	})
	if err != nil {
		return stats, &Error{Archive: archivePath, Method: "builtin", Err: err}
	}
	return stats, nil
}

func copyEntry(fsys fs.FS, path, destPath string) (int64, error) {
	reader, err := fsys.Open(path)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, err
	}
	outFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	w := utils.NewCountingWriter(outFile)
	if _, err := io.Copy(w, reader); err != nil {
		outFile.Close()
		return w.Bytes(), errors.Wrapf(err, "could not write %s", destPath)
	}
	if err := outFile.Close(); err != nil {
		return w.Bytes(), err
	}
	return w.Bytes(), nil
}

// dirStats sums the regular files below dir.
func dirStats(dir string) (Stats, error) {
	var stats Stats
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		stats.Files++
		stats.Bytes += info.Size()
		return nil
	})
	return stats, err
}
