package extraction

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// UnzipExtractor runs the external unzip program, as the original batch
// scripts did.
type UnzipExtractor struct {
	// Path is the unzip executable, looked up in PATH when it has no separator.
	Path string
}

func (u UnzipExtractor) Extract(ctx context.Context, archivePath, destDir string) (Stats, error) {
	bin := u.Path
	if bin == "" {
		bin = "unzip"
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-q", archivePath, "-d", destDir)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		e := &Error{
			Archive: archivePath,
			Method:  bin,
			Output:  strings.TrimSpace(out.String()),
			Err:     err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			e.ExitCode = exitErr.ExitCode()
		}
		return Stats{}, e
	}

	stats, err := dirStats(destDir)
	if err != nil {
		return stats, errors.Wrapf(err, "could not stat extracted files in %s", destDir)
	}
	return stats, nil
}
