// Package resolve turns the input argument into the scene file to import,
// extracting archives into a scratch directory when needed.
package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dae2blend/internal/cmdline"
	"dae2blend/internal/extraction"
)

var (
	ErrNoModelsDir        = errors.New("no scene subdir present")
	ErrNoSceneFile        = errors.New("no .dae file found")
	ErrMultipleSceneFiles = errors.New("multiple .dae files present")
)

// ArchiveError reports a problem with a .zip input. Err is one of the Err*
// sentinels above or an *extraction.Error.
type ArchiveError struct {
	Archive string
	// Dir is the configured scene subdirectory, set with ErrNoModelsDir.
	Dir        string
	Candidates []string
	Err        error
}

func (e *ArchiveError) Error() string {
	var ee *extraction.Error
	if errors.As(e.Err, &ee) {
		return e.Err.Error()
	}
	if errors.Is(e.Err, ErrNoModelsDir) && e.Dir != "" {
		return fmt.Sprintf("no %s subdir present in %s", e.Dir, e.Archive)
	}
	if len(e.Candidates) > 1 {
		return fmt.Sprintf("%v in %s: %s", e.Err, e.Archive, strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("%v in %s", e.Err, e.Archive)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// Result is the outcome of a successful resolution.
type Result struct {
	ScenePath string
	// ScratchDir is the extraction directory, or "" if none was created.
	ScratchDir string
	Extracted  extraction.Stats
}

// Cleanup removes the scratch directory, if any.
func (r Result) Cleanup() error {
	if r.ScratchDir == "" {
		return nil
	}
	return os.RemoveAll(r.ScratchDir)
}

// Resolver locates the scene file for an input path.
type Resolver struct {
	Extractor extraction.Extractor
	// ModelsDir is the archive subdirectory holding the scene file.
	ModelsDir     string
	ScratchPrefix string
	// TempDir is the parent of scratch directories; "" means os.TempDir().
	TempDir string
	Logger  *zap.Logger
}

func NewResolver(ex extraction.Extractor, modelsDir, scratchPrefix, tempDir string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		Extractor:     ex,
		ModelsDir:     modelsDir,
		ScratchPrefix: scratchPrefix,
		TempDir:       tempDir,
		Logger:        logger.With(zap.String("component", "resolve")),
	}
}

// Resolve returns the scene file for input. A .dae input is returned
// unchanged; a .zip input is extracted and must hold exactly one .dae file
// in ModelsDir. On error no scratch directory is left behind.
func (r *Resolver) Resolve(ctx context.Context, input string) (Result, error) {
	switch {
	case strings.HasSuffix(input, cmdline.ArchiveExt):
		return r.resolveArchive(ctx, input)
	case strings.HasSuffix(input, cmdline.SceneExt):
		return Result{ScenePath: input}, nil
	default:
		return Result{}, &cmdline.ArgError{Msg: fmt.Sprintf("input filename must end with %s or %s", cmdline.SceneExt, cmdline.ArchiveExt)}
	}
}

func (r *Resolver) resolveArchive(ctx context.Context, input string) (res Result, err error) {
	scratch, err := os.MkdirTemp(r.TempDir, r.ScratchPrefix)
	if err != nil {
		return Result{}, errors.Wrap(err, "could not create scratch directory")
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(scratch); rmErr != nil {
				r.Logger.Warn("could not remove scratch directory", zap.String("dir", scratch), zap.Error(rmErr))
			}
		}
	}()

	r.Logger.Debug("extracting archive", zap.String("archive", input), zap.String("scratch", scratch))
	stats, err := r.Extractor.Extract(ctx, input, scratch)
	if err != nil {
		return Result{}, &ArchiveError{Archive: input, Err: err}
	}

	scene, err := r.findScene(input, filepath.Join(scratch, r.ModelsDir))
	if err != nil {
		return Result{}, err
	}

	r.Logger.Info("found scene in archive",
		zap.String("archive", input),
		zap.String("scene", scene),
		zap.Int("files", stats.Files),
		zap.Int64("bytes", stats.Bytes),
	)
	return Result{ScenePath: scene, ScratchDir: scratch, Extracted: stats}, nil
}

func (r *Resolver) findScene(archive, modelsDir string) (string, error) {
	fi, err := os.Stat(modelsDir)
	if err != nil || !fi.IsDir() {
		return "", &ArchiveError{Archive: archive, Dir: r.ModelsDir, Err: ErrNoModelsDir}
	}

	entries, err := os.ReadDir(modelsDir)
	if err != nil {
		return "", errors.Wrapf(err, "could not list %s", modelsDir)
	}

	var candidates []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), cmdline.SceneExt) {
			continue
		}
		path := filepath.Join(modelsDir, e.Name())
		// follows symlinks, like a plain isfile check
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		candidates = append(candidates, path)
	}

	switch len(candidates) {
	case 0:
		return "", &ArchiveError{Archive: archive, Err: ErrNoSceneFile}
	case 1:
		return candidates[0], nil
	default:
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = filepath.Base(c)
		}
		sort.Strings(names)
		return "", &ArchiveError{Archive: archive, Candidates: names, Err: ErrMultipleSceneFiles}
	}
}
