package resolve

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dae2blend/internal/cmdline"
	"dae2blend/internal/extraction"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// newResolver returns a resolver whose scratch directories live in a
// dedicated temp root, so tests can assert on leftovers.
func newResolver(t *testing.T, ex extraction.Extractor) (*Resolver, string) {
	t.Helper()
	root := t.TempDir()
	return NewResolver(ex, "models", "blenddae", root, zap.NewNop()), root
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory left behind")
}

func TestResolve_SceneFileUnchanged(t *testing.T) {
	r, root := newResolver(t, extraction.ArchiveExtractor{})

	for _, in := range []string{"scene.dae", "/abs/path/scene.dae", "rel/dir/x.dae"} {
		res, err := r.Resolve(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, in, res.ScenePath)
		assert.Empty(t, res.ScratchDir)
		assert.NoError(t, res.Cleanup())
	}
	assertEmptyDir(t, root)
}

func TestResolve_ArchiveWithSingleScene(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, archive, map[string]string{
		"models/house.dae":      "<COLLADA/>",
		"models/house/roof.png": "png",
		"models/readme.txt":     "hi",
		"doc.kml":               "<kml/>",
	})
	r, root := newResolver(t, extraction.ArchiveExtractor{})

	res, err := r.Resolve(context.Background(), archive)
	require.NoError(t, err)

	assert.Equal(t, "house.dae", filepath.Base(res.ScenePath))
	assert.Equal(t, filepath.Join(res.ScratchDir, "models", "house.dae"), res.ScenePath)
	assert.Equal(t, root, filepath.Dir(res.ScratchDir))
	assert.Contains(t, filepath.Base(res.ScratchDir), "blenddae")
	assert.Equal(t, 4, res.Extracted.Files)
	assert.FileExists(t, res.ScenePath)

	require.NoError(t, res.Cleanup())
	assert.NoDirExists(t, res.ScratchDir)
	assertEmptyDir(t, root)
}

func TestResolve_ArchiveWithMultipleScenes(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, archive, map[string]string{
		"models/house.dae":  "<COLLADA/>",
		"models/garage.dae": "<COLLADA/>",
	})
	r, root := newResolver(t, extraction.ArchiveExtractor{})

	_, err := r.Resolve(context.Background(), archive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMultipleSceneFiles))
	assert.Contains(t, err.Error(), "multiple .dae files present in "+archive)
	assert.Contains(t, err.Error(), "garage.dae, house.dae")

	var ae *ArchiveError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, []string{"garage.dae", "house.dae"}, ae.Candidates)
	assertEmptyDir(t, root)
}

func TestResolve_ArchiveWithoutScene(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, archive, map[string]string{
		"models/house.obj":             "o",
		"house.dae":                    "<COLLADA/>",
		"models/nested.dae/readme.txt": "a directory named like a scene",
	})
	r, root := newResolver(t, extraction.ArchiveExtractor{})

	_, err := r.Resolve(context.Background(), archive)
	assert.True(t, errors.Is(err, ErrNoSceneFile), "got %v", err)
	assert.Contains(t, err.Error(), "no .dae file found in "+archive)
	assertEmptyDir(t, root)
}

func TestResolve_ArchiveWithoutModelsDir(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, archive, map[string]string{
		"house.dae": "<COLLADA/>",
		"models":    "a file, not a directory",
	})
	r, root := newResolver(t, extraction.ArchiveExtractor{})

	_, err := r.Resolve(context.Background(), archive)
	assert.True(t, errors.Is(err, ErrNoModelsDir), "got %v", err)
	assert.Contains(t, err.Error(), "no models subdir present in "+archive)
	assertEmptyDir(t, root)
}

func TestResolve_ConfiguredModelsDirInError(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, archive, map[string]string{"models/house.dae": "<COLLADA/>"})
	r := NewResolver(extraction.ArchiveExtractor{}, "scenes", "blenddae", t.TempDir(), nil)

	_, err := r.Resolve(context.Background(), archive)
	assert.ErrorIs(t, err, ErrNoModelsDir)
	assert.EqualError(t, err, "no scenes subdir present in "+archive)
}

type failingExtractor struct{ err error }

func (f failingExtractor) Extract(context.Context, string, string) (extraction.Stats, error) {
	return extraction.Stats{}, f.err
}

func TestResolve_ExtractionFailure(t *testing.T) {
	exErr := &extraction.Error{Archive: "bundle.zip", Method: "unzip", ExitCode: 9, Err: errors.New("exit status 9")}
	r, root := newResolver(t, failingExtractor{err: exErr})

	_, err := r.Resolve(context.Background(), "bundle.zip")
	var ee *extraction.Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 9, ee.ExitCode)
	var ae *ArchiveError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, exErr.Error(), ae.Error())
	assertEmptyDir(t, root)
}

func TestResolve_UnsupportedInput(t *testing.T) {
	r, root := newResolver(t, failingExtractor{})

	_, err := r.Resolve(context.Background(), "scene.fbx")
	var argErr *cmdline.ArgError
	assert.ErrorAs(t, err, &argErr)
	assertEmptyDir(t, root)
}
