// Package inspect reads a COLLADA scene before import and reports what it
// references. Findings are informational; nothing here stops a conversion.
package inspect

import (
	"bytes"
	"context"
	"encoding/xml"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/tiff"
	dae "github.com/flywave/go-collada"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/image/bmp"
)

// ImageRef is one <image> entry of the scene.
type ImageRef struct {
	ID  string
	URI string
	// Path is the resolved file, empty when it could not be found.
	Path   string
	Format string
	Width  int
	Height int
	Err    string
}

func (r ImageRef) Found() bool { return r.Path != "" }

type Summary struct {
	Scene      string
	Geometries int
	Materials  int
	Nodes      int
	Images     []ImageRef
}

func (s *Summary) MissingImages() int {
	n := 0
	for _, img := range s.Images {
		if !img.Found() {
			n++
		}
	}
	return n
}

// Collada parses the scene at path and probes every image it references.
func Collada(path string) (sum *Summary, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			sum, err = nil, errors.Errorf("malformed scene %s: %v", path, r)
		}
	}()

	collada, err := dae.LoadDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse %s", path)
	}
	legacy, err := legacyImageSources(data)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse %s", path)
	}

	sum = &Summary{Scene: path}
	for _, g := range collada.LibraryGeometries {
		sum.Geometries += len(g.Geometry)
	}
	for _, m := range collada.LibraryMaterials {
		sum.Materials += len(m.Material)
	}
	for _, sce := range collada.LibraryVisualScenes {
		for _, vs := range sce.VisualScene {
			sum.Nodes += len(vs.Node)
		}
	}

	baseDir := filepath.Dir(path)
	n := 0
	for _, libimg := range collada.LibraryImages {
		for _, img := range libimg.Image {
			ref := ImageRef{ID: string(img.HasId.Id)}
			if img.InitFrom != nil {
				ref.URI = strings.TrimSpace(img.InitFrom.Ref.Ref)
			}
			if ref.URI == "" && n < len(legacy) {
				ref.URI = legacy[n]
			}
			n++
			probe(&ref, baseDir)
			sum.Images = append(sum.Images, ref)
		}
	}
	return sum, nil
}

// legacyImageSources returns the text of every <image><init_from> in document
// order. COLLADA 1.4.1 writes the path there directly instead of in a <ref>
// child, and go-collada only models the 1.5 form.
func legacyImageSources(data []byte) ([]string, error) {
	var doc struct {
		LibraryImages []struct {
			Image []struct {
				InitFrom string `xml:"init_from"`
			} `xml:"image"`
		} `xml:"library_images"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var out []string
	for _, lib := range doc.LibraryImages {
		for _, img := range lib.Image {
			out = append(out, strings.TrimSpace(img.InitFrom))
		}
	}
	return out, nil
}

func probe(ref *ImageRef, baseDir string) {
	if ref.URI == "" {
		ref.Err = "no image source"
		return
	}
	p := strings.TrimPrefix(ref.URI, "file://")
	if u, err := url.PathUnescape(p); err == nil {
		p = u
	}
	candidates := []string{p}
	if !filepath.IsAbs(p) {
		candidates = []string{filepath.Join(baseDir, p)}
	}
	// exporters often write paths from the authoring machine
	_, fn := filepath.Split(filepath.ToSlash(p))
	candidates = append(candidates, filepath.Join(baseDir, fn))

	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && fi.Mode().IsRegular() {
			ref.Path = c
			break
		}
	}
	if ref.Path == "" {
		ref.Err = "file not found"
		return
	}

	f, err := os.Open(ref.Path)
	if err != nil {
		ref.Err = err.Error()
		return
	}
	defer f.Close()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(ref.Path)), ".")
	cfg, err := readConfig(f, ext)
	if err != nil {
		ref.Err = err.Error()
		return
	}
	ref.Format = ext
	ref.Width, ref.Height = cfg.Width, cfg.Height
}

func readConfig(rd io.Reader, ft string) (image.Config, error) {
	switch ft {
	case "jpeg", "jpg":
		return jpeg.DecodeConfig(rd)
	case "png":
		return png.DecodeConfig(rd)
	case "gif":
		return gif.DecodeConfig(rd)
	case "bmp":
		return bmp.DecodeConfig(rd)
	case "tif", "tiff":
		img, err := tiff.Decode(rd)
		if err != nil {
			return image.Config{}, err
		}
		b := img.Bounds()
		return image.Config{ColorModel: img.ColorModel(), Width: b.Dx(), Height: b.Dy()}, nil
	default:
		return image.Config{}, errors.Errorf("unsupported image format %q", ft)
	}
}

// Inspector logs a Summary for each scene it is given.
type Inspector struct {
	logger *zap.Logger
}

func NewInspector(logger *zap.Logger) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{logger: logger.With(zap.String("component", "inspect"))}
}

func (i *Inspector) Inspect(ctx context.Context, scenePath string) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum, err := Collada(scenePath)
	if err != nil {
		return nil, err
	}
	i.logger.Info("scene inspected",
		zap.String("scene", scenePath),
		zap.Int("geometries", sum.Geometries),
		zap.Int("materials", sum.Materials),
		zap.Int("nodes", sum.Nodes),
		zap.Int("images", len(sum.Images)),
		zap.Int("missing_images", sum.MissingImages()),
	)
	for _, img := range sum.Images {
		if img.Err != "" {
			i.logger.Warn("scene image problem",
				zap.String("id", img.ID),
				zap.String("uri", img.URI),
				zap.String("error", img.Err),
			)
		}
	}
	return sum, nil
}
