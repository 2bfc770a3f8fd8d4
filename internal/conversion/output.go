package conversion

import (
	"bytes"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const markerPrefix = "DAE2BLEND:"

// markerWriter splits host output into lines, logs them and records the
// DAE2BLEND:<kind>:<detail> markers printed by the driver script.
type markerWriter struct {
	logger *zap.Logger
	buf    bytes.Buffer

	step     string
	failure  string
	missing  string
	done     bool
	imported int
	packed   int
	// images whose source file could not be packed
	packFailed []string
}

func newMarkerWriter(logger *zap.Logger) *markerWriter {
	return &markerWriter{logger: logger}
}

func (w *markerWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		w.line(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Flush handles a trailing line without newline.
func (w *markerWriter) Flush() {
	if w.buf.Len() > 0 {
		w.line(strings.TrimRight(w.buf.String(), "\r\n"))
		w.buf.Reset()
	}
}

func (w *markerWriter) line(s string) {
	if !strings.HasPrefix(s, markerPrefix) {
		if s != "" {
			w.logger.Debug(s)
		}
		return
	}
	kind, detail, _ := strings.Cut(strings.TrimPrefix(s, markerPrefix), ":")
	switch kind {
	case "step":
		w.step = detail
		w.logger.Debug("host step", zap.String("step", detail))
	case "imported":
		w.imported, _ = strconv.Atoi(detail)
	case "packed":
		w.packed, _ = strconv.Atoi(detail)
	case "pack-failed":
		w.packFailed = append(w.packFailed, detail)
		w.logger.Warn("image could not be packed", zap.String("image", detail))
	case "missing-operator":
		w.missing = detail
	case "error":
		w.failure = detail
	case "done":
		w.done = true
	default:
		w.logger.Debug("unknown host marker", zap.String("line", s))
	}
}
