package utils

import (
	"io"
	"sync/atomic"
)

// CountingWriter counts the bytes written through it.
type CountingWriter struct {
	W     io.Writer
	bytes int64
}

func NewCountingWriter(w io.Writer) *CountingWriter { return &CountingWriter{W: w} }

func (t *CountingWriter) Write(p []byte) (int, error) {
	n, err := t.W.Write(p)
	atomic.AddInt64(&t.bytes, int64(n))
	return n, err
}

func (t *CountingWriter) Bytes() int64 { return atomic.LoadInt64(&t.bytes) }
