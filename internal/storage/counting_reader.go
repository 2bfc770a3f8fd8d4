package storage

import (
	"io"
	"time"
)

// countingReader records how the uploader consumes the project file.
type countingReader struct {
	r           io.Reader
	bytes       int64
	readTime    time.Duration
	firstReadAt time.Time
}

func newCountingReader(r io.Reader) *countingReader { return &countingReader{r: r} }

func (c *countingReader) Read(p []byte) (int, error) {
	t0 := time.Now()
	n, err := c.r.Read(p)
	c.readTime += time.Since(t0)
	if n > 0 && c.firstReadAt.IsZero() {
		c.firstReadAt = time.Now()
	}
	c.bytes += int64(n)
	return n, err
}

func (c *countingReader) Stats() (bytes int64, readTime time.Duration) {
	return c.bytes, c.readTime
}
