package executor

import (
	"io"
	"sync"
)

// capWriter enforces one byte budget across stdout and stderr. The first write
// that would cross the budget trips it: the write is dropped and onExceed runs once.
type capWriter struct {
	mu       sync.Mutex
	max      int64
	written  int64
	tripped  bool
	onExceed func()
}

func newCapWriter(max int64, onExceed func()) *capWriter {
	return &capWriter{max: max, onExceed: onExceed}
}

func (c *capWriter) exceeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tripped
}

// stream returns a writer feeding dst under the shared budget.
func (c *capWriter) stream(dst io.Writer) io.Writer {
	return &cappedStream{cap: c, dst: dst}
}

type cappedStream struct {
	cap *capWriter
	dst io.Writer
}

func (s *cappedStream) Write(p []byte) (int, error) {
	c := s.cap
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tripped {
		return len(p), nil
	}
	if c.written+int64(len(p)) > c.max {
		c.tripped = true
		if c.onExceed != nil {
			c.onExceed()
		}
		return len(p), nil
	}
	c.written += int64(len(p))
	return s.dst.Write(p)
}
