package minibatch

import "io"

// Chain concatenates sources opened one at a time. Open is called with the
// index of the next source; a source is opened only once the previous one
// is exhausted and closed when it ends, if it implements io.Closer.
type Chain[T any] struct {
	n    int
	open func(i int) (Source[T], error)

	i   int
	cur Source[T]
	err error
}

// NewChain returns a Source over n sources produced by open.
func NewChain[T any](n int, open func(i int) (Source[T], error)) *Chain[T] {
	return &Chain[T]{n: n, open: open}
}

// Next advances to the next record, moving on to the next source as needed.
func (c *Chain[T]) Next() bool {
	for c.err == nil {
		if c.cur == nil {
			if c.i >= c.n {
				return false
			}
			src, err := c.open(c.i)
			if err != nil {
				c.err = err
				return false
			}
			c.cur = src
			c.i++
		}
		if c.cur.Next() {
			return true
		}
		if err := c.cur.Err(); err != nil {
			c.err = err
		}
		if err := c.release(); err != nil && c.err == nil {
			c.err = err
		}
	}
	return false
}

// Record returns the current record.
func (c *Chain[T]) Record() T {
	return c.cur.Record()
}

// Err returns the first error from opening, reading or closing a source.
func (c *Chain[T]) Err() error {
	return c.err
}

// Close releases the current source.
func (c *Chain[T]) Close() error {
	return c.release()
}

func (c *Chain[T]) release() error {
	src := c.cur
	c.cur = nil
	if closer, ok := src.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
