// Package minibatch groups a pull-based record sequence into bounded
// batches. At most one batch of records is held in memory at a time.
package minibatch

import (
	"mripatches/pkg/errors"
)

// Source is a pull-based record sequence. patch.Iterator satisfies
// Source[*patch.Record].
type Source[T any] interface {
	Next() bool
	Record() T
	Err() error
}

// Streamer pulls up to Size records from a Source per call to Next.
// Batches keep the source order. The final batch may be shorter; an empty
// batch is never produced.
type Streamer[T any] struct {
	src   Source[T]
	size  int
	batch []T
	count int
	total int
	done  bool
	err   error
}

// New returns a Streamer over src. size must be positive.
func New[T any](src Source[T], size int) (*Streamer[T], error) {
	if size <= 0 {
		return nil, errors.NewRangeError("batch_size", size, "must be positive")
	}
	if src == nil {
		return nil, errors.NewConfigError("source", "record source is required")
	}
	return &Streamer[T]{src: src, size: size}, nil
}

// Next fills the next batch. It returns false once the source is exhausted
// and no records remain, or when the source failed.
func (s *Streamer[T]) Next() bool {
	if s.done {
		s.batch = nil
		return false
	}

	batch := make([]T, 0, s.size)
	for len(batch) < s.size {
		if !s.src.Next() {
			s.done = true
			if err := s.src.Err(); err != nil {
				s.err = err
				s.batch = nil
				return false
			}
			break
		}
		batch = append(batch, s.src.Record())
	}

	if len(batch) == 0 {
		s.batch = nil
		return false
	}
	s.batch = batch
	s.count++
	s.total += len(batch)
	return true
}

// Batch returns the batch filled by the last successful Next. The slice is
// owned by the caller.
func (s *Streamer[T]) Batch() []T {
	return s.batch
}

// Err returns the source error that stopped the stream, if any.
func (s *Streamer[T]) Err() error {
	return s.err
}

// Batches returns the number of batches produced so far.
func (s *Streamer[T]) Batches() int {
	return s.count
}

// Records returns the number of records produced so far.
func (s *Streamer[T]) Records() int {
	return s.total
}

// Each drains the stream, calling fn for every batch. It stops at the first
// error returned by fn or by the source.
func (s *Streamer[T]) Each(fn func(batch []T) error) error {
	for s.Next() {
		if err := fn(s.batch); err != nil {
			return err
		}
	}
	return s.Err()
}

// SliceSource serves records from memory.
type SliceSource[T any] struct {
	items []T
	pos   int
}

// FromSlice returns a Source over items.
func FromSlice[T any](items []T) *SliceSource[T] {
	return &SliceSource[T]{items: items}
}

// Next advances to the next item.
func (s *SliceSource[T]) Next() bool {
	if s.pos >= len(s.items) {
		return false
	}
	s.pos++
	return true
}

// Record returns the current item.
func (s *SliceSource[T]) Record() T {
	return s.items[s.pos-1]
}

// Err always returns nil.
func (s *SliceSource[T]) Err() error {
	return nil
}
