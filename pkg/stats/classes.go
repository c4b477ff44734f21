// Package stats tabulates patch labels per class. Counting and weighting are
// two phases: an Accumulator records labels, and Finalize computes the
// weights once every volume of a split has been processed.
package stats

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"mripatches/pkg/errors"
)

// Class is the tally of one label.
type Class struct {
	Count int
	// Weight is Count divided by the count of the most frequent class.
	Weight float64
}

// MarshalJSON encodes the class as [count, weight].
func (c Class) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{float64(c.Count), c.Weight})
}

// UnmarshalJSON decodes a [count, weight] pair.
func (c *Class) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return errors.NewDataError("decode class statistics", "", "want [count, weight]", err)
	}
	c.Count = int(pair[0])
	c.Weight = pair[1]
	return nil
}

// Statistics maps a label to its finalized tally.
type Statistics map[int]Class

// Labels returns the labels in increasing order.
func (s Statistics) Labels() []int {
	labels := make([]int, 0, len(s))
	for l := range s {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

// Total returns the sum of all counts.
func (s Statistics) Total() int {
	var n int
	for _, c := range s {
		n += c.Count
	}
	return n
}

// MarshalZerologObject logs every class as label=count.
func (s Statistics) MarshalZerologObject(e *zerolog.Event) {
	for _, l := range s.Labels() {
		e.Int(strconv.Itoa(l), s[l].Count)
	}
}

// Accumulator counts labels across the volumes of one split.
type Accumulator struct {
	counts    map[int]int
	finalized bool
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{counts: make(map[int]int)}
}

// Record counts one patch of the given label.
func (a *Accumulator) Record(label int) error {
	if a.finalized {
		return errors.ErrFinalized
	}
	a.counts[label]++
	return nil
}

// Merge adds the counts of another accumulator, typically the tally of one
// volume, into a.
func (a *Accumulator) Merge(other *Accumulator) error {
	if a.finalized {
		return errors.ErrFinalized
	}
	for l, n := range other.counts {
		a.counts[l] += n
	}
	return nil
}

// Count returns the current count of label.
func (a *Accumulator) Count(label int) int {
	return a.counts[label]
}

// Finalize computes the class weights. It may be called once; later calls
// return ErrFinalized. An accumulator that recorded nothing yields empty
// statistics.
func (a *Accumulator) Finalize() (Statistics, error) {
	if a.finalized {
		return nil, errors.ErrFinalized
	}
	a.finalized = true

	var most int
	for _, n := range a.counts {
		if n > most {
			most = n
		}
	}
	out := make(Statistics, len(a.counts))
	for l, n := range a.counts {
		out[l] = Class{Count: n, Weight: float64(n) / float64(most)}
	}
	return out, nil
}
