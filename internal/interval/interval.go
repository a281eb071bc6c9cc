// Package interval stores half-open spans that are either disjoint or nested
// and answers point-containment and nesting-navigation queries over them.
//
// All regions live in one slice ordered by (start ascending, end descending,
// insertion order). Parent and depth are kept as parallel index slices that
// Insert updates in place, so once construction is finished every query is a
// pure read and an Index may be shared between goroutines.
package interval

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"
	"sort"
)

var (
	// ErrInvalidRange reports an empty, inverted, negative or oversized span.
	ErrInvalidRange = errors.New("invalid range")
	// ErrOverlapViolation reports a span that partially overlaps an existing one.
	ErrOverlapViolation = errors.New("overlap violation")
)

// Region is one span in an Index together with its derived nesting data.
type Region[K comparable] struct {
	Key   K
	Start int
	End   int // exclusive
	Index int // position in the index ordering
	Depth int // 0 for outermost regions
}

// Contains reports whether offset falls inside the half-open span.
func (r Region[K]) Contains(offset int) bool {
	return offset >= r.Start && offset < r.End
}

// Len returns the span length.
func (r Region[K]) Len() int {
	return r.End - r.Start
}

type entry[K comparable] struct {
	key   K
	start int
	end   int
}

// Index is a nesting-aware span index. The zero value is ready to use.
type Index[K comparable] struct {
	entries []entry[K]
	starts  []int
	parents []int
	depths  []int
}

// New returns an empty index.
func New[K comparable]() *Index[K] {
	return &Index[K]{}
}

// ValidateRange checks the bounds Insert accepts without touching any index.
func ValidateRange(start, end int) error {
	if start < 0 || end < 0 || end > math.MaxUint32 {
		return fmt.Errorf("%w: [%d, %d) out of bounds", ErrInvalidRange, start, end)
	}
	if end <= start {
		return fmt.Errorf("%w: [%d, %d) is empty or inverted", ErrInvalidRange, start, end)
	}
	return nil
}

// Insert adds a span. Spans may arrive in any order. A span identical to an
// existing one is nested inside it. On error the index is left unchanged.
//
// Crossing checks and parent lookup walk one ancestor chain, so inserting in
// start order costs O(log n + depth). Out-of-order inserts also shift the
// regions after the insertion point.
func (ix *Index[K]) Insert(key K, start, end int) error {
	if err := ValidateRange(start, end); err != nil {
		return err
	}
	if i := ix.crossing(start, end); i >= 0 {
		e := ix.entries[i]
		return fmt.Errorf("%w: [%d, %d) crosses [%d, %d) of %v",
			ErrOverlapViolation, start, end, e.start, e.end, e.key)
	}

	pos := sort.Search(len(ix.entries), func(i int) bool {
		e := ix.entries[i]
		return e.start > start || (e.start == start && e.end < end)
	})
	parent := pos - 1
	for parent >= 0 && ix.entries[parent].end < end {
		parent = ix.parents[parent]
	}
	depth := 0
	if parent >= 0 {
		depth = ix.depths[parent] + 1
	}

	e := entry[K]{key: key, start: start, end: end}
	if pos == len(ix.entries) {
		ix.entries = append(ix.entries, e)
		ix.starts = append(ix.starts, start)
		ix.parents = append(ix.parents, parent)
		ix.depths = append(ix.depths, depth)
		return nil
	}

	for j, p := range ix.parents {
		if p >= pos {
			ix.parents[j] = p + 1
		}
	}
	ix.entries = slices.Insert(ix.entries, pos, e)
	ix.starts = slices.Insert(ix.starts, pos, start)
	ix.parents = slices.Insert(ix.parents, pos, parent)
	ix.depths = slices.Insert(ix.depths, pos, depth)

	// Every following region that starts inside the new span nests in it.
	for j := pos + 1; j < len(ix.entries) && ix.starts[j] < end; j++ {
		ix.depths[j]++
		if ix.parents[j] == parent {
			ix.parents[j] = pos
		}
	}
	return nil
}

// crossing returns a region that partially overlaps [start, end), or -1.
// A region starting at or before start can only cross if it is an ancestor
// of the last region starting at or before start. A region starting inside
// the span can only cross if it covers end-1, which puts it on the ancestor
// chain of the last region starting before end.
func (ix *Index[K]) crossing(start, end int) int {
	for i := LastLessOrEqual(start, ix.starts); i >= 0; i = ix.parents[i] {
		if crosses(ix.entries[i].start, ix.entries[i].end, start, end) {
			return i
		}
	}
	for i := LastLessOrEqual(end-1, ix.starts); i >= 0 && ix.starts[i] > start; i = ix.parents[i] {
		if crosses(ix.entries[i].start, ix.entries[i].end, start, end) {
			return i
		}
	}
	return -1
}

// crosses reports partial overlap: the spans intersect but neither contains
// the other.
func crosses(aStart, aEnd, bStart, bEnd int) bool {
	if aEnd <= bStart || bEnd <= aStart {
		return false
	}
	if aStart <= bStart && bEnd <= aEnd {
		return false
	}
	if bStart <= aStart && aEnd <= bEnd {
		return false
	}
	return true
}

// Len returns the number of regions.
func (ix *Index[K]) Len() int {
	return len(ix.entries)
}

// At returns the region at position i in index order.
func (ix *Index[K]) At(i int) (Region[K], bool) {
	if i < 0 || i >= len(ix.entries) {
		return Region[K]{}, false
	}
	return ix.region(i), true
}

func (ix *Index[K]) region(i int) Region[K] {
	e := ix.entries[i]
	return Region[K]{Key: e.key, Start: e.start, End: e.end, Index: i, Depth: ix.depths[i]}
}

// All iterates over every region in index order.
func (ix *Index[K]) All() iter.Seq2[int, Region[K]] {
	return func(yield func(int, Region[K]) bool) {
		for i := range ix.entries {
			if !yield(i, ix.region(i)) {
				return
			}
		}
	}
}

// innermostAt finds the last region starting at or before offset, then climbs
// its ancestors until one still covers offset. Any region containing offset is
// an ancestor of (or equal to) that candidate.
func (ix *Index[K]) innermostAt(offset int) int {
	i := LastLessOrEqual(offset, ix.starts)
	for i >= 0 {
		if offset < ix.entries[i].end {
			return i
		}
		i = ix.parents[i]
	}
	return -1
}

// RegionAt returns the innermost region containing offset.
func (ix *Index[K]) RegionAt(offset int) (Region[K], bool) {
	i := ix.innermostAt(offset)
	if i < 0 {
		return Region[K]{}, false
	}
	return ix.region(i), true
}

// IndexAndDepthAt returns the position and nesting depth of the innermost
// region containing offset.
func (ix *Index[K]) IndexAndDepthAt(offset int) (index, depth int, ok bool) {
	i := ix.innermostAt(offset)
	if i < 0 {
		return -1, -1, false
	}
	return i, ix.depths[i], true
}

// KeysAtPoint appends the keys of every region containing offset to buf,
// outermost first, and returns the extended slice.
func (ix *Index[K]) KeysAtPoint(offset int, buf []K) []K {
	mark := len(buf)
	for i := ix.innermostAt(offset); i >= 0; i = ix.parents[i] {
		buf = append(buf, ix.entries[i].key)
	}
	slices.Reverse(buf[mark:])
	return buf
}

// Parent returns the smallest region enclosing region i.
func (ix *Index[K]) Parent(i int) (Region[K], bool) {
	if i < 0 || i >= len(ix.entries) || ix.parents[i] < 0 {
		return Region[K]{}, false
	}
	return ix.region(ix.parents[i]), true
}

// Outermost returns the depth-0 ancestor of region i. It reports false when
// region i is itself outermost.
func (ix *Index[K]) Outermost(i int) (Region[K], bool) {
	if i < 0 || i >= len(ix.entries) || ix.parents[i] < 0 {
		return Region[K]{}, false
	}
	for ix.parents[i] >= 0 {
		i = ix.parents[i]
	}
	return ix.region(i), true
}

// descendantEnd returns the exclusive upper bound of the contiguous block of
// regions nested inside region i.
func (ix *Index[K]) descendantEnd(i int) int {
	end := FirstGreaterOrEqual(ix.entries[i].end, ix.starts)
	if end < 0 {
		return len(ix.entries)
	}
	return end
}

// Children returns the regions whose parent is region i, in start order.
func (ix *Index[K]) Children(i int) []Region[K] {
	if i < 0 || i >= len(ix.entries) {
		return nil
	}
	var out []Region[K]
	end := ix.descendantEnd(i)
	for j := i + 1; j < end; j++ {
		if ix.parents[j] == i {
			out = append(out, ix.region(j))
		}
	}
	return out
}

// AllChildren returns every region nested inside region i at any depth.
func (ix *Index[K]) AllChildren(i int) []Region[K] {
	if i < 0 || i >= len(ix.entries) {
		return nil
	}
	end := ix.descendantEnd(i)
	if end <= i+1 {
		return nil
	}
	out := make([]Region[K], 0, end-i-1)
	for j := i + 1; j < end; j++ {
		out = append(out, ix.region(j))
	}
	return out
}

// OutermostKeys returns the keys of depth-0 regions in start order.
func (ix *Index[K]) OutermostKeys() []K {
	var keys []K
	for i, e := range ix.entries {
		if ix.depths[i] == 0 {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Copy returns an independent clone that keeps spare capacity for inserts.
func (ix *Index[K]) Copy() *Index[K] {
	return &Index[K]{
		entries: append(make([]entry[K], 0, cap(ix.entries)), ix.entries...),
		starts:  append(make([]int, 0, cap(ix.starts)), ix.starts...),
		parents: append(make([]int, 0, cap(ix.parents)), ix.parents...),
		depths:  append(make([]int, 0, cap(ix.depths)), ix.depths...),
	}
}

// Trim returns an independent clone with no spare capacity.
func (ix *Index[K]) Trim() *Index[K] {
	n := len(ix.entries)
	out := &Index[K]{
		entries: make([]entry[K], n),
		starts:  make([]int, n),
		parents: make([]int, n),
		depths:  make([]int, n),
	}
	copy(out.entries, ix.entries)
	copy(out.starts, ix.starts)
	copy(out.parents, ix.parents)
	copy(out.depths, ix.depths)
	return out
}

// Equal reports whether both indexes hold the same regions in the same order.
// Nesting data is derived from the regions, so it is not compared.
func (ix *Index[K]) Equal(other *Index[K]) bool {
	if ix == nil || other == nil {
		return ix == other
	}
	return slices.Equal(ix.entries, other.entries)
}

// LastLessOrEqual returns the index of the last value <= target in sorted,
// or -1 when target precedes every value. With duplicates the highest
// matching index wins.
func LastLessOrEqual(target int, sorted []int) int {
	return sort.Search(len(sorted), func(i int) bool {
		return sorted[i] > target
	}) - 1
}

// FirstGreaterOrEqual returns the index of the first value >= target in
// sorted, or -1 when every value is smaller. With duplicates the lowest
// matching index wins.
func FirstGreaterOrEqual(target int, sorted []int) int {
	i := sort.Search(len(sorted), func(i int) bool {
		return sorted[i] >= target
	})
	if i == len(sorted) {
		return -1
	}
	return i
}
