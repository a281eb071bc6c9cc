package interval

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type span struct {
	key        string
	start, end int
}

func build(t *testing.T, spans ...span) *Index[string] {
	t.Helper()
	ix := New[string]()
	for _, s := range spans {
		require.NoError(t, ix.Insert(s.key, s.start, s.end), "insert %s", s.key)
	}
	return ix
}

var scenario = []span{
	{"a", 10, 20},
	{"b", 30, 100},
	{"c", 30, 50},
	{"d", 50, 60},
	{"e", 70, 80},
	{"f", 110, 120},
}

func TestScenarioOutermostAndPointQueries(t *testing.T) {
	t.Parallel()
	ix := build(t, scenario...)

	assert.Equal(t, []string{"a", "b", "f"}, ix.OutermostKeys())

	r, ok := ix.RegionAt(32)
	require.True(t, ok)
	assert.Equal(t, "c", r.Key)

	idx, depth, ok := ix.IndexAndDepthAt(51)
	require.True(t, ok)
	assert.Equal(t, 3, idx)
	assert.Equal(t, 1, depth)
}

func TestInsertOrderDoesNotMatter(t *testing.T) {
	t.Parallel()
	forward := build(t, scenario...)

	reversed := make([]span, len(scenario))
	for i, s := range scenario {
		reversed[len(scenario)-1-i] = s
	}
	backward := build(t, reversed...)

	assert.True(t, forward.Equal(backward))
}

func TestRegionAtEveryOffset(t *testing.T) {
	t.Parallel()
	ix := build(t, scenario...)

	for _, r := range allRegions(ix) {
		for off := r.Start; off < r.End; off++ {
			got, ok := ix.RegionAt(off)
			require.True(t, ok, "offset %d inside %s", off, r.Key)
			assert.True(t, got.Contains(off))
			assert.True(t, got.Index == r.Index || isAncestor(ix, r.Index, got.Index),
				"offset %d: got %s, want %s or a region nested in it", off, got.Key, r.Key)
		}
	}

	for _, off := range []int{-1, 0, 9, 20, 25, 100, 105, 120, 1000} {
		_, ok := ix.RegionAt(off)
		assert.False(t, ok, "offset %d should be outside every region", off)
	}
}

func TestHalfOpenBoundaries(t *testing.T) {
	t.Parallel()
	ix := build(t, span{"left", 0, 10}, span{"right", 10, 20})

	r, ok := ix.RegionAt(9)
	require.True(t, ok)
	assert.Equal(t, "left", r.Key)

	r, ok = ix.RegionAt(10)
	require.True(t, ok)
	assert.Equal(t, "right", r.Key)

	_, ok = ix.RegionAt(20)
	assert.False(t, ok)
}

func TestInsertRejectsInvalidRanges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		start, end int
	}{
		{"empty", 5, 5},
		{"inverted", 10, 5},
		{"negative start", -1, 5},
		{"negative end", -5, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ix := build(t, span{"x", 0, 3})
			err := ix.Insert("bad", tt.start, tt.end)
			require.ErrorIs(t, err, ErrInvalidRange)
			assert.Equal(t, 1, ix.Len())
		})
	}
}

func TestOverlapViolationOnlyOnPartialOverlap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		start, end int
		wantErr    bool
	}{
		{"disjoint before", 0, 10, false},
		{"touching end", 20, 30, false},
		{"nested", 12, 18, false},
		{"identical", 10, 20, false},
		{"enclosing", 5, 25, false},
		{"same start shorter", 10, 15, false},
		{"same end shorter", 15, 20, false},
		{"crosses start", 5, 15, true},
		{"crosses end", 15, 25, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ix := build(t, span{"base", 10, 20})
			before := ix.Copy()
			err := ix.Insert("new", tt.start, tt.end)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrOverlapViolation)
				assert.True(t, ix.Equal(before), "failed insert must not mutate")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 2, ix.Len())
		})
	}
}

func TestIdenticalSpansStackByInsertionOrder(t *testing.T) {
	t.Parallel()
	ix := build(t, span{"first", 5, 15}, span{"second", 5, 15}, span{"third", 5, 15})

	r, ok := ix.RegionAt(7)
	require.True(t, ok)
	assert.Equal(t, "third", r.Key)
	assert.Equal(t, 2, r.Depth)
	assert.Equal(t, []string{"first", "second", "third"}, ix.KeysAtPoint(7, nil))
	assert.Equal(t, []string{"first"}, ix.OutermostKeys())
}

func TestNavigation(t *testing.T) {
	t.Parallel()
	ix := build(t, scenario...)
	b := indexOf(t, ix, "b")

	assert.Equal(t, []string{"c", "d", "e"}, keys(ix.Children(b)))
	assert.Equal(t, []string{"c", "d", "e"}, keys(ix.AllChildren(b)))
	assert.Empty(t, ix.Children(indexOf(t, ix, "a")))

	d := indexOf(t, ix, "d")
	p, ok := ix.Parent(d)
	require.True(t, ok)
	assert.Equal(t, "b", p.Key)

	top, ok := ix.Outermost(d)
	require.True(t, ok)
	assert.Equal(t, "b", top.Key)

	_, ok = ix.Outermost(b)
	assert.False(t, ok, "outermost region has no outermost ancestor")
	_, ok = ix.Parent(b)
	assert.False(t, ok)

	_, ok = ix.Parent(99)
	assert.False(t, ok)
	assert.Nil(t, ix.Children(-1))
}

func TestDeepNesting(t *testing.T) {
	t.Parallel()
	ix := build(t,
		span{"root", 0, 100},
		span{"inner", 20, 40},
		span{"mid", 10, 50},
		span{"leaf", 25, 30},
		span{"sibling", 60, 70},
	)

	assert.Equal(t, []string{"root", "mid", "inner", "leaf"}, ix.KeysAtPoint(26, nil))
	assert.Equal(t, []string{"root", "mid"}, ix.KeysAtPoint(45, nil))
	assert.Equal(t, []string{"seed", "root", "sibling"}, ix.KeysAtPoint(65, []string{"seed"}))
	assert.Empty(t, ix.KeysAtPoint(100, nil))

	root := indexOf(t, ix, "root")
	assert.Equal(t, []string{"mid", "sibling"}, keys(ix.Children(root)))
	assert.Equal(t, []string{"mid", "inner", "leaf", "sibling"}, keys(ix.AllChildren(root)))

	top, ok := ix.Outermost(indexOf(t, ix, "leaf"))
	require.True(t, ok)
	assert.Equal(t, "root", top.Key)
}

func TestNavigationInvariants(t *testing.T) {
	t.Parallel()
	ix := build(t, append(scenario, span{"g", 31, 40}, span{"h", 32, 33})...)

	for _, r := range allRegions(ix) {
		for _, c := range ix.Children(r.Index) {
			assert.NotEqual(t, r.Index, c.Index, "%s lists itself as child", r.Key)
			assert.Equal(t, r.Depth+1, c.Depth)
		}
		if p, ok := ix.Parent(r.Index); ok {
			assert.NotEqual(t, r.Index, p.Index, "%s lists itself as parent", r.Key)
			assert.Equal(t, p.Depth+1, r.Depth)
		} else {
			assert.Zero(t, r.Depth)
		}
	}
}

func TestCopyAndTrimAreEqual(t *testing.T) {
	t.Parallel()
	ix := build(t, scenario...)

	copied := ix.Copy()
	trimmed := ix.Trim()
	assert.True(t, trimmed.Equal(copied))
	assert.True(t, copied.Equal(ix))

	require.NoError(t, copied.Insert("z", 200, 210))
	assert.False(t, copied.Equal(ix), "copy must be independent")
	assert.Equal(t, len(scenario), ix.Len())
}

func TestEmptyIndexQueries(t *testing.T) {
	t.Parallel()
	var ix Index[string]

	_, ok := ix.RegionAt(0)
	assert.False(t, ok)
	_, _, ok = ix.IndexAndDepthAt(0)
	assert.False(t, ok)
	assert.Empty(t, ix.OutermostKeys())
	assert.Empty(t, ix.KeysAtPoint(0, nil))
	assert.True(t, ix.Trim().Equal(ix.Copy()))
}

func TestLastLessOrEqual(t *testing.T) {
	t.Parallel()
	values := []int{10, 20, 20, 20, 30}

	tests := []struct {
		target int
		want   int
	}{
		{5, -1},
		{10, 0},
		{15, 0},
		{20, 3},
		{25, 3},
		{30, 4},
		{99, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LastLessOrEqual(tt.target, values), "target %d", tt.target)
	}
	assert.Equal(t, -1, LastLessOrEqual(1, nil))
}

func TestFirstGreaterOrEqual(t *testing.T) {
	t.Parallel()
	values := []int{10, 20, 20, 20, 30}

	tests := []struct {
		target int
		want   int
	}{
		{5, 0},
		{10, 0},
		{15, 1},
		{20, 1},
		{25, 4},
		{30, 4},
		{31, -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FirstGreaterOrEqual(tt.target, values), "target %d", tt.target)
	}
	assert.Equal(t, -1, FirstGreaterOrEqual(1, nil))
}

func allRegions(ix *Index[string]) []Region[string] {
	var out []Region[string]
	for _, r := range ix.All() {
		out = append(out, r)
	}
	return out
}

func indexOf(t *testing.T, ix *Index[string], key string) int {
	t.Helper()
	for i, r := range ix.All() {
		if r.Key == key {
			return i
		}
	}
	t.Fatalf("key %q not found", key)
	return -1
}

func isAncestor(ix *Index[string], ancestor, i int) bool {
	for {
		p, ok := ix.Parent(i)
		if !ok {
			return false
		}
		if p.Index == ancestor {
			return true
		}
		i = p.Index
	}
}

func keys(rs []Region[string]) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Key
	}
	return out
}

// nestedSpans generates a random forest of properly nested spans, with some
// identical spans stacked on each other.
func nestedSpans(r *rand.Rand, start, end, depth int, out []span) []span {
	for pos := start; pos < end; {
		width := 1 + r.IntN(min(40, end-pos))
		s := span{key: fmt.Sprint(len(out)), start: pos, end: pos + width}
		out = append(out, s)
		if r.IntN(8) == 0 {
			out = append(out, span{key: fmt.Sprint(len(out)), start: s.start, end: s.end})
		}
		if depth < 4 && width > 2 {
			out = nestedSpans(r, s.start+1, s.end-1, depth+1, out)
		}
		pos += width + r.IntN(3)
	}
	return out
}

// rebuiltLinks derives parents and depths from the ordered entries with a
// single stack pass.
func rebuiltLinks(ix *Index[string]) (parents, depths []int) {
	var stack []int
	for i, e := range ix.entries {
		for len(stack) > 0 && ix.entries[stack[len(stack)-1]].end <= e.start {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			parents = append(parents, -1)
			depths = append(depths, 0)
		} else {
			p := stack[len(stack)-1]
			parents = append(parents, p)
			depths = append(depths, depths[p]+1)
		}
		stack = append(stack, i)
	}
	return parents, depths
}

func TestInsertKeepsLinksInAnyOrder(t *testing.T) {
	t.Parallel()
	for seed := uint64(1); seed <= 20; seed++ {
		r := rand.New(rand.NewPCG(seed, 7))
		spans := nestedSpans(r, 0, 2000, 0, nil)
		r.Shuffle(len(spans), func(i, j int) { spans[i], spans[j] = spans[j], spans[i] })

		ix := build(t, spans...)
		parents, depths := rebuiltLinks(ix)
		require.Equal(t, parents, ix.parents, "seed %d", seed)
		require.Equal(t, depths, ix.depths, "seed %d", seed)
	}
}

func TestInsertRejectsCrossingAtAnyDepth(t *testing.T) {
	t.Parallel()
	ix := build(t,
		span{"outer", 0, 100},
		span{"mid", 10, 90},
		span{"inner", 20, 30},
		span{"late", 60, 80},
		span{"late2", 65, 70},
	)
	for _, bad := range [][2]int{{25, 35}, {5, 105}, {50, 75}, {66, 85}, {15, 66}, {95, 105}} {
		err := ix.Insert("x", bad[0], bad[1])
		assert.ErrorIs(t, err, ErrOverlapViolation, "[%d, %d)", bad[0], bad[1])
	}
	assert.Equal(t, 5, ix.Len())

	require.NoError(t, ix.Insert("wrap", 15, 85))
	assert.Equal(t, []string{"outer", "mid", "wrap", "late", "late2"}, ix.KeysAtPoint(67, nil))
}

func TestInsertInStartOrderScales(t *testing.T) {
	t.Parallel()
	const n = 200_000
	ix := New[string]()
	begin := time.Now()
	for i := 0; i < n; i++ {
		require.NoError(t, ix.Insert("ref", i*10, i*10+5))
		if i%100 == 0 {
			require.NoError(t, ix.Insert("inner", i*10+1, i*10+3))
		}
	}
	elapsed := time.Since(begin)
	assert.Equal(t, n+n/100, ix.Len())
	assert.Less(t, elapsed, 3*time.Second, "in-order inserts should not be quadratic")

	r, ok := ix.RegionAt(1000*10 + 2)
	require.True(t, ok)
	assert.Equal(t, "inner", r.Key)
	assert.Equal(t, 1, r.Depth)
}

func BenchmarkInsertInStartOrder(b *testing.B) {
	for b.Loop() {
		ix := New[int]()
		for i := 0; i < 10_000; i++ {
			_ = ix.Insert(i, i*4, i*4+3)
		}
	}
}
