// Package graph builds the reference graph between declared names and answers
// reachability questions over it.
//
// Nodes are held in a slice and edges as one successor bitset per node. The
// forward and reverse transitive closures are computed once at build time, so
// a Graph is immutable and safe for concurrent readers.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/phobologic/rulegraph/internal/regions"
)

var (
	// ErrUnknownNode reports an edge that names a node not in the node list.
	ErrUnknownNode = errors.New("unknown node")
	// ErrDuplicateNode reports a node list containing the same name twice.
	ErrDuplicateNode = errors.New("duplicate node")
	// ErrShape reports adjacency data that does not match the node count.
	ErrShape = errors.New("adjacency shape mismatch")
)

// Graph is a directed graph where an edge A -> B means A's declaration
// mentions B.
type Graph struct {
	names   []string
	sources []string
	index   map[string]int
	out     []*bitset.BitSet
	in      []*bitset.BitSet
	closure []*bitset.BitSet
	reverse []*bitset.BitSet
}

// Build creates the graph for one table. Every declared name becomes a node;
// names bound by res to a sibling source become nodes tagged with that source.
// A reference adds an edge from each declaration whose span holds it to the
// referenced node. Self references are dropped.
func Build(t *regions.Table, res *regions.Resolution) *Graph {
	local := t.Names()
	foreign := make(map[string]string)
	for _, name := range t.Unknown() {
		if f, ok := res.Foreign(name); ok {
			foreign[name] = f.SourceID
		}
	}

	names := make([]string, 0, len(local)+len(foreign))
	names = append(names, local...)
	for name := range foreign {
		names = append(names, name)
	}
	sort.Strings(names)

	sources := make([]string, len(names))
	for i, name := range names {
		sources[i] = foreign[name]
	}

	g := newGraph(names, sources)
	var enclosing []string
	for ref := range t.AllReferences() {
		target, ok := g.index[ref.Name]
		if !ok {
			continue
		}
		enclosing = t.EnclosingDeclarations(ref.Start, enclosing[:0])
		for _, owner := range enclosing {
			decl, _ := t.Declaration(owner)
			if ref.End > decl.End {
				continue
			}
			if src := g.index[owner]; src != target {
				g.out[src].Set(uint(target))
			}
		}
	}
	g.finish()
	return g
}

// FromEdges creates a graph over names with the given (from, to) edges.
// Node order follows names. Self edges are dropped.
func FromEdges(names []string, edges [][2]string) (*Graph, error) {
	g, err := validated(names, nil)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		from, ok := g.index[e[0]]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, e[0])
		}
		to, ok := g.index[e[1]]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, e[1])
		}
		if from != to {
			g.out[from].Set(uint(to))
		}
	}
	g.finish()
	return g, nil
}

// FromAdjacency recreates a graph from its node list, per-node source ids
// (empty for local nodes, nil for all local) and successor bitsets.
func FromAdjacency(names, sources []string, adjacency []*bitset.BitSet) (*Graph, error) {
	if len(adjacency) != len(names) {
		return nil, fmt.Errorf("%w: %d nodes, %d adjacency rows", ErrShape, len(names), len(adjacency))
	}
	g, err := validated(names, sources)
	if err != nil {
		return nil, err
	}
	n := uint(len(names))
	for i, row := range adjacency {
		if row == nil {
			continue
		}
		for j, ok := row.NextSet(0); ok; j, ok = row.NextSet(j + 1) {
			if j >= n {
				return nil, fmt.Errorf("%w: node %d has edge to %d of %d", ErrShape, i, j, n)
			}
			if j != uint(i) {
				g.out[i].Set(j)
			}
		}
	}
	g.finish()
	return g, nil
}

func validated(names, sources []string) (*Graph, error) {
	if sources == nil {
		sources = make([]string, len(names))
	}
	if len(sources) != len(names) {
		return nil, fmt.Errorf("%w: %d nodes, %d sources", ErrShape, len(names), len(sources))
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateNode, name)
		}
		seen[name] = struct{}{}
	}
	return newGraph(append([]string(nil), names...), append([]string(nil), sources...)), nil
}

func newGraph(names, sources []string) *Graph {
	n := uint(len(names))
	g := &Graph{
		names:   names,
		sources: sources,
		index:   make(map[string]int, len(names)),
		out:     make([]*bitset.BitSet, len(names)),
	}
	for i, name := range names {
		g.index[name] = i
		g.out[i] = bitset.New(n)
	}
	return g
}

func (g *Graph) finish() {
	n := uint(len(g.names))
	g.in = make([]*bitset.BitSet, len(g.names))
	for i := range g.in {
		g.in[i] = bitset.New(n)
	}
	for i, row := range g.out {
		for j, ok := row.NextSet(0); ok; j, ok = row.NextSet(j + 1) {
			g.in[j].Set(uint(i))
		}
	}
	g.closure = transitiveClosure(g.out)
	g.reverse = transitiveClosure(g.in)
}

// transitiveClosure ORs each node's neighbor rows into its own row until the
// row stops growing. Rows only gain bits, so this terminates.
func transitiveClosure(adj []*bitset.BitSet) []*bitset.BitSet {
	out := make([]*bitset.BitSet, len(adj))
	for i, row := range adj {
		c := row.Clone()
		for {
			before := c.Count()
			for j, ok := c.NextSet(0); ok; j, ok = c.NextSet(j + 1) {
				c.InPlaceUnion(adj[j])
			}
			if c.Count() == before {
				break
			}
		}
		out[i] = c
	}
	return out
}

// Len returns the node count.
func (g *Graph) Len() int {
	return len(g.names)
}

// Names returns the node names in node order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.names...)
}

// Name returns the name of node i.
func (g *Graph) Name(i int) string {
	return g.names[i]
}

// IndexOf returns the node index of name, or -1.
func (g *Graph) IndexOf(name string) int {
	if i, ok := g.index[name]; ok {
		return i
	}
	return -1
}

// Source returns the sibling source a foreign node was resolved from. Local
// nodes report false.
func (g *Graph) Source(name string) (string, bool) {
	i, ok := g.index[name]
	if !ok || g.sources[i] == "" {
		return "", false
	}
	return g.sources[i], true
}

// Sources returns the per-node source ids in node order; local nodes have "".
func (g *Graph) Sources() []string {
	return append([]string(nil), g.sources...)
}

// Successors returns a copy of node i's successor bitset.
func (g *Graph) Successors(i int) *bitset.BitSet {
	return g.out[i].Clone()
}

// Predecessors returns a copy of node i's predecessor bitset.
func (g *Graph) Predecessors(i int) *bitset.BitSet {
	return g.in[i].Clone()
}

// Closure returns a copy of node i's forward closure bitset.
func (g *Graph) Closure(i int) *bitset.BitSet {
	return g.closure[i].Clone()
}

func (g *Graph) namesOf(set *bitset.BitSet) []string {
	out := make([]string, 0, set.Count())
	for j, ok := set.NextSet(0); ok; j, ok = set.NextSet(j + 1) {
		out = append(out, g.names[j])
	}
	sort.Strings(out)
	return out
}

func (g *Graph) query(rows []*bitset.BitSet, name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.namesOf(rows[i])
}

func (g *Graph) count(rows []*bitset.BitSet, name string) int {
	i, ok := g.index[name]
	if !ok {
		return 0
	}
	return int(rows[i].Count())
}

// Children returns the names name refers to directly, sorted.
func (g *Graph) Children(name string) []string { return g.query(g.out, name) }

// Parents returns the names that refer to name directly, sorted.
func (g *Graph) Parents(name string) []string { return g.query(g.in, name) }

// ClosureOf returns every name reachable from name, sorted. name itself is
// included only when it sits on a cycle.
func (g *Graph) ClosureOf(name string) []string { return g.query(g.closure, name) }

// ReverseClosureOf returns every name from which name is reachable, sorted.
func (g *Graph) ReverseClosureOf(name string) []string { return g.query(g.reverse, name) }

// ClosureSize returns len(ClosureOf(name)).
func (g *Graph) ClosureSize(name string) int { return g.count(g.closure, name) }

// ReverseClosureSize returns len(ReverseClosureOf(name)).
func (g *Graph) ReverseClosureSize(name string) int { return g.count(g.reverse, name) }

// InboundReferenceCount returns the number of direct predecessors.
func (g *Graph) InboundReferenceCount(name string) int { return g.count(g.in, name) }

// OutboundReferenceCount returns the number of direct successors.
func (g *Graph) OutboundReferenceCount(name string) int { return g.count(g.out, name) }

// TopLevelOrOrphanNodes returns the names nothing refers to, sorted. Nodes
// with outgoing edges only are included.
func (g *Graph) TopLevelOrOrphanNodes() []string {
	var out []string
	for i, row := range g.in {
		if row.None() {
			out = append(out, g.names[i])
		}
	}
	sort.Strings(out)
	return out
}

// Orphans returns the names with no edges in either direction, sorted.
func (g *Graph) Orphans() []string {
	var out []string
	for i := range g.names {
		if g.in[i].None() && g.out[i].None() {
			out = append(out, g.names[i])
		}
	}
	sort.Strings(out)
	return out
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	var n int
	for _, row := range g.out {
		n += int(row.Count())
	}
	return n
}

// EdgeStrings lists every edge as "from -> to", ordered by source name then
// target name. Two graphs with the same relationships produce the same list.
func (g *Graph) EdgeStrings() []string {
	order := g.Names()
	sort.Strings(order)
	var out []string
	for _, from := range order {
		for _, to := range g.Children(from) {
			out = append(out, from+" -> "+to)
		}
	}
	return out
}

// Equal reports whether both graphs have the same nodes in the same order,
// the same sources and the same edges.
func (g *Graph) Equal(other *Graph) bool {
	if g == nil || other == nil {
		return g == other
	}
	if len(g.names) != len(other.names) {
		return false
	}
	for i := range g.names {
		if g.names[i] != other.names[i] || g.sources[i] != other.sources[i] {
			return false
		}
		if !g.out[i].Equal(other.out[i]) {
			return false
		}
	}
	return true
}
