// Package ranking scores graph nodes by centrality and groups them into
// weakly connected components.
package ranking

import (
	"math"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/phobologic/rulegraph/internal/graph"
)

// Score is one node's centrality.
type Score struct {
	Name  string
	Score float64
}

// Options tunes the power iterations.
type Options struct {
	Damping       float64 // PageRank damping factor
	MaxIterations int
	Tolerance     float64 // convergence threshold on the per-iteration delta
}

// DefaultOptions returns the damping, iteration cap and tolerance used when a
// field of Options is left zero.
func DefaultOptions() Options {
	return Options{Damping: 0.85, MaxIterations: 100, Tolerance: 1e-6}
}

// Ranker computes centrality over a finished graph. It keeps only derived,
// read-only state and can be shared between goroutines.
type Ranker struct {
	g    *graph.Graph
	opts Options
	succ [][]int
}

// New prepares a ranker for g.
func New(g *graph.Graph, opts Options) *Ranker {
	def := DefaultOptions()
	if opts.Damping <= 0 || opts.Damping >= 1 {
		opts.Damping = def.Damping
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}

	succ := make([][]int, g.Len())
	for i := range succ {
		row := g.Successors(i)
		for j, ok := row.NextSet(0); ok; j, ok = row.NextSet(j + 1) {
			succ[i] = append(succ[i], int(j))
		}
	}
	return &Ranker{g: g, opts: opts, succ: succ}
}

// PageRank distributes each node's score evenly along its outgoing edges with
// uniform teleportation; dangling nodes spread their score over every node.
// Scores sum to 1. A node ranks high when important nodes refer to it.
func (r *Ranker) PageRank() []Score {
	n := len(r.succ)
	if n == 0 {
		return nil
	}

	alpha := r.opts.Damping
	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}
	teleport := (1.0 - alpha) / float64(n)
	next := make([]float64, n)

	for iter := 0; iter < r.opts.MaxIterations; iter++ {
		// Dangling node contribution (nodes with no outgoing edges)
		var danglingSum float64
		for i, targets := range r.succ {
			if len(targets) == 0 {
				danglingSum += rank[i]
			}
		}
		base := teleport + alpha*danglingSum/float64(n)
		for i := range next {
			next[i] = base
		}

		for src, targets := range r.succ {
			if len(targets) == 0 {
				continue
			}
			contrib := alpha * rank[src] / float64(len(targets))
			for _, tgt := range targets {
				next[tgt] += contrib
			}
		}

		var diff float64
		for i := range rank {
			diff += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		if diff < r.opts.Tolerance {
			break
		}
	}
	return r.scores(rank)
}

// EigenvectorCentrality iterates x <- (I + A) x over the successor matrix A,
// so a node ranks high when it reaches important nodes. The identity shift
// keeps acyclic graphs from collapsing to zero. Scores are scaled so the
// highest is 1.
func (r *Ranker) EigenvectorCentrality() []Score {
	n := len(r.succ)
	if n == 0 {
		return nil
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = 1
	}
	next := make([]float64, n)

	for iter := 0; iter < r.opts.MaxIterations; iter++ {
		var peak float64
		for i, targets := range r.succ {
			sum := x[i]
			for _, j := range targets {
				sum += x[j]
			}
			next[i] = sum
			peak = math.Max(peak, sum)
		}

		var delta float64
		for i := range next {
			next[i] /= peak
			delta = math.Max(delta, math.Abs(next[i]-x[i]))
		}
		x, next = next, x
		if delta < r.opts.Tolerance {
			break
		}
	}
	return r.scores(x)
}

// scores pairs values with node names, highest first, ties by name.
func (r *Ranker) scores(values []float64) []Score {
	out := make([]Score, len(values))
	for i, v := range values {
		out[i] = Score{Name: r.g.Name(i), Score: v}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// DisjointComponents partitions the nodes into weakly connected components,
// treating edges as undirected. Components are ordered largest first, then by
// their first name; names within a component are sorted.
func (r *Ranker) DisjointComponents() [][]string {
	n := len(r.succ)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i, targets := range r.succ {
		for _, j := range targets {
			a, b := find(i), find(j)
			if a != b {
				parent[a] = b
			}
		}
	}

	groups := make(map[int][]string)
	for i := range parent {
		root := find(i)
		groups[root] = append(groups[root], r.g.Name(i))
	}
	out := make([][]string, 0, len(groups))
	for _, names := range groups {
		sort.Strings(names)
		out = append(out, names)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i][0] < out[j][0]
	})
	return out
}

// DisjointItems returns the nodes outside the main body of the graph, sorted.
// The main body is the largest component when it has more than one node;
// in a graph without edges every node is disjoint.
func (r *Ranker) DisjointItems() []string {
	comps := r.DisjointComponents()
	if len(comps) == 0 {
		return nil
	}
	start := 0
	if len(comps[0]) > 1 {
		start = 1
	}
	var out []string
	for _, c := range comps[start:] {
		out = append(out, c...)
	}
	sort.Strings(out)
	return out
}

// DisjunctionOfClosureOfMostCentralNodes takes the first k entries of scores
// and returns those nodes together with everything they reach, sorted. It
// approximates the core vocabulary of a grammar.
func (r *Ranker) DisjunctionOfClosureOfMostCentralNodes(scores []Score, k int) []string {
	if k <= 0 || len(scores) == 0 {
		return nil
	}
	k = min(k, len(scores))

	union := bitset.New(uint(r.g.Len()))
	for _, s := range scores[:k] {
		i := r.g.IndexOf(s.Name)
		if i < 0 {
			continue
		}
		union.Set(uint(i))
		union.InPlaceUnion(r.g.Closure(i))
	}

	out := make([]string, 0, union.Count())
	for j, ok := union.NextSet(0); ok; j, ok = union.NextSet(j + 1) {
		out = append(out, r.g.Name(int(j)))
	}
	sort.Strings(out)
	return out
}
