package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/rulegraph/internal/cache"
	"github.com/phobologic/rulegraph/internal/config"
	"github.com/phobologic/rulegraph/internal/discover"
	"github.com/phobologic/rulegraph/internal/extract"
	"github.com/phobologic/rulegraph/internal/graph"
	"github.com/phobologic/rulegraph/internal/interval"
	"github.com/phobologic/rulegraph/internal/model"
	"github.com/phobologic/rulegraph/internal/ranking"
	"github.com/phobologic/rulegraph/internal/regions"
)

// sourceState tracks one file through the pipeline.
type sourceState struct {
	file   *extract.File
	result *extract.Result // nil until extracted
	failed bool

	imports   []string
	ambiguous map[string][]string
	index     *interval.Index[model.Construct]
	graph     *graph.Graph
	cached    bool
}

func (s *sourceState) done() bool { return s.graph != nil }

type analysis struct {
	root    string
	cfg     *config.Config
	logger  *slog.Logger
	set     *extract.Set
	sources []*sourceState // sorted by path
	byPath  map[string]*sourceState
}

// analyze discovers, extracts, resolves and graphs every source under root,
// reusing cache entries whose source and dependency texts are unchanged.
func analyze(ctx context.Context, root string, cfg *config.Config, logger *slog.Logger) (*analysis, error) {
	entries, err := discover.Files(root, discover.Options{
		Languages:   cfg.Languages,
		MaxFileSize: cfg.MaxFileSize,
		SkipTests:   cfg.SkipTests,
	})
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}

	a := &analysis{
		root:   root,
		cfg:    cfg,
		logger: logger,
		set:    extract.NewSet(),
		byPath: make(map[string]*sourceState, len(entries)),
	}
	for _, fe := range entries {
		text, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(fe.Path)))
		if err != nil {
			logger.Warn("skipping unreadable file", slog.String("source", fe.Path), slog.Any("error", err))
			continue
		}
		a.set.Add(fe.Path, fe.Language, string(text))
	}
	for _, f := range a.set.Files() {
		s := &sourceState{file: f}
		a.sources = append(a.sources, s)
		a.byPath[f.Name()] = s
	}
	if len(a.sources) == 0 {
		return nil, errors.New("no extractable source files found")
	}

	if cfg.Cache.Enabled {
		a.loadCached()
	}

	var misses []*sourceState
	for _, s := range a.sources {
		if !s.done() {
			misses = append(misses, s)
		}
	}
	if err := a.extractAll(ctx, misses); err != nil {
		return nil, err
	}

	// Misses need the tables of their dependencies, cached or not.
	var deps []*sourceState
	seen := make(map[*sourceState]bool)
	for _, s := range misses {
		if s.failed {
			continue
		}
		for _, p := range a.set.Dependencies(s.file, s.result.Imports) {
			d := a.byPath[p]
			if d != nil && d.result == nil && !d.failed && !seen[d] {
				seen[d] = true
				deps = append(deps, d)
			}
		}
	}
	if err := a.extractAll(ctx, deps); err != nil {
		return nil, err
	}

	tables := make(map[string]*regions.Table)
	for _, s := range a.sources {
		if s.result != nil {
			tables[s.file.Name()] = s.result.Table
		}
	}
	for _, s := range misses {
		if s.failed {
			continue
		}
		if err := a.link(ctx, s, tables); err != nil {
			return nil, err
		}
	}

	kept := a.sources[:0]
	for _, s := range a.sources {
		if s.done() {
			kept = append(kept, s)
		} else {
			delete(a.byPath, s.file.Name())
		}
	}
	a.sources = kept
	return a, nil
}

func (a *analysis) cacheDir() string {
	if filepath.IsAbs(a.cfg.Cache.Dir) {
		return a.cfg.Cache.Dir
	}
	return filepath.Join(a.root, a.cfg.Cache.Dir)
}

// hash digests s together with the texts of the sources it depends on.
func (a *analysis) hash(s *sourceState, deps []string) uint64 {
	siblings := make(map[string]string, len(deps))
	for _, p := range deps {
		if f, ok := a.set.File(p); ok {
			siblings[p] = f.Text()
		}
	}
	return cache.HashSources(s.file.Text(), siblings)
}

func (a *analysis) loadCached() {
	dir := a.cacheDir()
	for _, s := range a.sources {
		name := s.file.Name()
		e, err := cache.Load(cache.PathFor(dir, name), func(imports []string) uint64 {
			return a.hash(s, a.set.Dependencies(s.file, imports))
		})
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case errors.Is(err, cache.ErrStale):
			a.logger.Debug("cache entry stale", slog.String("source", name))
			continue
		case err != nil:
			a.logger.Debug("ignoring cache entry", slog.String("source", name), slog.Any("error", err))
			continue
		}
		s.imports, s.ambiguous, s.index, s.graph, s.cached = e.Imports, e.Ambiguous, e.Index, e.Graph, true
	}
}

func (a *analysis) parallelism() int {
	if n := a.cfg.Resolve.Parallelism; n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

// extractAll parses the given sources concurrently. A source that fails to
// parse is logged and dropped; only cancellation aborts the run.
func (a *analysis) extractAll(ctx context.Context, sources []*sourceState) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism())
	for _, s := range sources {
		g.Go(func() error {
			res, err := extract.Extract(ctx, s.file, a.logger)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				a.logger.Warn("skipping source", slog.String("source", s.file.Name()), slog.Any("error", err))
				s.failed = true
				return nil
			}
			if res.Skipped > 0 {
				a.logger.Debug("declarations skipped", slog.String("source", s.file.Name()), slog.Int("count", res.Skipped))
			}
			s.result = res
			return nil
		})
	}
	return g.Wait()
}

// link resolves s against its dependencies, builds its graph and refreshes
// its cache entry.
func (a *analysis) link(ctx context.Context, s *sourceState, tables map[string]*regions.Table) error {
	deps := a.set.Dependencies(s.file, s.result.Imports)
	res, err := regions.Resolve(ctx, s.result.Table, regions.SiblingsFor(s.file, deps, tables),
		regions.WithLogger(a.logger),
		regions.WithParallelism(a.parallelism()))
	if err != nil {
		return fmt.Errorf("resolving %s: %w", s.file.Name(), err)
	}
	for _, name := range res.Unresolved() {
		a.logger.Debug("unresolved name", slog.String("source", s.file.Name()), slog.String("name", name))
	}

	s.imports = s.result.Imports
	s.ambiguous = res.Ambiguous()
	s.index = s.result.Index
	s.graph = graph.Build(s.result.Table, res)

	if !a.cfg.Cache.Enabled {
		return nil
	}
	entry := &cache.Entry{
		SourceHash: a.hash(s, deps),
		Imports:    s.imports,
		Ambiguous:  s.ambiguous,
		Index:      s.index,
		Graph:      s.graph,
	}
	if err := cache.Save(cache.PathFor(a.cacheDir(), s.file.Name()), entry); err != nil {
		a.logger.Warn("cache write failed", slog.String("source", s.file.Name()), slog.Any("error", err))
	}
	return nil
}

func (a *analysis) ranker(g *graph.Graph) *ranking.Ranker {
	return ranking.New(g, ranking.Options{
		Damping:       a.cfg.Ranking.Damping,
		MaxIterations: a.cfg.Ranking.MaxIterations,
		Tolerance:     a.cfg.Ranking.Tolerance,
	})
}

func (a *analysis) scores(r *ranking.Ranker) []ranking.Score {
	if a.cfg.Ranking.Algorithm == config.Eigenvector {
		return r.EigenvectorCentrality()
	}
	return r.PageRank()
}

// declarations maps each named construct of s to its kind and 1-based line.
func declarations(s *sourceState) map[string]model.Entity {
	out := make(map[string]model.Entity)
	for _, r := range s.index.All() {
		if r.Key.Name == "" {
			continue
		}
		out[r.Key.Name] = model.Entity{Kind: r.Key.Kind, Line: s.file.Line(r.Start)}
	}
	return out
}

// report ranks every source's graph and collects the per-source tables.
func (a *analysis) report() *model.Report {
	rep := &model.Report{Root: a.root, Algorithm: a.cfg.Ranking.Algorithm}
	for _, s := range a.sources {
		path := s.file.Name()
		g := s.graph
		r := a.ranker(g)
		scores := a.scores(r)
		decls := declarations(s)

		local := 0
		for _, sc := range scores {
			if _, foreign := g.Source(sc.Name); foreign {
				continue
			}
			local++
			e := decls[sc.Name]
			e.Source = path
			e.Name = sc.Name
			e.Inbound = g.InboundReferenceCount(sc.Name)
			e.Outbound = g.OutboundReferenceCount(sc.Name)
			e.Closure = g.ClosureSize(sc.Name)
			e.Score = sc.Score
			rep.Entities = append(rep.Entities, e)
		}

		for _, from := range g.Names() {
			if _, foreign := g.Source(from); foreign {
				continue
			}
			for _, to := range g.Children(from) {
				via, _ := g.Source(to)
				rep.Edges = append(rep.Edges, model.Edge{Source: path, From: from, To: to, Via: via})
			}
		}

		for _, name := range r.DisjunctionOfClosureOfMostCentralNodes(scores, a.cfg.Ranking.CoreK) {
			rep.Core = append(rep.Core, a.member(g, path, name))
		}
		for _, name := range r.DisjointItems() {
			rep.Disjoint = append(rep.Disjoint, a.member(g, path, name))
		}
		rep.Ambiguous = append(rep.Ambiguous, ambiguities(path, s.ambiguous)...)

		rep.Sources = append(rep.Sources, model.SourceSummary{
			Path:     path,
			Language: s.file.Lang(),
			Entities: local,
			Edges:    g.EdgeCount(),
			Cached:   s.cached,
		})
	}
	return rep
}

// ambiguities lists the names of path that several siblings declare, sorted
// by name.
func ambiguities(path string, declared map[string][]string) []model.Ambiguity {
	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]model.Ambiguity, 0, len(names))
	for _, name := range names {
		c := declared[name]
		if len(c) == 0 {
			continue
		}
		out = append(out, model.Ambiguity{Source: path, Name: name, Chosen: c[0], Candidates: c})
	}
	return out
}

// member attributes name to the source declaring it.
func (a *analysis) member(g *graph.Graph, path, name string) model.Member {
	if src, ok := g.Source(name); ok {
		return model.Member{Source: src, Name: name}
	}
	return model.Member{Source: path, Name: name}
}

// closure answers a reachability query for name within source path. A
// non-empty kinds keeps only members declared as one of those kinds.
func (a *analysis) closure(path, name string, reverse bool, kinds []model.Kind) (*model.Closure, error) {
	s, ok := a.byPath[path]
	if !ok {
		return nil, fmt.Errorf("%s: source not analyzed", path)
	}
	g := s.graph
	if g.IndexOf(name) < 0 {
		return nil, fmt.Errorf("%s: no entity named %q", path, name)
	}

	names := g.ClosureOf(name)
	if reverse {
		names = g.ReverseClosureOf(name)
	}
	sort.Strings(names)

	c := &model.Closure{Source: path, Name: name, Reverse: reverse}
	decls := make(map[string]map[string]model.Entity)
	for _, n := range names {
		m := a.member(g, path, n)
		if len(kinds) > 0 {
			d, ok := decls[m.Source]
			if !ok {
				if src := a.byPath[m.Source]; src != nil {
					d = declarations(src)
				}
				decls[m.Source] = d
			}
			if !slices.Contains(kinds, d[m.Name].Kind) {
				continue
			}
		}
		c.Members = append(c.Members, m)
	}
	return c, nil
}
