package regions

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/rulegraph/internal/model"
)

// Sibling is another source's table consulted for names the local table
// references but does not declare.
type Sibling struct {
	SourceID string
	Table    *Table
}

// ForeignReference binds a locally undeclared name to its declaration in a
// sibling source.
type ForeignReference struct {
	Name        string
	SourceID    string
	Declaration NamedRegion
}

// Resolution is the outcome of resolving one table's unknown names.
type Resolution struct {
	foreign    map[string]ForeignReference
	unresolved []string
	ambiguous  map[string][]string
}

// Foreign returns the binding for name, if it was resolved.
func (r *Resolution) Foreign(name string) (ForeignReference, bool) {
	if r == nil {
		return ForeignReference{}, false
	}
	f, ok := r.foreign[name]
	return f, ok
}

// Resolved returns every binding keyed by name.
func (r *Resolution) Resolved() map[string]ForeignReference {
	if r == nil {
		return nil
	}
	out := make(map[string]ForeignReference, len(r.foreign))
	for k, v := range r.foreign {
		out[k] = v
	}
	return out
}

// Unresolved returns the names no sibling declares, sorted.
func (r *Resolution) Unresolved() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.unresolved...)
}

// Ambiguous returns, for each name declared by more than one sibling, every
// declaring source in sibling order. The first entry is the one that won.
func (r *Resolution) Ambiguous() map[string][]string {
	if r == nil {
		return nil
	}
	out := make(map[string][]string, len(r.ambiguous))
	for k, v := range r.ambiguous {
		out[k] = append([]string(nil), v...)
	}
	return out
}

type resolveConfig struct {
	logger      *slog.Logger
	parallelism int
}

// ResolveOption configures Resolve.
type ResolveOption func(*resolveConfig)

// WithLogger sets the logger that receives ambiguity warnings.
func WithLogger(l *slog.Logger) ResolveOption {
	return func(c *resolveConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithParallelism bounds how many names are looked up concurrently.
func WithParallelism(n int) ResolveOption {
	return func(c *resolveConfig) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

type lookup struct {
	hit      ForeignReference
	found    bool
	declared []string
}

// Resolve looks up every unknown name of t in siblings. The first sibling
// that declares a name wins; later declarations are recorded as ambiguous and
// logged but never merged. Sibling tables are only read, so lookups run
// concurrently. The context only cancels the fan-out.
func Resolve(ctx context.Context, t *Table, siblings []Sibling, opts ...ResolveOption) (*Resolution, error) {
	cfg := resolveConfig{logger: slog.Default(), parallelism: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&cfg)
	}

	names := t.Unknown()
	results := make([]lookup, len(names))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.parallelism)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = lookupName(name, siblings)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Resolution{
		foreign:   make(map[string]ForeignReference),
		ambiguous: make(map[string][]string),
	}
	for i, name := range names {
		r := results[i]
		if !r.found {
			res.unresolved = append(res.unresolved, name)
			continue
		}
		res.foreign[name] = r.hit
		if len(r.declared) > 1 {
			res.ambiguous[name] = r.declared
			cfg.logger.Warn("name declared by several sources, first wins",
				slog.String("source", t.SourceID()),
				slog.String("name", name),
				slog.String("chosen", r.declared[0]),
				slog.Any("candidates", r.declared))
		}
	}
	return res, nil
}

func lookupName(name string, siblings []Sibling) lookup {
	var r lookup
	for _, s := range siblings {
		if s.Table == nil {
			continue
		}
		decl, ok := s.Table.Declaration(name)
		if !ok {
			continue
		}
		if !r.found {
			r.hit = ForeignReference{Name: name, SourceID: s.SourceID, Declaration: decl}
			r.found = true
		}
		r.declared = append(r.declared, s.SourceID)
	}
	return r
}

// SiblingsFor maps the imports of src to the tables built for the sources
// they resolve to. Imports that do not resolve, or whose source has no table,
// are skipped. Order follows imports.
func SiblingsFor(src model.Source, imports []string, tables map[string]*Table) []Sibling {
	var out []Sibling
	seen := make(map[string]struct{})
	for _, imp := range imports {
		target, ok := src.ResolveImport(imp)
		if !ok {
			continue
		}
		id := target.Name()
		if _, dup := seen[id]; dup {
			continue
		}
		t, ok := tables[id]
		if !ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, Sibling{SourceID: id, Table: t})
	}
	return out
}
