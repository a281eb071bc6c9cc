// Package extract walks tree-sitter syntax trees and records declarations,
// nested constructs and name mentions into a regions.Table and a construct
// interval index.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/rulegraph/internal/interval"
	"github.com/phobologic/rulegraph/internal/lang"
	"github.com/phobologic/rulegraph/internal/model"
	"github.com/phobologic/rulegraph/internal/regions"
)

// ErrUnsupportedLanguage reports a file whose language has no registration.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Result is everything one pass over a source produced.
type Result struct {
	File    *File
	Table   *regions.Table
	Index   *interval.Index[model.Construct]
	Imports []string
	// Skipped counts declarations dropped as duplicates or nesting errors.
	Skipped int
}

type mention struct {
	name       string
	start, end int
}

type walker struct {
	l        *lang.Language
	src      []byte
	res      *Result
	logger   *slog.Logger
	mentions []mention
}

// Extract parses f and builds its table and construct index. Declarations
// that repeat a name or cross an earlier construct are logged and skipped;
// the rest of the file is still recorded.
func Extract(ctx context.Context, f *File, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l, ok := lang.Languages[f.Lang()]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", f.Name(), ErrUnsupportedLanguage, f.Lang())
	}

	res := &Result{
		File:  f,
		Table: regions.NewTable(f.Name()),
		Index: interval.New[model.Construct](),
	}
	if len(f.Text()) == 0 {
		return res, nil
	}

	src := []byte(f.Text())
	parser := l.NewParser()
	defer parser.Close()
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.Name(), err)
	}
	defer tree.Close()

	w := &walker{l: l, src: src, res: res, logger: logger.With(slog.String("source", f.Name()))}
	w.visit(tree.RootNode())
	w.addReferences()
	return res, nil
}

func (w *walker) visit(node *sitter.Node) {
	start, end := int(node.StartByte()), int(node.EndByte())

	if name, kind, ok := w.l.Declaration(node, w.src); ok {
		w.declare(name, kind, start, end)
	} else if w.l.Block(node) {
		if err := w.res.Index.Insert(model.Construct{Kind: model.Block}, start, end); err != nil {
			w.logger.Debug("skipping block", slog.Int("start", start), slog.Any("error", err))
		}
	}
	if name, ok := w.l.Reference(node, w.src); ok {
		w.mentions = append(w.mentions, mention{name: name, start: start, end: end})
	}
	for _, imp := range w.l.Imports(node, w.src) {
		w.res.Imports = append(w.res.Imports, imp)
		w.res.Table.Register(imp, model.Import)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		w.visit(node.Child(i))
	}
}

func (w *walker) declare(name string, kind model.Kind, start, end int) {
	if _, dup := w.res.Table.Declaration(name); dup {
		w.res.Skipped++
		w.logger.Warn("duplicate declaration skipped", slog.String("name", name), slog.Int("line", w.res.File.Line(start)))
		return
	}
	if err := w.res.Index.Insert(model.Construct{Name: name, Kind: kind}, start, end); err != nil {
		w.res.Skipped++
		w.logger.Warn("declaration skipped", slog.String("name", name), slog.Any("error", err))
		return
	}
	if err := w.res.Table.Declare(name, start, end, kind); err != nil {
		w.res.Skipped++
		w.logger.Warn("declaration skipped", slog.String("name", name), slog.Any("error", err))
	}
}

// addReferences records mentions once every declaration is known, so a
// method mention ("Run") binds to the only method of that name ("Server.Run").
func (w *walker) addReferences() {
	methods := make(map[string][]string)
	for _, d := range w.res.Table.Declarations() {
		if d.Kind != model.Method {
			continue
		}
		if i := strings.LastIndexByte(d.Name, '.'); i >= 0 {
			short := d.Name[i+1:]
			methods[short] = append(methods[short], d.Name)
		}
	}

	for _, m := range w.mentions {
		name := m.name
		if _, declared := w.res.Table.Declaration(name); !declared {
			if qualified := methods[name]; len(qualified) == 1 {
				name = qualified[0]
			}
		}
		if err := w.res.Table.AddReference(name, m.start, m.end); err != nil {
			w.logger.Debug("reference skipped", slog.String("name", name), slog.Any("error", err))
		}
	}
}
