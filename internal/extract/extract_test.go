package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/rulegraph/internal/graph"
	"github.com/phobologic/rulegraph/internal/model"
	"github.com/phobologic/rulegraph/internal/regions"
)

const serverGo = `package server

import "example.com/app/store"

type Server struct{ db *store.DB }

func (s *Server) Run() {
	s.handle()
	go func() { s.handle() }()
}

func (s *Server) handle() { store.Open() }

func New() *Server { return &Server{} }
`

func extractOne(t *testing.T, path, langName, text string) *Result {
	t.Helper()
	set := NewSet()
	f := set.Add(path, langName, text)
	res, err := Extract(context.Background(), f, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	return res
}

func TestExtractGoDeclarations(t *testing.T) {
	t.Parallel()
	res := extractOne(t, "server/server.go", "go", serverGo)

	assert.Equal(t, []string{"New", "Server", "Server.Run", "Server.handle"}, res.Table.Names())
	kind, ok := res.Table.Kind("Server.Run")
	require.True(t, ok)
	assert.Equal(t, model.Method, kind)

	run, ok := res.Table.Declaration("Server.Run")
	require.True(t, ok)
	assert.Equal(t, 7, res.File.Line(run.Start))
	assert.True(t, strings.HasPrefix(serverGo[run.Start:run.End], "func (s *Server) Run()"))

	assert.Equal(t, []string{"example.com/app/store"}, res.Imports)
	assert.Contains(t, res.Table.Secondary(), "example.com/app/store")
	assert.Zero(t, res.Skipped)
}

func TestExtractGoConstructIndex(t *testing.T) {
	t.Parallel()
	res := extractOne(t, "server/server.go", "go", serverGo)

	lit := strings.Index(serverGo, "go func()") + len("go ")
	keys := res.Index.KeysAtPoint(lit+2, nil)
	require.Len(t, keys, 2)
	assert.Equal(t, model.Construct{Name: "Server.Run", Kind: model.Method}, keys[0])
	assert.Equal(t, model.Construct{Kind: model.Block}, keys[1])

	var outer []string
	for _, k := range res.Index.OutermostKeys() {
		outer = append(outer, k.Name)
	}
	assert.Equal(t, []string{"Server", "Server.Run", "Server.handle", "New"}, outer)
}

func TestExtractQualifiesMethodMentions(t *testing.T) {
	t.Parallel()
	res := extractOne(t, "server/server.go", "go", serverGo)

	handle := res.Table.References("Server.handle")
	require.Len(t, handle, 2)
	assert.Equal(t, "handle", serverGo[handle[0].Start:handle[0].End])
	assert.Less(t, handle[0].Start, handle[1].Start)

	assert.Equal(t, 4, res.Table.ReferenceCount("Server"))
	assert.Contains(t, res.Table.Unknown(), "Open")
	assert.Contains(t, res.Table.Unknown(), "DB")

	g := graph.Build(res.Table, nil)
	assert.Equal(t, []string{"Server", "Server.handle"}, g.Children("Server.Run"))
	assert.ElementsMatch(t, []string{"Server", "Server.handle"}, g.ClosureOf("Server.Run"))
	assert.Equal(t, []string{"Server"}, g.Children("New"))
	assert.Equal(t, []string{"New", "Server.Run"}, g.TopLevelOrOrphanNodes())
}

func TestExtractPython(t *testing.T) {
	t.Parallel()
	src := `from util import helper

class Base:
    def base(self):
        pass

class Child(Base):
    def run(self):
        self.base()
        return helper()

def main():
    Child().run()
`
	res := extractOne(t, "app/main.py", "python", src)

	assert.Equal(t, []string{"Base", "Base.base", "Child", "Child.run", "main"}, res.Table.Names())
	assert.Equal(t, []string{"helper"}, res.Table.Unknown())

	g := graph.Build(res.Table, nil)
	assert.ElementsMatch(t, []string{"Base", "Base.base"}, g.Children("Child"))
	assert.Equal(t, []string{"Base.base"}, g.Children("Child.run"))
	assert.ElementsMatch(t, []string{"Child", "Child.run"}, g.Children("main"))
}

func TestExtractDuplicateDeclarationIsLogged(t *testing.T) {
	t.Parallel()
	src := "package p\n\nfunc init() {}\n\nfunc init() {}\n"

	var logs bytes.Buffer
	f := NewSet().Add("p/p.go", "go", src)
	res, err := Extract(context.Background(), f, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"init"}, res.Table.Names())
	decl, _ := res.Table.Declaration("init")
	assert.Equal(t, 3, f.Line(decl.Start))
	assert.Contains(t, logs.String(), "duplicate declaration skipped")
	assert.Contains(t, logs.String(), "line=5")
}

func TestExtractEmptyAndUnsupported(t *testing.T) {
	t.Parallel()

	res := extractOne(t, "empty.py", "python", "")
	assert.Zero(t, res.Index.Len())
	assert.Empty(t, res.Table.Names())

	_, err := Extract(context.Background(), NewSet().Add("x.rb", "ruby", "def x; end"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestExtractResolvesAcrossPackageFiles(t *testing.T) {
	t.Parallel()
	set := NewSet()
	a := set.Add("svc/a.go", "go", "package svc\n\nfunc A() { B() }\n")
	b := set.Add("svc/b.go", "go", "package svc\n\nfunc B() {}\n")

	ctx := context.Background()
	ra, err := Extract(ctx, a, nil)
	require.NoError(t, err)
	rb, err := Extract(ctx, b, nil)
	require.NoError(t, err)

	deps := set.Dependencies(a, ra.Imports)
	assert.Equal(t, []string{"svc/b.go"}, deps)

	tables := map[string]*regions.Table{a.Name(): ra.Table, b.Name(): rb.Table}
	res, err := regions.Resolve(ctx, ra.Table, regions.SiblingsFor(a, deps, tables))
	require.NoError(t, err)

	g := graph.Build(ra.Table, res)
	assert.Equal(t, []string{"B"}, g.Children("A"))
	src, ok := g.Source("B")
	assert.True(t, ok)
	assert.Equal(t, "svc/b.go", src)
}

func TestExtractManySourcesConcurrently(t *testing.T) {
	t.Parallel()
	set := NewSet()
	var files []*File
	for i := 0; i < 64; i++ {
		files = append(files, set.Add(fmt.Sprintf("server/s%02d.go", i), "go", serverGo))
	}

	ctx := context.Background()
	g, ctx := errgroup.WithContext(ctx)
	results := make([]*Result, len(files))
	for i, f := range files {
		g.Go(func() error {
			for range 8 {
				res, err := Extract(ctx, f, slog.New(slog.DiscardHandler))
				if err != nil {
					return err
				}
				results[i] = res
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, res := range results {
		assert.Equal(t, []string{"New", "Server", "Server.Run", "Server.handle"}, res.Table.Names())
	}
}

func TestSetFilesSortedByPath(t *testing.T) {
	t.Parallel()
	set := NewSet()
	set.Add("pkg/z.go", "go", "package pkg\n")
	set.Add("a.py", "python", "")
	set.Add("pkg/b.go", "go", "package pkg\n")
	set.Add("a.py", "python", "x = 1\n")

	var names []string
	for _, f := range set.Files() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"a.py", "pkg/b.go", "pkg/z.go"}, names)
	f, ok := set.File("a.py")
	require.True(t, ok)
	assert.Equal(t, "x = 1\n", f.Text(), "adding a path again replaces its text")
}
