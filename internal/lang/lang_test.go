package lang

import (
	"context"
	"sort"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/rulegraph/internal/model"
)

func TestForExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ext  string
		want string
	}{
		{".py", "python"},
		{".go", "go"},
		{".rb", ""},
		{".js", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			t.Parallel()
			got := ForExtension(tt.ext)
			if got != tt.want {
				t.Errorf("ForExtension(%q) = %q, want %q", tt.ext, got, tt.want)
			}
		})
	}
}

func TestLanguagesRegistered(t *testing.T) {
	t.Parallel()

	names := Names()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "go" || names[1] != "python" {
		t.Fatalf("Names() = %v, want [go python]", names)
	}
	for _, name := range names {
		l := Languages[name]
		if l.GetLanguage() == nil {
			t.Errorf("%s language is nil", name)
		}
		if l.NewParser() == nil {
			t.Errorf("%s NewParser returned nil", name)
		}
	}
}

type found struct {
	decls   map[string]model.Kind
	refs    []string
	imports []string
	blocks  int
}

func walk(t *testing.T, langName, source string) found {
	t.Helper()
	l := Languages[langName]
	src := []byte(source)
	tree, err := l.NewParser().ParseCtx(context.Background(), nil, src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	defer tree.Close()

	f := found{decls: make(map[string]model.Kind)}
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if name, kind, ok := l.Declaration(n, src); ok {
			f.decls[name] = kind
		}
		if l.Block(n) {
			f.blocks++
		}
		if name, ok := l.Reference(n, src); ok {
			f.refs = append(f.refs, name)
		}
		f.imports = append(f.imports, l.Imports(n, src)...)
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(tree.RootNode())
	return f
}

func TestGoRules(t *testing.T) {
	t.Parallel()

	f := walk(t, "go", `package demo

import (
	"fmt"
	str "strings"
)

type Server struct{ name string }

type ID = string

func (s *Server) Run() { s.helper(); fmt.Println(str.ToUpper(s.name)) }

func (s Server) helper() {}

func New() *Server {
	go func() { Run() }()
	return &Server{}
}
`)

	wantDecls := map[string]model.Kind{
		"Server":        model.Type,
		"ID":            model.Type,
		"Server.Run":    model.Method,
		"Server.helper": model.Method,
		"New":           model.Function,
	}
	for name, kind := range wantDecls {
		if got, ok := f.decls[name]; !ok || got != kind {
			t.Errorf("decl %q = %v (present %v), want %v", name, got, ok, kind)
		}
	}
	if len(f.decls) != len(wantDecls) {
		t.Errorf("decls = %v", f.decls)
	}

	wantRefs := []string{"Server", "helper", "Println", "ToUpper", "Server", "Server", "Run", "Server"}
	if len(f.refs) != len(wantRefs) {
		t.Fatalf("refs = %v, want %v", f.refs, wantRefs)
	}
	for i := range wantRefs {
		if f.refs[i] != wantRefs[i] {
			t.Errorf("refs[%d] = %q, want %q", i, f.refs[i], wantRefs[i])
		}
	}

	if len(f.imports) != 2 || f.imports[0] != "fmt" || f.imports[1] != "strings" {
		t.Errorf("imports = %v, want [fmt strings]", f.imports)
	}
	if f.blocks != 1 {
		t.Errorf("blocks = %d, want 1", f.blocks)
	}
}

func TestPythonRules(t *testing.T) {
	t.Parallel()

	f := walk(t, "python", `import os, json as j
from pkg.util import helper

class Base:
    pass

class Child(Base):
    @staticmethod
    def make():
        return helper()

    def run(self):
        self.make()
        key = lambda x: x

def main():
    Child.make()
`)

	wantDecls := map[string]model.Kind{
		"Base":       model.Class,
		"Child":      model.Class,
		"Child.make": model.Method,
		"Child.run":  model.Method,
		"main":       model.Function,
	}
	for name, kind := range wantDecls {
		if got, ok := f.decls[name]; !ok || got != kind {
			t.Errorf("decl %q = %v (present %v), want %v", name, got, ok, kind)
		}
	}

	wantRefs := []string{"Base", "helper", "make", "make"}
	if len(f.refs) != len(wantRefs) {
		t.Fatalf("refs = %v, want %v", f.refs, wantRefs)
	}
	for i := range wantRefs {
		if f.refs[i] != wantRefs[i] {
			t.Errorf("refs[%d] = %q, want %q", i, f.refs[i], wantRefs[i])
		}
	}

	wantImports := []string{"os", "json", "pkg.util"}
	if len(f.imports) != len(wantImports) {
		t.Fatalf("imports = %v, want %v", f.imports, wantImports)
	}
	for i := range wantImports {
		if f.imports[i] != wantImports[i] {
			t.Errorf("imports[%d] = %q, want %q", i, f.imports[i], wantImports[i])
		}
	}
	if f.blocks != 1 {
		t.Errorf("blocks = %d, want 1", f.blocks)
	}
}
