package extract

import (
	"path"
	"sort"
	"strings"

	"github.com/phobologic/rulegraph/internal/interval"
	"github.com/phobologic/rulegraph/internal/model"
)

// File is one source text known to a Set. It implements model.Source.
type File struct {
	path  string
	lang  string
	text  string
	set   *Set
	lines []int
}

var _ model.Source = (*File)(nil)

// Name returns the slash-separated repo-relative path.
func (f *File) Name() string { return f.path }

// Text returns the full source text.
func (f *File) Text() string { return f.text }

// Lang returns the registered language name.
func (f *File) Lang() string { return f.lang }

// Line returns the 1-based line holding offset.
func (f *File) Line(offset int) int {
	return interval.LastLessOrEqual(offset, f.lines) + 1
}

// ResolveImport maps an import to a source in the same set. It accepts a
// repo-relative path, a Go import path (first file of the matching package
// directory) or a dotted Python module name.
func (f *File) ResolveImport(name string) (model.Source, bool) {
	if other, ok := f.set.files[name]; ok {
		return other, true
	}
	if c := f.set.candidates(f, name); len(c) > 0 {
		return f.set.files[c[0]], true
	}
	return nil, false
}

// Set holds every source of one run so imports can be resolved between them.
type Set struct {
	files map[string]*File
	dirs  map[string][]string
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{files: make(map[string]*File), dirs: make(map[string][]string)}
}

// Add registers a source. Adding a path twice replaces its text.
func (s *Set) Add(filePath, langName, text string) *File {
	f := &File{path: filePath, lang: langName, text: text, set: s, lines: []int{0}}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			f.lines = append(f.lines, i+1)
		}
	}
	if _, exists := s.files[filePath]; !exists {
		dir := path.Dir(filePath)
		s.dirs[dir] = append(s.dirs[dir], filePath)
		sort.Strings(s.dirs[dir])
	}
	s.files[filePath] = f
	return f
}

// File returns the source registered at filePath.
func (s *Set) File(filePath string) (*File, bool) {
	f, ok := s.files[filePath]
	return f, ok
}

// Files returns every source sorted by path.
func (s *Set) Files() []*File {
	out := make([]*File, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// Dependencies lists, in lookup order, the paths of the sources f may take
// undeclared names from: same-package peers for Go, then every source its
// imports resolve to.
func (s *Set) Dependencies(f *File, imports []string) []string {
	var out []string
	seen := map[string]bool{f.path: true}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if f.lang == "go" {
		for _, peer := range s.dirs[path.Dir(f.path)] {
			if s.files[peer].lang == "go" {
				add(peer)
			}
		}
	}
	for _, imp := range imports {
		for _, p := range s.candidates(f, imp) {
			add(p)
		}
	}
	return out
}

func (s *Set) candidates(f *File, imp string) []string {
	switch f.lang {
	case "go":
		var out []string
		dirs := make([]string, 0, len(s.dirs))
		for dir := range s.dirs {
			if dir != "." && (imp == dir || strings.HasSuffix(imp, "/"+dir)) {
				dirs = append(dirs, dir)
			}
		}
		sort.Strings(dirs)
		for _, dir := range dirs {
			for _, p := range s.dirs[dir] {
				if s.files[p].lang == "go" {
					out = append(out, p)
				}
			}
		}
		return out
	case "python":
		if imp == "" || strings.HasPrefix(imp, ".") {
			return nil
		}
		rel := strings.ReplaceAll(imp, ".", "/")
		for _, p := range []string{
			path.Join(path.Dir(f.path), rel+".py"),
			rel + ".py",
			path.Join(rel, "__init__.py"),
		} {
			if _, ok := s.files[p]; ok {
				return []string{p}
			}
		}
	}
	return nil
}
