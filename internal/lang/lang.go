// Package lang provides a language registry mapping file extensions to
// tree-sitter languages and the node rules that say which syntax declares,
// nests or mentions a name.
package lang

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/rulegraph/internal/model"
)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language

	// Declaration returns the name and kind a node declares. Methods are
	// qualified with their owning type ("Server.Run").
	Declaration func(node *sitter.Node, source []byte) (string, model.Kind, bool)

	// Block reports whether a node is an anonymous nested construct such as
	// a closure.
	Block func(node *sitter.Node) bool

	// Reference returns the name a node mentions, if it is a call target or
	// type use.
	Reference func(node *sitter.Node, source []byte) (string, bool)

	// Imports returns the module paths an import node names.
	Imports func(node *sitter.Node, source []byte) []string
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}

// Names returns the registered language names.
func Names() []string {
	out := make([]string, 0, len(Languages))
	for name := range Languages {
		out = append(out, name)
	}
	return out
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// sameNode compares nodes by position and type; wrappers returned by
// different accessors are not guaranteed to be pointer-equal.
func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// isField reports whether node is the given field of its parent.
func isField(node *sitter.Node, field string) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	return sameNode(parent.ChildByFieldName(field), node)
}

func unquote(s string) string {
	return strings.Trim(s, "\"`")
}
