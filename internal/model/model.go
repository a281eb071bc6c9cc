// Package model defines core data structures shared by the rulegraph packages.
package model

// Kind tags the category of a named entity. The set is closed: front-ends map
// whatever their source language calls things onto one of these values.
type Kind uint8

const (
	Unknown Kind = iota
	ParserRule
	LexerRule
	Fragment
	Mode
	Channel
	Token
	Import
	Function
	Method
	Class
	Type
	Block
)

var kindNames = [...]string{
	Unknown:    "unknown",
	ParserRule: "parser-rule",
	LexerRule:  "lexer-rule",
	Fragment:   "fragment",
	Mode:       "mode",
	Channel:    "channel",
	Token:      "token",
	Import:     "import",
	Function:   "function",
	Method:     "method",
	Class:      "class",
	Type:       "type",
	Block:      "block",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind maps a kind name back to its Kind. Unrecognized names yield Unknown.
func ParseKind(s string) Kind {
	for i, name := range kindNames {
		if name == s {
			return Kind(i)
		}
	}
	return Unknown
}

// Construct keys a span in a source's construct index: a named declaration
// or an anonymous nested construct (empty Name).
type Construct struct {
	Name string
	Kind Kind
}

func (c Construct) String() string {
	if c.Name == "" {
		return c.Kind.String()
	}
	return c.Kind.String() + " " + c.Name
}

// Source is the handle an extraction front-end supplies for one source text.
// The core uses it only for diagnostics and for locating imported sources.
type Source interface {
	// Name identifies the source, typically a repo-relative path.
	Name() string
	// Text returns the full source text that offsets refer to.
	Text() string
	// ResolveImport returns the source an import of name refers to, if any.
	ResolveImport(name string) (Source, bool)
}
