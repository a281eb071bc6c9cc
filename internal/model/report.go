package model

// Report is the ranked summary of every analyzed source in a repository.
type Report struct {
	Root      string
	Algorithm string
	Sources   []SourceSummary
	Entities  []Entity
	Edges     []Edge
	Core      []Member
	Disjoint  []Member
	Ambiguous []Ambiguity
}

// SourceSummary describes one analyzed source.
type SourceSummary struct {
	Path     string
	Language string
	Entities int
	Edges    int
	Cached   bool
}

// Entity is one declared name with its graph metrics.
type Entity struct {
	Source   string
	Name     string
	Kind     Kind
	Line     int
	Inbound  int
	Outbound int
	Closure  int
	Score    float64
}

// Edge says From's declaration mentions To. Via names the sibling source To
// was resolved from, or is empty for local names.
type Edge struct {
	Source string
	From   string
	To     string
	Via    string
}

// Member places a name in a per-source set such as the core vocabulary.
type Member struct {
	Source string
	Name   string
}

// Ambiguity records a name that more than one sibling of Source declares.
// Chosen is the sibling the name was bound to; Candidates lists every
// declaring sibling in lookup order.
type Ambiguity struct {
	Source     string
	Name       string
	Chosen     string
	Candidates []string
}

// Closure lists what one name reaches, or is reached by.
type Closure struct {
	Source  string
	Name    string
	Reverse bool
	Members []Member
}
