// Package regions maps names to one declaration span and an ordered set of
// reference spans within a single source text, and resolves names the source
// never declares against sibling tables.
package regions

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"

	"github.com/phobologic/rulegraph/internal/interval"
	"github.com/phobologic/rulegraph/internal/model"
)

var (
	// ErrDuplicateDeclaration reports a second declaration of a name.
	ErrDuplicateDeclaration = errors.New("duplicate declaration")
	// ErrOutOfOrder reports a reference that starts before the end of the
	// previous reference to the same name.
	ErrOutOfOrder = errors.New("reference out of order")
	// ErrUnknownName reports an operation on a name that was never added.
	ErrUnknownName = errors.New("unknown name")
)

// NamedRegion is a declaration span.
type NamedRegion struct {
	Name  string
	Start int
	End   int
	// Index is the position at which the name was first registered or
	// declared in the table. It is not the rank of Start among declarations.
	Index int
	Kind  model.Kind
}

// Reference is one usage site of a name.
type Reference struct {
	Name  string
	Start int
	End   int
}

type referenceSet struct {
	starts []int
	ends   []int
}

// Table holds the declarations and references found in one source. It is
// built by a single writer and read-only afterwards.
type Table struct {
	sourceID string
	decls    Offsets
	refs     map[string]*referenceSet
	allRefs  interval.Index[string]
}

// NewTable creates an empty table for the named source.
func NewTable(sourceID string) *Table {
	return &Table{
		sourceID: sourceID,
		refs:     make(map[string]*referenceSet),
	}
}

// SourceID returns the identifier of the source the table was built from.
func (t *Table) SourceID() string {
	return t.sourceID
}

// Register records a name that has no span in this source, such as a
// built-in token or a symbol supplied by an import.
func (t *Table) Register(name string, kind model.Kind) {
	t.decls.Add(name, kind)
}

// Declare records the single declaration of name.
func (t *Table) Declare(name string, start, end int, kind model.Kind) error {
	if err := t.decls.place(name, kind, start, end); err != nil {
		return fmt.Errorf("%s: declare: %w", t.sourceID, err)
	}
	return nil
}

// AddReference appends a usage of name. References to one name must arrive
// in text order and must not overlap each other; references to different
// names may interleave freely.
func (t *Table) AddReference(name string, start, end int) error {
	if err := interval.ValidateRange(start, end); err != nil {
		return fmt.Errorf("%s: reference %q: %w", t.sourceID, name, err)
	}
	rs := t.refs[name]
	if rs != nil {
		if last := rs.ends[len(rs.ends)-1]; start < last {
			return fmt.Errorf("%s: %w: %q at %d precedes end of previous reference at %d",
				t.sourceID, ErrOutOfOrder, name, start, last)
		}
	}
	if err := t.allRefs.Insert(name, start, end); err != nil {
		return fmt.Errorf("%s: reference %q: %w", t.sourceID, name, err)
	}
	if rs == nil {
		rs = &referenceSet{}
		t.refs[name] = rs
	}
	rs.starts = append(rs.starts, start)
	rs.ends = append(rs.ends, end)
	return nil
}

// Declaration returns the declaration of name.
func (t *Table) Declaration(name string) (NamedRegion, bool) {
	it, ok := t.decls.Item(name)
	if !ok || !it.HasOffsets {
		return NamedRegion{}, false
	}
	return namedRegion(it), true
}

// Kind returns the kind recorded for name, whether declared or registered.
func (t *Table) Kind(name string) (model.Kind, bool) {
	it, ok := t.decls.Item(name)
	if !ok {
		return model.Unknown, false
	}
	return it.Kind, true
}

// DeclarationAt returns the innermost declaration containing offset.
func (t *Table) DeclarationAt(offset int) (NamedRegion, bool) {
	it, ok := t.decls.At(offset)
	if !ok {
		return NamedRegion{}, false
	}
	return namedRegion(it), true
}

// EnclosingDeclarations appends the names of all declarations containing
// offset to buf, outermost first.
func (t *Table) EnclosingDeclarations(offset int, buf []string) []string {
	return t.decls.Enclosing(offset, buf)
}

// Declarations returns every declaration in index order.
func (t *Table) Declarations() []NamedRegion {
	var out []NamedRegion
	for i := range t.decls.names {
		if t.decls.starts[i] >= 0 {
			out = append(out, namedRegion(t.decls.item(i)))
		}
	}
	return out
}

// DeclarationSpans returns a copy of the declaration span index.
func (t *Table) DeclarationSpans() *interval.Index[string] {
	return t.decls.Spans()
}

// References returns the usages of name in text order.
func (t *Table) References(name string) []Reference {
	rs := t.refs[name]
	if rs == nil {
		return nil
	}
	out := make([]Reference, len(rs.starts))
	for i := range rs.starts {
		out[i] = Reference{Name: name, Start: rs.starts[i], End: rs.ends[i]}
	}
	return out
}

// ReferenceCount returns how many times name is referenced.
func (t *Table) ReferenceCount(name string) int {
	if rs := t.refs[name]; rs != nil {
		return len(rs.starts)
	}
	return 0
}

// ReferenceOf returns the usage of name containing offset.
func (t *Table) ReferenceOf(name string, offset int) (Reference, bool) {
	rs := t.refs[name]
	if rs == nil {
		return Reference{}, false
	}
	i := interval.LastLessOrEqual(offset, rs.starts)
	if i < 0 || offset >= rs.ends[i] {
		return Reference{}, false
	}
	return Reference{Name: name, Start: rs.starts[i], End: rs.ends[i]}, true
}

// ReferenceAt returns the innermost usage of any name containing offset.
func (t *Table) ReferenceAt(offset int) (Reference, bool) {
	r, ok := t.allRefs.RegionAt(offset)
	if !ok {
		return Reference{}, false
	}
	return Reference{Name: r.Key, Start: r.Start, End: r.End}, true
}

// AllReferences iterates over every usage in text order.
func (t *Table) AllReferences() iter.Seq[Reference] {
	return func(yield func(Reference) bool) {
		for _, r := range t.allRefs.All() {
			if !yield(Reference{Name: r.Key, Start: r.Start, End: r.End}) {
				return
			}
		}
	}
}

// Names returns the declared names sorted lexically.
func (t *Table) Names() []string {
	var out []string
	for i, name := range t.decls.names {
		if t.decls.starts[i] >= 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Referenced returns every referenced name sorted lexically.
func (t *Table) Referenced() []string {
	out := make([]string, 0, len(t.refs))
	for name := range t.refs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Unknown returns referenced names that have no declaration here, sorted.
func (t *Table) Unknown() []string {
	var out []string
	for _, name := range t.Referenced() {
		if _, ok := t.Declaration(name); !ok {
			out = append(out, name)
		}
	}
	return out
}

// Secondary returns every name the table knows of without a declaration
// span: registered names plus undeclared references, sorted.
func (t *Table) Secondary() []string {
	out := t.decls.ItemsWithNoOffsets()
	for _, name := range t.Unknown() {
		if t.decls.IndexOf(name) < 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Sans returns a new table without the given names: their declarations,
// registrations and references are all dropped.
func (t *Table) Sans(names ...string) *Table {
	skip := make(map[string]struct{}, len(names))
	for _, name := range names {
		skip[name] = struct{}{}
	}

	out := NewTable(t.sourceID)
	for i := range t.decls.names {
		it := t.decls.item(i)
		if _, drop := skip[it.Name]; drop {
			continue
		}
		if !it.HasOffsets {
			out.Register(it.Name, it.Kind)
			continue
		}
		mustReplay(out.Declare(it.Name, it.Start, it.End, it.Kind))
	}
	for ref := range t.AllReferences() {
		if _, drop := skip[ref.Name]; drop {
			continue
		}
		mustReplay(out.AddReference(ref.Name, ref.Start, ref.End))
	}
	return out
}

// Equal reports whether both tables hold the same names, spans and kinds.
func (t *Table) Equal(other *Table) bool {
	if t.sourceID != other.sourceID ||
		!slices.Equal(t.decls.names, other.decls.names) ||
		!slices.Equal(t.decls.kinds, other.decls.kinds) ||
		!slices.Equal(t.decls.starts, other.decls.starts) ||
		!slices.Equal(t.decls.ends, other.decls.ends) {
		return false
	}
	return t.allRefs.Equal(&other.allRefs)
}

// mustReplay guards replays of spans taken from a valid table; a subset of
// valid spans cannot violate nesting or ordering.
func mustReplay(err error) {
	if err != nil {
		panic("regions: replaying valid table: " + err.Error())
	}
}

func namedRegion(it Item) NamedRegion {
	return NamedRegion{Name: it.Name, Start: it.Start, End: it.End, Index: it.Index, Kind: it.Kind}
}
