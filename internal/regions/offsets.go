package regions

import (
	"fmt"

	"github.com/phobologic/rulegraph/internal/interval"
	"github.com/phobologic/rulegraph/internal/model"
)

// Item is one named entry of an Offsets set.
type Item struct {
	Name       string
	Index      int
	Start      int
	End        int
	Kind       model.Kind
	HasOffsets bool
}

// Offsets is an ordered set of names, each of which may be given exactly one
// span. Names keep the index they were added with; spans are held in an
// interval index so point queries cost O(log n).
type Offsets struct {
	names  []string
	kinds  []model.Kind
	starts []int
	ends   []int
	index  map[string]int
	spans  interval.Index[string]
}

// NewOffsets creates a set holding names in the given order.
func NewOffsets(names ...string) (*Offsets, error) {
	o := &Offsets{index: make(map[string]int, len(names))}
	for _, name := range names {
		if _, dup := o.index[name]; dup {
			return nil, fmt.Errorf("%w: %q listed twice", ErrDuplicateDeclaration, name)
		}
		o.Add(name, model.Unknown)
	}
	return o, nil
}

// Add registers name without offsets and returns its index. Adding a name
// that is already present returns the existing index; a non-Unknown kind
// replaces an Unknown one.
func (o *Offsets) Add(name string, kind model.Kind) int {
	if o.index == nil {
		o.index = make(map[string]int)
	}
	if i, ok := o.index[name]; ok {
		if o.kinds[i] == model.Unknown {
			o.kinds[i] = kind
		}
		return i
	}
	i := len(o.names)
	o.names = append(o.names, name)
	o.kinds = append(o.kinds, kind)
	o.starts = append(o.starts, -1)
	o.ends = append(o.ends, -1)
	o.index[name] = i
	return i
}

// SetOffsets assigns the span of a name that was already added.
func (o *Offsets) SetOffsets(name string, start, end int) error {
	if _, ok := o.index[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	return o.place(name, model.Unknown, start, end)
}

// place gives name its span, adding the name if needed. Nothing changes on
// error.
func (o *Offsets) place(name string, kind model.Kind, start, end int) error {
	if i, ok := o.index[name]; ok && o.starts[i] >= 0 {
		return fmt.Errorf("%w: %q already spans [%d, %d)",
			ErrDuplicateDeclaration, name, o.starts[i], o.ends[i])
	}
	if err := o.spans.Insert(name, start, end); err != nil {
		return fmt.Errorf("%q: %w", name, err)
	}
	i := o.Add(name, kind)
	if kind != model.Unknown {
		o.kinds[i] = kind
	}
	o.starts[i] = start
	o.ends[i] = end
	return nil
}

// IndexOf returns the index of name, or -1.
func (o *Offsets) IndexOf(name string) int {
	if i, ok := o.index[name]; ok {
		return i
	}
	return -1
}

// Len returns the number of names.
func (o *Offsets) Len() int {
	return len(o.names)
}

// Names returns every name in index order.
func (o *Offsets) Names() []string {
	return append([]string(nil), o.names...)
}

func (o *Offsets) item(i int) Item {
	return Item{
		Name:       o.names[i],
		Index:      i,
		Start:      o.starts[i],
		End:        o.ends[i],
		Kind:       o.kinds[i],
		HasOffsets: o.starts[i] >= 0,
	}
}

// Item returns the entry for name.
func (o *Offsets) Item(name string) (Item, bool) {
	i, ok := o.index[name]
	if !ok {
		return Item{}, false
	}
	return o.item(i), true
}

// At returns the innermost item whose span contains offset.
func (o *Offsets) At(offset int) (Item, bool) {
	r, ok := o.spans.RegionAt(offset)
	if !ok {
		return Item{}, false
	}
	return o.item(o.index[r.Key]), true
}

// Enclosing appends the names of every item containing offset to buf,
// outermost first.
func (o *Offsets) Enclosing(offset int, buf []string) []string {
	return o.spans.KeysAtPoint(offset, buf)
}

// ItemsWithNoOffsets returns, in index order, the names that were never given
// a span.
func (o *Offsets) ItemsWithNoOffsets() []string {
	var out []string
	for i, name := range o.names {
		if o.starts[i] < 0 {
			out = append(out, name)
		}
	}
	return out
}

// Spans returns a copy of the span index keyed by name.
func (o *Offsets) Spans() *interval.Index[string] {
	return o.spans.Trim()
}
