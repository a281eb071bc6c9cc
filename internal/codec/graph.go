package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"

	"github.com/phobologic/rulegraph/internal/graph"
)

const graphMagic = "RGGR"

func wordsFor(n int) int {
	return (n + 63) / 64
}

// AppendGraph appends the encoded graph to dst: node count, then per node its
// name and source id, then one fixed-width row of uint64 words per node
// holding its successor bitset.
func AppendGraph(dst []byte, g *graph.Graph) []byte {
	from := len(dst)
	n := g.Len()
	dst = appendHeader(dst, graphMagic)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(n))

	sources := g.Sources()
	for i, name := range g.Names() {
		dst = appendBytes(dst, []byte(name))
		dst = appendBytes(dst, []byte(sources[i]))
	}

	width := wordsFor(n)
	for i := 0; i < n; i++ {
		words := g.Successors(i).Words()
		for w := 0; w < width; w++ {
			var word uint64
			if w < len(words) {
				word = words[w]
			}
			dst = binary.LittleEndian.AppendUint64(dst, word)
		}
	}
	return seal(dst, from)
}

// DecodeGraph rebuilds a graph from AppendGraph output.
func DecodeGraph(data []byte) (*graph.Graph, error) {
	payload, err := open(data, graphMagic)
	if err != nil {
		return nil, err
	}
	r := &reader{buf: payload}
	n := int(r.u32())
	// Each node needs at least its two length prefixes.
	if r.err == nil && n > len(r.buf)/8 {
		return nil, fmt.Errorf("%w: %d nodes in %d bytes", ErrCorrupt, n, len(r.buf))
	}

	names := make([]string, 0, n)
	sources := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		names = append(names, string(r.bytes()))
		sources = append(sources, string(r.bytes()))
	}

	width := wordsFor(n)
	rows := make([]*bitset.BitSet, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		words := make([]uint64, width)
		for w := range words {
			words[w] = r.u64()
		}
		rows = append(rows, bitset.FromWithLength(uint(n), words))
	}
	if err := r.done(); err != nil {
		return nil, err
	}

	g, err := graph.FromAdjacency(names, sources, rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return g, nil
}

// WriteGraph writes one encoded graph to w.
func WriteGraph(w io.Writer, g *graph.Graph) error {
	return writeAll(w, AppendGraph(nil, g))
}

// ReadGraph reads r to EOF and decodes one graph.
func ReadGraph(r io.Reader) (*graph.Graph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return DecodeGraph(data)
}
