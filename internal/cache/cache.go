// Package cache stores the construct index and reference graph of one source
// on disk so unchanged sources skip extraction on the next run.
//
// A cache file holds the source hash, the imports the source declared, the
// names its siblings declared more than once, then an encoded index stream and
// an encoded graph stream. Files are only ever replaced whole.
package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/phobologic/rulegraph/internal/codec"
	"github.com/phobologic/rulegraph/internal/graph"
	"github.com/phobologic/rulegraph/internal/interval"
	"github.com/phobologic/rulegraph/internal/model"
)

// ErrStale reports a cache file written for different source contents.
var ErrStale = errors.New("stale cache entry")

const fileMagic = "RGCF"

// Entry is the cached analysis of one source.
type Entry struct {
	SourceHash uint64
	// Imports lets a reader recompute the dependency set, and so the
	// expected hash, without parsing the source again.
	Imports []string
	// Ambiguous maps each name more than one sibling declared to every
	// declaring source, winner first.
	Ambiguous map[string][]string
	Index     *interval.Index[model.Construct]
	Graph     *graph.Graph
}

// HashSources digests a source text together with the texts of the siblings
// its references may resolve against. Sibling order does not matter.
func HashSources(text string, siblings map[string]string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(text)

	names := make([]string, 0, len(siblings))
	for name := range siblings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(name)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(siblings[name])
	}
	return d.Sum64()
}

// PathFor maps a source id to its cache file under dir.
func PathFor(dir, sourceID string) string {
	return filepath.Join(dir, fmt.Sprintf("%016x.rgc", xxhash.Sum64String(sourceID)))
}

// Save writes e to path via a temporary file in the same directory and a
// rename, so readers never observe a partial file.
func Save(path string, e *Entry) error {
	data := []byte(fileMagic)
	data = binary.LittleEndian.AppendUint64(data, e.SourceHash)
	data = appendStrings(data, e.Imports)
	names := make([]string, 0, len(e.Ambiguous))
	for name := range e.Ambiguous {
		names = append(names, name)
	}
	sort.Strings(names)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(names)))
	for _, name := range names {
		data = appendString(data, name)
		data = appendStrings(data, e.Ambiguous[name])
	}
	index := codec.AppendIndex(nil, e.Index, codec.ConstructKeys)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(index)))
	data = append(data, index...)
	data = codec.AppendGraph(data, e.Graph)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".rgc-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Load reads the entry at path and checks it against the hash expect
// computes from the stored imports. It returns ErrStale when the hashes
// differ and codec.ErrCorrupt for damaged files. A missing file surfaces as
// an fs.ErrNotExist error.
func Load(path string, expect func(imports []string) uint64) (*Entry, error) {
	e, err := Open(path)
	if err != nil {
		return nil, err
	}
	if e.SourceHash != expect(e.Imports) {
		return nil, fmt.Errorf("%s: %w", path, ErrStale)
	}
	return e, nil
}

// Open reads the entry at path without checking freshness.
func Open(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	corrupt := func(what string) error {
		return fmt.Errorf("%s: %w: %s", path, codec.ErrCorrupt, what)
	}
	if len(data) < len(fileMagic)+16 || string(data[:len(fileMagic)]) != fileMagic {
		return nil, corrupt("bad cache header")
	}
	r := &reader{buf: data[len(fileMagic)+8:]}
	e := &Entry{SourceHash: binary.LittleEndian.Uint64(data[len(fileMagic):])}
	if e.Imports, err = r.list(); err != nil {
		return nil, corrupt("imports: " + err.Error())
	}
	count, err := r.count(8)
	if err != nil {
		return nil, corrupt("ambiguous names: " + err.Error())
	}
	for i := 0; i < count; i++ {
		name, err := r.text()
		if err != nil {
			return nil, corrupt("ambiguous names: " + err.Error())
		}
		declared, err := r.list()
		if err != nil {
			return nil, corrupt("ambiguous names: " + err.Error())
		}
		if e.Ambiguous == nil {
			e.Ambiguous = make(map[string][]string, count)
		}
		e.Ambiguous[name] = declared
	}

	n, err := r.count(1)
	if err != nil {
		return nil, corrupt("index length: " + err.Error())
	}
	rest := r.buf
	if e.Index, err = codec.DecodeIndex(rest[:n], codec.ConstructKeys); err != nil {
		return nil, fmt.Errorf("%s: index: %w", path, err)
	}
	if e.Graph, err = codec.DecodeGraph(rest[n:]); err != nil {
		return nil, fmt.Errorf("%s: graph: %w", path, err)
	}
	return e, nil
}

func appendString(data []byte, s string) []byte {
	data = binary.LittleEndian.AppendUint32(data, uint32(len(s)))
	return append(data, s...)
}

func appendStrings(data []byte, list []string) []byte {
	data = binary.LittleEndian.AppendUint32(data, uint32(len(list)))
	for _, s := range list {
		data = appendString(data, s)
	}
	return data
}

type reader struct {
	buf []byte
}

// count reads a length prefix and checks that many items of at least size
// bytes each could still follow.
func (r *reader) count(size int) (int, error) {
	if len(r.buf) < 4 {
		return 0, errors.New("truncated")
	}
	n := int(binary.LittleEndian.Uint32(r.buf))
	r.buf = r.buf[4:]
	if n > len(r.buf)/size {
		return 0, fmt.Errorf("count %d exceeds file", n)
	}
	return n, nil
}

func (r *reader) text() (string, error) {
	n, err := r.count(1)
	if err != nil {
		return "", err
	}
	s := string(r.buf[:n])
	r.buf = r.buf[n:]
	return s, nil
}

func (r *reader) list() ([]string, error) {
	n, err := r.count(4)
	if err != nil {
		return nil, err
	}
	var out []string
	for i := 0; i < n; i++ {
		s, err := r.text()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
