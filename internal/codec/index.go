package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/phobologic/rulegraph/internal/interval"
	"github.com/phobologic/rulegraph/internal/model"
)

const indexMagic = "RGIX"

// KeyCodec converts index keys to and from bytes.
type KeyCodec[K comparable] struct {
	Append func(dst []byte, key K) []byte
	Decode func(b []byte) (K, error)
}

// StringKeys stores string keys verbatim.
var StringKeys = KeyCodec[string]{
	Append: func(dst []byte, key string) []byte { return append(dst, key...) },
	Decode: func(b []byte) (string, error) { return string(b), nil },
}

// ConstructKeys stores a kind byte followed by the name.
var ConstructKeys = KeyCodec[model.Construct]{
	Append: func(dst []byte, c model.Construct) []byte {
		dst = append(dst, byte(c.Kind))
		return append(dst, c.Name...)
	},
	Decode: func(b []byte) (model.Construct, error) {
		if len(b) == 0 {
			return model.Construct{}, fmt.Errorf("%w: empty construct key", ErrCorrupt)
		}
		return model.Construct{Kind: model.Kind(b[0]), Name: string(b[1:])}, nil
	},
}

// AppendIndex appends the encoded index to dst. Records are written in index
// order as (key, start uint32, end uint32).
func AppendIndex[K comparable](dst []byte, ix *interval.Index[K], kc KeyCodec[K]) []byte {
	from := len(dst)
	dst = appendHeader(dst, indexMagic)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(ix.Len()))
	var key []byte
	for _, r := range ix.All() {
		key = kc.Append(key[:0], r.Key)
		dst = appendBytes(dst, key)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(r.Start))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(r.End))
	}
	return seal(dst, from)
}

// DecodeIndex rebuilds an index from AppendIndex output. Every record is
// re-inserted, so nesting violations in the data surface as ErrCorrupt.
func DecodeIndex[K comparable](data []byte, kc KeyCodec[K]) (*interval.Index[K], error) {
	payload, err := open(data, indexMagic)
	if err != nil {
		return nil, err
	}
	r := &reader{buf: payload}
	n := r.u32()
	ix := interval.New[K]()
	for i := uint32(0); i < n && r.err == nil; i++ {
		raw := r.bytes()
		start, end := r.u32(), r.u32()
		if r.err != nil {
			break
		}
		key, err := kc.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrCorrupt, i, err)
		}
		if err := ix.Insert(key, int(start), int(end)); err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrCorrupt, i, err)
		}
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return ix, nil
}

// WriteIndex writes one encoded index to w.
func WriteIndex[K comparable](w io.Writer, ix *interval.Index[K], kc KeyCodec[K]) error {
	return writeAll(w, AppendIndex(nil, ix, kc))
}

// ReadIndex reads r to EOF and decodes one index.
func ReadIndex[K comparable](r io.Reader, kc KeyCodec[K]) (*interval.Index[K], error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return DecodeIndex(data, kc)
}
