// Package codec persists interval indexes and reference graphs as versioned
// binary record streams.
//
// Every stream is: 4-byte magic, uint16 format version, fixed-width
// little-endian records, then an xxhash64 of everything before it. Decoding
// rejects bad magic, unknown versions, checksum mismatches, truncation and
// trailing bytes with ErrCorrupt. Only round-trip equality within one build
// is promised.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

const (
	// Version is the current format version for both stream kinds.
	Version uint16 = 1

	headerLen  = 6
	trailerLen = 8
)

var (
	// ErrCorrupt reports malformed, truncated or tampered persisted data.
	ErrCorrupt = errors.New("corrupt data")
	// ErrUnsupportedVersion reports a stream written by another format version.
	// It is always wrapped together with ErrCorrupt.
	ErrUnsupportedVersion = errors.New("unsupported format version")
)

func appendHeader(dst []byte, magic string) []byte {
	dst = append(dst, magic...)
	return binary.LittleEndian.AppendUint16(dst, Version)
}

// seal appends the checksum of dst[from:].
func seal(dst []byte, from int) []byte {
	return binary.LittleEndian.AppendUint64(dst, xxhash.Sum64(dst[from:]))
}

// open verifies magic, version and checksum and returns the record payload.
func open(data []byte, magic string) ([]byte, error) {
	if len(data) < headerLen+trailerLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than header and trailer", ErrCorrupt, len(data))
	}
	if string(data[:4]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q, want %q", ErrCorrupt, data[:4], magic)
	}
	body := data[:len(data)-trailerLen]
	want := binary.LittleEndian.Uint64(data[len(data)-trailerLen:])
	if got := xxhash.Sum64(body); got != want {
		return nil, fmt.Errorf("%w: checksum %016x, want %016x", ErrCorrupt, got, want)
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != Version {
		return nil, fmt.Errorf("%w: %w: %d", ErrCorrupt, ErrUnsupportedVersion, v)
	}
	return body[headerLen:], nil
}

// reader walks a payload; the first short read sticks in err.
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes, have %d", ErrCorrupt, n, len(r.buf))
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) bytes() []byte {
	n := r.u32()
	return r.take(int(n))
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if len(r.buf) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(r.buf))
	}
	return nil
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

func writeAll(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}
