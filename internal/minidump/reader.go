// Package minidump decodes minidump snapshots into a triage summary. Every
// stream is decoded on its own so a damaged or missing section only drops
// that section from the result.
package minidump

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	xunicode "golang.org/x/text/encoding/unicode"
)

var ErrNotMinidump = errors.New("not a minidump")

const (
	signature     = 0x504d444d // "MDMP"
	headerSize    = 32
	directorySize = 12

	// Upper bound for a MINIDUMP_STRING; real module paths are far shorter.
	maxStringBytes = 64 * 1024
)

type StreamType uint32

const (
	ThreadListStream         StreamType = 3
	ModuleListStream         StreamType = 4
	MemoryListStream         StreamType = 5
	ExceptionStream          StreamType = 6
	SystemInfoStream         StreamType = 7
	UnloadedModuleListStream StreamType = 14
	MiscInfoStream           StreamType = 15
	MemoryInfoListStream     StreamType = 16
)

type location struct {
	size uint32
	rva  uint32
}

func (l location) empty() bool { return l.size == 0 }

type reader struct {
	data    []byte
	order   binary.ByteOrder
	streams map[StreamType]location
}

func newReader(data []byte) (*reader, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d byte file", ErrNotMinidump, len(data))
	}
	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(data) == signature:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(data) == signature:
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad signature %#08x", ErrNotMinidump, binary.LittleEndian.Uint32(data))
	}

	count := order.Uint32(data[8:])
	dirRva := order.Uint32(data[12:])
	end := uint64(dirRva) + uint64(count)*directorySize
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: stream directory of %d entries out of bounds", ErrNotMinidump, count)
	}

	r := &reader{data: data, order: order, streams: make(map[StreamType]location, count)}
	for i := uint32(0); i < count; i++ {
		e := data[dirRva+i*directorySize:]
		t := StreamType(order.Uint32(e))
		if t == 0 {
			// UnusedStream
			continue
		}
		if _, dup := r.streams[t]; dup {
			continue
		}
		r.streams[t] = location{size: order.Uint32(e[4:]), rva: order.Uint32(e[8:])}
	}
	return r, nil
}

// stream returns the raw bytes of a stream. ok is false when the directory
// has no entry for t.
func (r *reader) stream(t StreamType) (v view, ok bool, err error) {
	loc, ok := r.streams[t]
	if !ok {
		return view{}, false, nil
	}
	v, err = r.at(loc)
	return v, true, err
}

func (r *reader) at(loc location) (view, error) {
	end := uint64(loc.rva) + uint64(loc.size)
	if end > uint64(len(r.data)) {
		return view{}, fmt.Errorf("location %#x+%d beyond end of file (%d bytes)", loc.rva, loc.size, len(r.data))
	}
	return view{b: r.data[loc.rva:end], order: r.order}, nil
}

// readString decodes the MINIDUMP_STRING (UTF-16, length-prefixed) at rva.
func (r *reader) readString(rva uint32) (string, error) {
	if uint64(rva)+4 > uint64(len(r.data)) {
		return "", fmt.Errorf("string rva %#x out of bounds", rva)
	}
	n := r.order.Uint32(r.data[rva:])
	if n > maxStringBytes || n%2 != 0 {
		return "", fmt.Errorf("string at %#x: bad length %d", rva, n)
	}
	v, err := r.at(location{size: n, rva: rva + 4})
	if err != nil {
		return "", err
	}
	return decodeUTF16(v.b, r.order)
}

func decodeUTF16(b []byte, order binary.ByteOrder) (string, error) {
	endian := xunicode.LittleEndian
	if order == binary.BigEndian {
		endian = xunicode.BigEndian
	}
	out, err := xunicode.UTF16(endian, xunicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode utf-16: %w", err)
	}
	s := string(out)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s, nil
}

// view is a bounds-checked window onto a stream. Accessors assume the caller
// has checked len(b).
type view struct {
	b     []byte
	order binary.ByteOrder
}

func (v view) len() int { return len(v.b) }

func (v view) u8(off int) uint8 { return v.b[off] }

func (v view) u16(off int) uint16 { return v.order.Uint16(v.b[off:]) }

func (v view) u32(off int) uint32 { return v.order.Uint32(v.b[off:]) }

func (v view) u64(off int) uint64 { return v.order.Uint64(v.b[off:]) }

func (v view) loc(off int) location {
	return location{size: v.u32(off), rva: v.u32(off + 4)}
}

func (v view) sub(off int) view { return view{b: v.b[off:], order: v.order} }

// list splits a count-prefixed array stream. Some writers pad the 4-byte
// count to 8 bytes; that layout is detected from the stream size.
func (v view) list(entrySize int) (count int, body view, err error) {
	if v.len() < 4 {
		return 0, view{}, fmt.Errorf("list header truncated (%d bytes)", v.len())
	}
	n := uint64(v.u32(0))
	need := 4 + n*uint64(entrySize)
	switch {
	case uint64(v.len()) == need+4:
		return int(n), v.sub(8), nil
	case uint64(v.len()) >= need:
		return int(n), v.sub(4), nil
	default:
		return 0, view{}, fmt.Errorf("list of %d entries needs %d bytes, have %d", n, need, v.len())
	}
}
