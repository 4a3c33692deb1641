package minidump

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

// dumpBuilder assembles synthetic minidumps for tests. Stream data is laid
// out after a fixed-size directory so rvas are known as soon as data is put.
type dumpBuilder struct {
	order   binary.ByteOrder
	body    []byte
	entries [][3]uint32 // type, size, rva
}

const (
	maxTestStreams = 16
	testDataStart  = headerSize + maxTestStreams*directorySize
)

func newBuilder() *dumpBuilder {
	return &dumpBuilder{order: binary.LittleEndian, body: make([]byte, testDataStart)}
}

func (b *dumpBuilder) put(data []byte) uint32 {
	rva := uint32(len(b.body))
	b.body = append(b.body, data...)
	return rva
}

func (b *dumpBuilder) putLoc(data []byte) location {
	return location{size: uint32(len(data)), rva: b.put(data)}
}

func (b *dumpBuilder) putString(s string) uint32 {
	units := utf16.Encode([]rune(s))
	vals := []any{uint32(len(units) * 2)}
	for _, u := range units {
		vals = append(vals, u)
	}
	return b.put(b.raw(vals...))
}

func (b *dumpBuilder) stream(t StreamType, data []byte) *dumpBuilder {
	rva := b.put(data)
	b.entries = append(b.entries, [3]uint32{uint32(t), uint32(len(data)), rva})
	return b
}

// rawStream adds a directory entry without data, e.g. pointing out of bounds.
func (b *dumpBuilder) rawStream(t StreamType, loc location) *dumpBuilder {
	b.entries = append(b.entries, [3]uint32{uint32(t), loc.size, loc.rva})
	return b
}

func (b *dumpBuilder) bytes() []byte {
	out := append([]byte(nil), b.body...)
	b.order.PutUint32(out[0:], signature)
	b.order.PutUint32(out[4:], 0xa793)
	b.order.PutUint32(out[8:], uint32(len(b.entries)))
	b.order.PutUint32(out[12:], headerSize)
	for i, e := range b.entries {
		off := headerSize + i*directorySize
		b.order.PutUint32(out[off:], e[0])
		b.order.PutUint32(out[off+4:], e[1])
		b.order.PutUint32(out[off+8:], e[2])
	}
	return out
}

func (b *dumpBuilder) raw(vals ...any) []byte {
	var buf bytes.Buffer
	for _, v := range vals {
		if err := binary.Write(&buf, b.order, v); err != nil {
			panic(err)
		}
	}
	return buf.Bytes()
}

const (
	archX86    = 0
	archAMD64  = 9
	archARM    = 5
	archARM64  = 12
	archMIPS   = 1
	archMIPS64 = 0x8004
	platLinux  = 0x8201
	platWinNT  = 2
	platMacOS  = 0x8101
	platSunOS  = 0x8202
	platBogus  = 0x1234
	cpuFlagX64 = 0x00100000
)

func (b *dumpBuilder) systemInfo(arch uint16, platform uint32) []byte {
	var cpu [24]byte
	copy(cpu[:], "GenuineIntel")
	return b.raw(
		arch, uint16(6), uint16(0x9e0a), uint8(8), uint8(1),
		uint32(10), uint32(0), uint32(19045), platform,
		uint32(0), uint16(0), uint16(0), cpu,
	)
}

func (b *dumpBuilder) exception(threadID, code, flags uint32, addr uint64, params []uint64, ctx location) []byte {
	var info [15]uint64
	copy(info[:], params)
	return b.raw(
		threadID, uint32(0), code, flags, uint64(0), addr,
		uint32(len(params)), uint32(0), info, ctx.size, ctx.rva,
	)
}

type testThread struct {
	id  uint32
	ctx location
}

func (b *dumpBuilder) threadList(threads ...testThread) []byte {
	vals := []any{uint32(len(threads))}
	for _, t := range threads {
		vals = append(vals,
			t.id, uint32(0), uint32(0), uint32(0), uint64(0),
			uint64(0x7ffc0000), uint32(0), uint32(0),
			t.ctx.size, t.ctx.rva,
		)
	}
	return b.raw(vals...)
}

func (b *dumpBuilder) amd64Context(rip uint64, size int) []byte {
	ctx := make([]byte, size)
	b.order.PutUint32(ctx[48:], cpuFlagX64)
	b.order.PutUint64(ctx[248:], rip)
	return ctx
}

func (b *dumpBuilder) x86Context(eip uint32) []byte {
	ctx := make([]byte, 716)
	b.order.PutUint32(ctx[184:], eip)
	return ctx
}

type testModule struct {
	base    uint64
	size    uint32
	name    string
	version [2]uint32 // FileVersionMS, FileVersionLS; zero means no VS_FIXEDFILEINFO
}

func (b *dumpBuilder) moduleList(mods ...testModule) []byte {
	vals := []any{uint32(len(mods))}
	for _, m := range mods {
		nameRva := b.putString(m.name)
		var vi [13]uint32
		if m.version != [2]uint32{} {
			vi[0] = fixedFileInfoSignature
			vi[2], vi[3] = m.version[0], m.version[1]
		}
		vals = append(vals,
			m.base, m.size, uint32(0), uint32(0x5f000000), nameRva, vi,
			uint32(0), uint32(0), uint32(0), uint32(0), uint64(0), uint64(0),
		)
	}
	return b.raw(vals...)
}

func (b *dumpBuilder) miscInfo2(flags, pid, created, maxMHz, curMHz uint32) []byte {
	return b.raw(
		uint32(miscInfo2Size), flags, pid, created, uint32(0), uint32(0),
		maxMHz, curMHz, uint32(0), uint32(0), uint32(0),
	)
}

func (b *dumpBuilder) miscInfo5(xstateContextSize uint32) []byte {
	m := make([]byte, 1364)
	b.order.PutUint32(m[0:], 1364)
	b.order.PutUint32(m[miscInfo4Size:], 528)
	b.order.PutUint32(m[miscInfo4Size+4:], xstateContextSize)
	b.order.PutUint64(m[miscInfo4Size+8:], 0x7)
	return m
}

func (b *dumpBuilder) unloadedModules(n int) []byte {
	return append(b.raw(uint32(12), uint32(unloadedModuleSize), uint32(n)), make([]byte, n*unloadedModuleSize)...)
}

func (b *dumpBuilder) memoryInfoList(n int) []byte {
	return append(b.raw(uint32(16), uint32(memoryInfoSize), uint64(n)), make([]byte, n*memoryInfoSize)...)
}

func (b *dumpBuilder) memoryList(n int) []byte {
	return append(b.raw(uint32(n)), make([]byte, n*memoryDescSize)...)
}
