package minidump

import (
	"fmt"
	"math"
	"strings"
)

const (
	exceptionSize      = 168
	threadSize         = 48
	moduleSize         = 108
	memoryDescSize     = 16
	unloadedModuleSize = 24
	memoryInfoSize     = 48

	maxExceptionParams = 15
)

const unavailable = "unavailable"

func hex(v uint64) string { return fmt.Sprintf("%#x", v) }

// CrashInfo is the decoded exception stream.
type CrashInfo struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Flags   string `json:"flags"`
	Address string `json:"address"`
	Thread  uint32 `json:"crashing_thread"`
}

type exceptionStream struct {
	threadID uint32
	record   exceptionRecord
	context  location
}

func decodeException(v view) (*exceptionStream, error) {
	if v.len() < exceptionSize {
		return nil, fmt.Errorf("exception: %d bytes, want %d", v.len(), exceptionSize)
	}
	n := int(v.u32(32))
	if n > maxExceptionParams {
		n = maxExceptionParams
	}
	params := make([]uint64, n)
	for i := range params {
		params[i] = v.u64(40 + 8*i)
	}
	return &exceptionStream{
		threadID: v.u32(0),
		record: exceptionRecord{
			code:    v.u32(8),
			flags:   v.u32(12),
			address: v.u64(24),
			params:  params,
		},
		context: v.loc(160),
	}, nil
}

type Thread struct {
	ThreadID           uint32 `json:"thread_id"`
	InstructionPointer string `json:"instruction_pointer"`
	StackStart         string `json:"stack_start"`
}

type ThreadList struct {
	Count   int      `json:"count"`
	Threads []Thread `json:"list"`
}

type rawThread struct {
	id         uint32
	stackStart uint64
	context    location
}

func decodeThreads(v view) ([]rawThread, error) {
	n, body, err := v.list(threadSize)
	if err != nil {
		return nil, fmt.Errorf("thread list: %w", err)
	}
	threads := make([]rawThread, n)
	for i := range threads {
		e := body.sub(i * threadSize)
		threads[i] = rawThread{
			id:         e.u32(0),
			stackStart: e.u64(24),
			context:    e.loc(40),
		}
	}
	return threads, nil
}

// MiscInfo is the decoded MINIDUMP_MISC_INFO_N stream. Values the writer did
// not populate (per Flags1) are nil.
type MiscInfo struct {
	ProcessID           *uint32 `json:"process_id"`
	ProcessCreateTime   *uint32 `json:"process_create_time"`
	ProcessUserTime     *uint32 `json:"process_user_time"`
	ProcessKernelTime   *uint32 `json:"process_kernel_time"`
	ProcessorMaxMHz     *uint32 `json:"processor_max_mhz"`
	ProcessorCurrentMHz *uint32 `json:"processor_current_mhz"`
	BuildString         string  `json:"build_string,omitempty"`
	XStateContextSize   uint32  `json:"xstate_context_size,omitempty"`
}

const (
	misc1ProcessID          = 0x001
	misc1ProcessTimes       = 0x002
	misc1ProcessorPowerInfo = 0x004
	misc1BuildString        = 0x100

	miscInfoSize  = 24
	miscInfo2Size = 44
	miscInfo4Size = 832
	// XStateData.SizeOfInfo, ContextSize and EnabledFeatures of MISC_INFO_5.
	miscInfo5XState = miscInfo4Size + 16

	buildStringOffset = 232
	buildStringBytes  = 520
)

func decodeMiscInfo(v view) (*MiscInfo, error) {
	if v.len() < miscInfoSize {
		return nil, fmt.Errorf("misc info: %d bytes, want at least %d", v.len(), miscInfoSize)
	}
	size := int(v.u32(0))
	if size < miscInfoSize {
		return nil, fmt.Errorf("misc info: SizeOfInfo %d", size)
	}
	if size > v.len() {
		size = v.len()
	}
	flags := v.u32(4)
	field := func(off int) *uint32 {
		x := v.u32(off)
		return &x
	}

	m := &MiscInfo{}
	if flags&misc1ProcessID != 0 {
		m.ProcessID = field(8)
	}
	if flags&misc1ProcessTimes != 0 {
		m.ProcessCreateTime = field(12)
		m.ProcessUserTime = field(16)
		m.ProcessKernelTime = field(20)
	}
	if flags&misc1ProcessorPowerInfo != 0 && size >= miscInfo2Size {
		m.ProcessorMaxMHz = field(24)
		m.ProcessorCurrentMHz = field(28)
	}
	if flags&misc1BuildString != 0 && size >= miscInfo4Size {
		if s, err := decodeUTF16(v.b[buildStringOffset:buildStringOffset+buildStringBytes], v.order); err == nil {
			m.BuildString = s
		}
	}
	if size >= miscInfo5XState && v.u64(miscInfo4Size+8) != 0 {
		m.XStateContextSize = v.u32(miscInfo4Size + 4)
	}
	return m, nil
}

type Module struct {
	Filename  string `json:"filename"`
	Version   string `json:"version"`
	BaseAddr  string `json:"base_addr"`
	EndAddr   string `json:"end_addr"`
	Size      uint64 `json:"size"`
	CodeID    string `json:"code_id,omitempty"`
	DebugFile string `json:"debug_file,omitempty"`
	DebugID   string `json:"debug_id,omitempty"`
}

type ModuleList struct {
	Count   int      `json:"count"`
	Modules []Module `json:"list"`
}

const fixedFileInfoSignature = 0xfeef04bd

func decodeModules(r *reader, v view) (*ModuleList, error) {
	n, body, err := v.list(moduleSize)
	if err != nil {
		return nil, fmt.Errorf("module list: %w", err)
	}
	mods := make([]Module, 0, n)
	for i := 0; i < n; i++ {
		e := body.sub(i * moduleSize)
		base := e.u64(0)
		size := e.u32(8)
		end := base + uint64(size)
		if end < base {
			end = math.MaxUint64
		}
		m := Module{
			BaseAddr: hex(base),
			EndAddr:  hex(end),
			Size:     uint64(size),
		}
		// An unreadable name keeps the module with an empty name.
		if name, err := r.readString(e.u32(20)); err == nil {
			m.Filename = name
		}
		if e.u32(24) == fixedFileInfoSignature {
			ms, ls := e.u32(32), e.u32(36)
			m.Version = fmt.Sprintf("%d.%d.%d.%d", ms>>16, ms&0xffff, ls>>16, ls&0xffff)
		}
		m.CodeID = fmt.Sprintf("%08X%x", e.u32(16), size)
		if cv := e.loc(76); !cv.empty() {
			if rec, err := r.at(cv); err == nil {
				applyCodeView(&m, rec)
			}
		}
		mods = append(mods, m)
	}
	return &ModuleList{Count: len(mods), Modules: mods}, nil
}

const (
	cvSignaturePDB70 = 0x53445352 // "RSDS"
	cvSignatureELF   = 0x4270454c // "BpEL"
)

func applyCodeView(m *Module, rec view) {
	if rec.len() < 4 {
		return
	}
	switch rec.u32(0) {
	case cvSignaturePDB70:
		if rec.len() < 24 {
			return
		}
		m.DebugID = guidString(rec.sub(4)) + fmt.Sprintf("%X", rec.u32(20))
		m.DebugFile = strings.TrimRight(string(rec.b[24:]), "\x00")
	case cvSignatureELF:
		id := rec.b[4:]
		if len(id) == 0 {
			return
		}
		m.CodeID = fmt.Sprintf("%x", id)
		var g [16]byte
		copy(g[:], id)
		m.DebugID = guidString(view{b: g[:], order: rec.order}) + "0"
		m.DebugFile = m.Filename
	}
}

// guidString formats a 16-byte GUID the way Breakpad debug ids do.
func guidString(g view) string {
	return fmt.Sprintf("%08X%04X%04X%X", g.u32(0), g.u16(4), g.u16(6), g.b[8:16])
}

type UnloadedModules struct {
	Count int `json:"count"`
}

func decodeUnloadedModules(v view) (*UnloadedModules, error) {
	if v.len() < 12 {
		return nil, fmt.Errorf("unloaded module list: header truncated (%d bytes)", v.len())
	}
	hdr, entry, n := uint64(v.u32(0)), uint64(v.u32(4)), uint64(v.u32(8))
	if hdr < 12 || entry < unloadedModuleSize || n > uint64(v.len()) || hdr+n*entry > uint64(v.len()) {
		return nil, fmt.Errorf("unloaded module list: %d entries of %d bytes do not fit %d bytes", n, entry, v.len())
	}
	return &UnloadedModules{Count: int(n)}, nil
}

// MemoryRegions is a tagged variant: Source names which of the two mutually
// exclusive memory streams the count came from.
type MemoryRegions struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

const (
	SourceMemoryInfoList = "memory_info_list"
	SourceMemoryList     = "memory_list"
)

func decodeMemoryInfoList(v view) (*MemoryRegions, error) {
	if v.len() < 16 {
		return nil, fmt.Errorf("memory info list: header truncated (%d bytes)", v.len())
	}
	hdr, entry, n := uint64(v.u32(0)), uint64(v.u32(4)), v.u64(8)
	if hdr < 16 || entry < memoryInfoSize || n > uint64(v.len()) || hdr+n*entry > uint64(v.len()) {
		return nil, fmt.Errorf("memory info list: %d entries of %d bytes do not fit %d bytes", n, entry, v.len())
	}
	return &MemoryRegions{Source: SourceMemoryInfoList, Count: int(n)}, nil
}

func decodeMemoryList(v view) (*MemoryRegions, error) {
	n, _, err := v.list(memoryDescSize)
	if err != nil {
		return nil, fmt.Errorf("memory list: %w", err)
	}
	return &MemoryRegions{Source: SourceMemoryList, Count: n}, nil
}
