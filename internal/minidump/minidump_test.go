package minidump

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestAnalyzeRejectsNonMinidump(t *testing.T) {
	short := []byte("MDMP")
	badSig := make([]byte, 64)
	copy(badSig, "ELF\x7f")

	dirOOB := newBuilder().bytes()
	binary.LittleEndian.PutUint32(dirOOB[8:], 1000)

	for name, data := range map[string][]byte{
		"empty":         nil,
		"short":         short,
		"bad signature": badSig,
		"dir overflow":  dirOOB,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Analyze(data); !errors.Is(err, ErrNotMinidump) {
				t.Fatalf("Analyze err = %v, want ErrNotMinidump", err)
			}
		})
	}
}

func TestBigEndianDump(t *testing.T) {
	b := newBuilder()
	b.order = binary.BigEndian
	b.stream(SystemInfoStream, b.systemInfo(archARM64, platLinux))

	s, _, err := Summarize(b.bytes())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.OS == nil || s.OS.Family != "Linux" || s.OS.CPU != "Arm64" {
		t.Fatalf("OS = %+v", s.OS)
	}
}

func TestSystemInfo(t *testing.T) {
	b := newBuilder()
	b.stream(SystemInfoStream, b.systemInfo(archAMD64, platWinNT))
	a, err := Analyze(b.bytes())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	si := a.SystemInfo
	if si == nil {
		t.Fatal("system info missing")
	}
	if si.OS != "Windows" || si.CPUArch != "X86_64" || si.CPUCount != 8 {
		t.Errorf("system info = %+v", si)
	}
	if si.OSVersion != "10.0.19045" {
		t.Errorf("os_ver = %q", si.OSVersion)
	}
	if si.CPUInfo != "GenuineIntel family 6 model 158 stepping 10" {
		t.Errorf("cpu_info = %q", si.CPUInfo)
	}
}

func TestUnknownPlatformAndArch(t *testing.T) {
	b := newBuilder()
	b.stream(SystemInfoStream, b.systemInfo(0x77, platBogus))
	a, err := Analyze(b.bytes())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.SystemInfo.OS != "Unknown(0x1234)" || a.SystemInfo.CPUArch != "Unknown(0x77)" {
		t.Errorf("system info = %+v", a.SystemInfo)
	}
}

func TestSummaryWithoutExceptionKeepsThreads(t *testing.T) {
	b := newBuilder()
	ctx := b.putLoc(b.amd64Context(0x401000, 1232))
	b.stream(SystemInfoStream, b.systemInfo(archAMD64, platLinux))
	b.stream(ThreadListStream, b.threadList(testThread{id: 1, ctx: ctx}, testThread{id: 2}))

	s, _, err := Summarize(b.bytes())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Exception != nil {
		t.Errorf("exception = %+v, want absent", s.Exception)
	}
	if s.ThreadCount == nil || *s.ThreadCount != 2 {
		t.Fatalf("thread_count = %v", s.ThreadCount)
	}
	want := []string{"0x401000", "unavailable"}
	if strings.Join(s.TopFrames, ",") != strings.Join(want, ",") {
		t.Errorf("top_frames = %v, want %v", s.TopFrames, want)
	}
}

func TestThreadsUnavailableWithoutSystemInfo(t *testing.T) {
	b := newBuilder()
	ctx := b.putLoc(b.amd64Context(0x401000, 1232))
	b.stream(ThreadListStream, b.threadList(testThread{id: 7, ctx: ctx}))

	s, _, err := Summarize(b.bytes())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.OS != nil {
		t.Errorf("os = %+v, want absent", s.OS)
	}
	if len(s.TopFrames) != 1 || s.TopFrames[0] != unavailable {
		t.Errorf("top_frames = %v", s.TopFrames)
	}
}

func TestExceptionReasonUnknownWithoutSystemInfo(t *testing.T) {
	b := newBuilder()
	b.stream(ExceptionStream, b.exception(42, 11, 1, 0xdead, nil, location{}))

	s, _, err := Summarize(b.bytes())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Exception == nil {
		t.Fatal("exception missing")
	}
	if s.Exception.Reason != "Unknown" || s.Exception.ThreadID != 42 {
		t.Errorf("exception = %+v", s.Exception)
	}
}

func TestCrashingThreadUsesExceptionContext(t *testing.T) {
	b := newBuilder()
	threadCtx := b.putLoc(b.x86Context(0x1111))
	excCtx := b.putLoc(b.x86Context(0x2222))
	b.stream(SystemInfoStream, b.systemInfo(archX86, platWinNT))
	b.stream(ExceptionStream, b.exception(5, 0xc0000005, 0, 0, []uint64{1, 0}, excCtx))
	b.stream(ThreadListStream, b.threadList(testThread{id: 4, ctx: threadCtx}, testThread{id: 5, ctx: threadCtx}))

	a, err := Analyze(b.bytes())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	got := []string{a.Threads.Threads[0].InstructionPointer, a.Threads.Threads[1].InstructionPointer}
	if got[0] != "0x1111" || got[1] != "0x2222" {
		t.Errorf("instruction pointers = %v", got)
	}
	if a.CrashInfo.Type != "EXCEPTION_ACCESS_VIOLATION_WRITE" {
		t.Errorf("type = %q", a.CrashInfo.Type)
	}
	if a.CrashInfo.Code != "0xc0000005" || a.CrashInfo.Thread != 5 {
		t.Errorf("crash info = %+v", a.CrashInfo)
	}
}

func TestExtendedContextNeedsMiscInfo(t *testing.T) {
	build := func(withMisc bool) *Analysis {
		b := newBuilder()
		ctx := b.putLoc(b.amd64Context(0xabc, 1232+512))
		b.stream(SystemInfoStream, b.systemInfo(archAMD64, platWinNT))
		if withMisc {
			b.stream(MiscInfoStream, b.miscInfo5(1232+512))
		}
		b.stream(ThreadListStream, b.threadList(testThread{id: 1, ctx: ctx}))
		a, err := Analyze(b.bytes())
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		return a
	}

	if ip := build(false).Threads.Threads[0].InstructionPointer; ip != unavailable {
		t.Errorf("without misc info: ip = %q, want unavailable", ip)
	}
	a := build(true)
	if ip := a.Threads.Threads[0].InstructionPointer; ip != "0xabc" {
		t.Errorf("with misc info: ip = %q", ip)
	}
	if a.MiscInfo.XStateContextSize != 1232+512 {
		t.Errorf("xstate size = %d", a.MiscInfo.XStateContextSize)
	}
}

func TestShortContextUnavailable(t *testing.T) {
	b := newBuilder()
	ctx := b.putLoc(b.amd64Context(0xabc, 1232)[:600])
	b.stream(SystemInfoStream, b.systemInfo(archAMD64, platLinux))
	b.stream(ThreadListStream, b.threadList(testThread{id: 1, ctx: ctx}))

	s, _, err := Summarize(b.bytes())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.TopFrames[0] != unavailable {
		t.Errorf("top_frames = %v", s.TopFrames)
	}
}

func TestMipsInstructionPointer(t *testing.T) {
	for _, arch := range []uint16{archMIPS, archMIPS64} {
		b := newBuilder()
		raw := make([]byte, 488)
		b.order.PutUint64(raw[304:], 0xdead) // dsp_control and padding
		b.order.PutUint64(raw[312:], 0x400abc)
		b.order.PutUint64(raw[336:], 0xbad)
		ctx := b.putLoc(raw)
		b.stream(SystemInfoStream, b.systemInfo(arch, platLinux))
		b.stream(ThreadListStream, b.threadList(testThread{id: 1, ctx: ctx}))

		s, _, err := Summarize(b.bytes())
		if err != nil {
			t.Fatalf("arch %#x: Summarize: %v", arch, err)
		}
		if len(s.TopFrames) != 1 || s.TopFrames[0] != "0x400abc" {
			t.Errorf("arch %#x: top_frames = %v, want [0x400abc]", arch, s.TopFrames)
		}
	}
}

func TestCrashReason(t *testing.T) {
	tests := []struct {
		name   string
		rec    exceptionRecord
		os     OS
		cpu    CPU
		reason string
	}{
		{"linux segv", exceptionRecord{code: 11, flags: 1}, OSLinux, CPUX86_64, "SIGSEGV / SEGV_MAPERR"},
		{"linux abort by user", exceptionRecord{code: 6, flags: 0}, OSLinux, CPUArm64, "SIGABRT / SI_USER"},
		{"linux tkill", exceptionRecord{code: 6, flags: 0xfffffffa}, OSAndroid, CPUArm, "SIGABRT / SI_TKILL"},
		{"linux unknown sicode", exceptionRecord{code: 11, flags: 0x55}, OSLinux, CPUX86, "SIGSEGV / 0x00000055"},
		{"linux usr1 on x86", exceptionRecord{code: 10}, OSLinux, CPUX86, "SIGUSR1 / SI_USER"},
		{"mips numbering", exceptionRecord{code: 10, flags: 2}, OSLinux, CPUMips, "SIGBUS / BUS_ADRERR"},
		{"sparc numbering", exceptionRecord{code: 30}, OSLinux, CPUSparc, "SIGUSR1 / SI_USER"},
		{"dump requested", exceptionRecord{code: 0xffffffff}, OSLinux, CPUX86_64, "DUMP_REQUESTED"},
		{"windows av read", exceptionRecord{code: 0xc0000005, params: []uint64{0, 0x10}}, OSWindows, CPUX86_64, "EXCEPTION_ACCESS_VIOLATION_READ"},
		{"windows av exec", exceptionRecord{code: 0xc0000005, params: []uint64{8}}, OSWindows, CPUArm64, "EXCEPTION_ACCESS_VIOLATION_EXEC"},
		{"windows av without params", exceptionRecord{code: 0xc0000005}, OSWindows, CPUX86, "EXCEPTION_ACCESS_VIOLATION"},
		{"windows stack overflow", exceptionRecord{code: 0xc00000fd}, OSWindows, CPUX86_64, "EXCEPTION_STACK_OVERFLOW"},
		{"wx86 breakpoint on x86", exceptionRecord{code: 0x4000001f}, OSWindows, CPUX86, "STATUS_WX86_BREAKPOINT"},
		{"wx86 breakpoint on arm64", exceptionRecord{code: 0x4000001f}, OSWindows, CPUArm64, "0x4000001f"},
		{"windows unknown", exceptionRecord{code: 0x12}, OSWindows, CPUX86, "0x00000012"},
		{"mac gpflt", exceptionRecord{code: 1, flags: 13}, OSMacOs, CPUX86_64, "EXC_BAD_ACCESS / EXC_I386_GPFLT"},
		{"mac invalid address", exceptionRecord{code: 1, flags: 1}, OSMacOs, CPUArm64, "EXC_BAD_ACCESS / KERN_INVALID_ADDRESS"},
		{"ios arm undefined", exceptionRecord{code: 2, flags: 1}, OSIos, CPUArm64, "EXC_BAD_INSTRUCTION / EXC_ARM_UNDEFINED"},
		{"mac x86 invop", exceptionRecord{code: 2, flags: 1}, OSMacOs, CPUX86, "EXC_BAD_INSTRUCTION / EXC_I386_INVOP"},
		{"mac crash no subcode", exceptionRecord{code: 10}, OSMacOs, CPUArm64, "EXC_CRASH"},
		{"solaris raw code", exceptionRecord{code: 11}, OSSolaris, CPUSparc, "0x0000000b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := crashReason(tt.rec, tt.os, tt.cpu); got != tt.reason {
				t.Errorf("crashReason = %q, want %q", got, tt.reason)
			}
		})
	}
}

func TestModules(t *testing.T) {
	b := newBuilder()
	b.stream(ModuleListStream, b.moduleList(
		testModule{base: 0x1000, size: 0x500, name: "/usr/lib/libc.so.6", version: [2]uint32{0x00020001, 0x00030004}},
		testModule{base: 0x7f0000, size: 0x2000, name: `C:\app\crashy.exe`},
	))

	s, a, err := Summarize(b.bytes())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Modules == nil || s.Modules.Count != 2 {
		t.Fatalf("modules = %+v", s.Modules)
	}
	got := s.Modules.List[0]
	want := ModuleSummary{Name: "/usr/lib/libc.so.6", Version: "2.1.3.4", BaseAddress: "0x1000", Size: 0x500}
	if got != want {
		t.Errorf("module[0] = %+v, want %+v", got, want)
	}
	if s.Modules.List[1].Version != "" || s.Modules.List[1].Name != `C:\app\crashy.exe` {
		t.Errorf("module[1] = %+v", s.Modules.List[1])
	}
	if a.Modules.Modules[0].EndAddr != "0x1500" {
		t.Errorf("end_addr = %q", a.Modules.Modules[0].EndAddr)
	}
}

func TestProjectModuleSizeUnderflow(t *testing.T) {
	got := projectModule(Module{Filename: "x", BaseAddr: "0x2000", EndAddr: "0x1000"})
	if got.Size != 0 {
		t.Errorf("size = %d, want 0", got.Size)
	}
	got = projectModule(Module{BaseAddr: "0x1000", EndAddr: "0x1500"})
	if got.Size != 0x500 {
		t.Errorf("size = %#x, want 0x500", got.Size)
	}
}

func TestModuleAtTopOfAddressSpace(t *testing.T) {
	b := newBuilder()
	b.stream(ModuleListStream, b.moduleList(testModule{base: 0xffffffffffff0000, size: 0x20000, name: "vdso"}))

	s, a, err := Summarize(b.bytes())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got := s.Modules.List[0].Size; got != 0x20000 {
		t.Errorf("size = %#x, want 0x20000", got)
	}
	m := a.Modules.Modules[0]
	if m.EndAddr != "0xffffffffffffffff" || m.Size != 0x20000 {
		t.Errorf("module = %+v", m)
	}
}

func TestMemoryRegionsVariant(t *testing.T) {
	tests := []struct {
		name   string
		build  func(b *dumpBuilder)
		source string
		count  int
		errKey string
	}{
		{
			name: "info list wins",
			build: func(b *dumpBuilder) {
				b.stream(MemoryListStream, b.memoryList(2))
				b.stream(MemoryInfoListStream, b.memoryInfoList(5))
			},
			source: SourceMemoryInfoList, count: 5,
		},
		{
			name:   "legacy only",
			build:  func(b *dumpBuilder) { b.stream(MemoryListStream, b.memoryList(3)) },
			source: SourceMemoryList, count: 3,
		},
		{
			name: "broken info list falls back",
			build: func(b *dumpBuilder) {
				b.stream(MemoryInfoListStream, b.raw(uint32(16), uint32(48), uint64(1000)))
				b.stream(MemoryListStream, b.memoryList(1))
			},
			source: SourceMemoryList, count: 1, errKey: "memory_info_list",
		},
		{
			name:  "none",
			build: func(b *dumpBuilder) {},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder()
			tt.build(b)
			a, err := Analyze(b.bytes())
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if tt.source == "" {
				if a.MemoryRegions != nil {
					t.Fatalf("memory regions = %+v, want absent", a.MemoryRegions)
				}
				return
			}
			if a.MemoryRegions == nil || a.MemoryRegions.Source != tt.source || a.MemoryRegions.Count != tt.count {
				t.Errorf("memory regions = %+v, want %s/%d", a.MemoryRegions, tt.source, tt.count)
			}
			if tt.errKey != "" {
				if _, ok := a.StreamErrors[tt.errKey]; !ok {
					t.Errorf("stream errors = %v, want %s", a.StreamErrors, tt.errKey)
				}
			}
		})
	}
}

func TestUnloadedModules(t *testing.T) {
	b := newBuilder()
	b.stream(UnloadedModuleListStream, b.unloadedModules(3))
	s, _, err := Summarize(b.bytes())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.UnloadedModuleCount == nil || *s.UnloadedModuleCount != 3 {
		t.Errorf("unloaded_module_count = %v", s.UnloadedModuleCount)
	}
}

func TestMiscInfoUnsetFieldsAreNull(t *testing.T) {
	b := newBuilder()
	b.stream(MiscInfoStream, b.miscInfo2(misc1ProcessID, 4242, 1700000000, 3400, 2100))

	s, _, err := Summarize(b.bytes())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	m := s.MiscInfo
	if m == nil || m.ProcessID == nil || *m.ProcessID != 4242 {
		t.Fatalf("misc_info = %+v", m)
	}
	if m.ProcessCreateTime != nil || m.ProcessorMaxMHz != nil || m.ProcessorCurrentMHz != nil {
		t.Errorf("unset fields populated: %+v", m)
	}
	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Contains(out, []byte(`"process_create_time":null`)) {
		t.Errorf("summary json = %s", out)
	}
}

func TestMiscInfoPowerInfo(t *testing.T) {
	b := newBuilder()
	flags := uint32(misc1ProcessID | misc1ProcessTimes | misc1ProcessorPowerInfo)
	b.stream(MiscInfoStream, b.miscInfo2(flags, 1, 1700000000, 3400, 2100))

	a, err := Analyze(b.bytes())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	m := a.MiscInfo
	if m.ProcessCreateTime == nil || *m.ProcessCreateTime != 1700000000 {
		t.Errorf("process_create_time = %v", m.ProcessCreateTime)
	}
	if m.ProcessorMaxMHz == nil || *m.ProcessorMaxMHz != 3400 || *m.ProcessorCurrentMHz != 2100 {
		t.Errorf("power info = %v / %v", m.ProcessorMaxMHz, m.ProcessorCurrentMHz)
	}
}

func TestCorruptStreamIsIsolated(t *testing.T) {
	b := newBuilder()
	b.stream(SystemInfoStream, b.systemInfo(archAMD64, platLinux))
	b.rawStream(ThreadListStream, location{size: 4096, rva: 0xfffff})
	b.stream(ExceptionStream, []byte{1, 2, 3})
	b.stream(ModuleListStream, b.moduleList(testModule{base: 0x1000, size: 0x10, name: "a.so"}))

	s, a, err := Summarize(b.bytes())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.ThreadCount != nil || s.Exception != nil {
		t.Errorf("broken streams leaked into summary: %+v", s)
	}
	if s.Modules == nil || s.Modules.Count != 1 || s.OS == nil {
		t.Errorf("healthy streams lost: %+v", s)
	}
	for _, k := range []string{"thread_list", "exception"} {
		if _, ok := a.StreamErrors[k]; !ok {
			t.Errorf("stream errors = %v, missing %s", a.StreamErrors, k)
		}
	}
}

func TestSummarizeIsDeterministic(t *testing.T) {
	b := newBuilder()
	ctx := b.putLoc(b.amd64Context(0x401000, 1232))
	b.stream(SystemInfoStream, b.systemInfo(archAMD64, platLinux))
	b.stream(ExceptionStream, b.exception(1, 11, 1, 0, nil, ctx))
	b.stream(ThreadListStream, b.threadList(testThread{id: 1, ctx: ctx}))
	b.stream(ModuleListStream, b.moduleList(testModule{base: 0x400000, size: 0x1000, name: "crashy"}))
	b.stream(MiscInfoStream, b.miscInfo2(misc1ProcessID, 9, 0, 0, 0))
	data := b.bytes()

	first, _, err := Summarize(data)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	second, _, err := Summarize(data)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	j1, _ := json.Marshal(first)
	j2, _ := json.Marshal(second)
	if !bytes.Equal(j1, j2) {
		t.Errorf("summaries differ:\n%s\n%s", j1, j2)
	}
	if first.Exception.Reason != "SIGSEGV / SEGV_MAPERR" {
		t.Errorf("reason = %q", first.Exception.Reason)
	}
}

func TestPoolSummarize(t *testing.T) {
	b := newBuilder()
	b.stream(SystemInfoStream, b.systemInfo(archARM, platLinux))
	p := NewPool(2, time.Second)

	res, err := p.Summarize(context.Background(), b.bytes())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Summary.OS == nil || res.Summary.OS.CPU != "Arm" || res.Analysis == nil {
		t.Errorf("result = %+v", res)
	}

	if _, err := p.Summarize(context.Background(), []byte("nope")); !errors.Is(err, ErrNotMinidump) {
		t.Errorf("err = %v, want ErrNotMinidump", err)
	}
}

func TestPoolHonorsContext(t *testing.T) {
	p := NewPool(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Summarize(ctx, newBuilder().bytes()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
