package minidump

// Analysis is the full decoded structure of a snapshot. Every section is
// optional; StreamErrors records sections that were present but unusable.
type Analysis struct {
	SystemInfo      *SystemInfo       `json:"system_info,omitempty"`
	CrashInfo       *CrashInfo        `json:"crash_info,omitempty"`
	Threads         *ThreadList       `json:"threads,omitempty"`
	MiscInfo        *MiscInfo         `json:"misc_info,omitempty"`
	Modules         *ModuleList       `json:"modules,omitempty"`
	UnloadedModules *UnloadedModules  `json:"unloaded_modules,omitempty"`
	MemoryRegions   *MemoryRegions    `json:"memory_regions,omitempty"`
	StreamErrors    map[string]string `json:"stream_errors,omitempty"`
}

// Analyze decodes a minidump. It fails only when the header or stream
// directory is unusable; stream-level problems degrade to absent fields.
func Analyze(data []byte) (*Analysis, error) {
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}
	a := &Analysis{}

	if v, ok, err := r.stream(SystemInfoStream); ok {
		if err == nil {
			a.SystemInfo, err = decodeSystemInfo(r, v)
		}
		a.fail("system_info", err)
	}

	if v, ok, err := r.stream(MiscInfoStream); ok {
		if err == nil {
			a.MiscInfo, err = decodeMiscInfo(v)
		}
		a.fail("misc_info", err)
	}

	var exc *exceptionStream
	if v, ok, err := r.stream(ExceptionStream); ok {
		if err == nil {
			exc, err = decodeException(v)
		}
		a.fail("exception", err)
	}
	if exc != nil {
		a.CrashInfo = a.crashInfo(exc)
	}

	if v, ok, err := r.stream(ThreadListStream); ok {
		var raw []rawThread
		if err == nil {
			raw, err = decodeThreads(v)
		}
		a.fail("thread_list", err)
		if err == nil {
			a.Threads = a.resolveThreads(r, raw, exc)
		}
	}

	if v, ok, err := r.stream(ModuleListStream); ok {
		if err == nil {
			a.Modules, err = decodeModules(r, v)
		}
		a.fail("module_list", err)
	}

	if v, ok, err := r.stream(UnloadedModuleListStream); ok {
		if err == nil {
			a.UnloadedModules, err = decodeUnloadedModules(v)
		}
		a.fail("unloaded_module_list", err)
	}

	a.MemoryRegions = a.memoryRegions(r)
	return a, nil
}

func (a *Analysis) fail(stream string, err error) {
	if err == nil {
		return
	}
	if a.StreamErrors == nil {
		a.StreamErrors = make(map[string]string)
	}
	a.StreamErrors[stream] = err.Error()
}

func (a *Analysis) crashInfo(exc *exceptionStream) *CrashInfo {
	reason := unknownReason
	if a.SystemInfo != nil {
		reason = crashReason(exc.record, a.SystemInfo.os, a.SystemInfo.cpu)
	}
	return &CrashInfo{
		Type:    reason,
		Code:    hex(uint64(exc.record.code)),
		Flags:   hex(uint64(exc.record.flags)),
		Address: hex(exc.record.address),
		Thread:  exc.threadID,
	}
}

// resolveThreads pairs each thread with its instruction pointer. The crashing
// thread uses the exception context when it resolves, since the thread list
// entry may hold the handler's state instead.
func (a *Analysis) resolveThreads(r *reader, raw []rawThread, exc *exceptionStream) *ThreadList {
	list := &ThreadList{Count: len(raw), Threads: make([]Thread, 0, len(raw))}
	for _, t := range raw {
		ip := unavailable
		if a.SystemInfo != nil {
			if exc != nil && exc.threadID == t.id {
				if pc, ok := a.pc(r, exc.context); ok {
					ip = hex(pc)
				}
			}
			if ip == unavailable {
				if pc, ok := a.pc(r, t.context); ok {
					ip = hex(pc)
				}
			}
		}
		list.Threads = append(list.Threads, Thread{
			ThreadID:           t.id,
			InstructionPointer: ip,
			StackStart:         hex(t.stackStart),
		})
	}
	return list
}

func (a *Analysis) pc(r *reader, loc location) (uint64, bool) {
	if loc.empty() {
		return 0, false
	}
	ctx, err := r.at(loc)
	if err != nil {
		return 0, false
	}
	return instructionPointer(ctx, a.SystemInfo.cpu, a.MiscInfo)
}

// memoryRegions takes the memory info list when it decodes, else the memory
// list. The two are never combined.
func (a *Analysis) memoryRegions(r *reader) *MemoryRegions {
	if v, ok, err := r.stream(MemoryInfoListStream); ok {
		var m *MemoryRegions
		if err == nil {
			m, err = decodeMemoryInfoList(v)
		}
		if err == nil {
			return m
		}
		a.fail("memory_info_list", err)
	}
	if v, ok, err := r.stream(MemoryListStream); ok {
		var m *MemoryRegions
		if err == nil {
			m, err = decodeMemoryList(v)
		}
		if err == nil {
			return m
		}
		a.fail("memory_list", err)
	}
	return nil
}
