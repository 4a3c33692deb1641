package minidump

import (
	"strconv"
	"strings"
)

// Summary is the stable triage view of a snapshot. Every field is optional
// and independent of the others.
type Summary struct {
	OS                  *OSSummary        `json:"os,omitempty"`
	Exception           *ExceptionSummary `json:"exception,omitempty"`
	ThreadCount         *int              `json:"thread_count,omitempty"`
	TopFrames           []string          `json:"top_frames,omitempty"`
	MiscInfo            *MiscSummary      `json:"misc_info,omitempty"`
	Modules             *ModulesSummary   `json:"modules,omitempty"`
	UnloadedModuleCount *int              `json:"unloaded_module_count,omitempty"`
	MemoryRegions       *int              `json:"memory_regions,omitempty"`
}

type OSSummary struct {
	Family string `json:"family"`
	CPU    string `json:"cpu"`
}

type ExceptionSummary struct {
	Reason   string `json:"reason"`
	ThreadID uint32 `json:"thread_id"`
}

// MiscSummary keeps unpopulated values as explicit nulls.
type MiscSummary struct {
	ProcessID           *uint32 `json:"process_id"`
	ProcessCreateTime   *uint32 `json:"process_create_time"`
	ProcessorMaxMHz     *uint32 `json:"processor_max_mhz"`
	ProcessorCurrentMHz *uint32 `json:"processor_current_mhz"`
}

type ModulesSummary struct {
	Count int             `json:"count"`
	List  []ModuleSummary `json:"list"`
}

type ModuleSummary struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	BaseAddress string `json:"base_address"`
	Size        uint64 `json:"size"`
}

// Project derives the summary from a full analysis. It is deterministic and
// never fails.
func Project(a *Analysis) Summary {
	var s Summary
	if a == nil {
		return s
	}
	if si := a.SystemInfo; si != nil {
		s.OS = &OSSummary{Family: si.OS, CPU: si.CPUArch}
	}
	if ci := a.CrashInfo; ci != nil {
		s.Exception = &ExceptionSummary{Reason: ci.Type, ThreadID: ci.Thread}
	}
	if tl := a.Threads; tl != nil {
		n := tl.Count
		s.ThreadCount = &n
		s.TopFrames = make([]string, 0, len(tl.Threads))
		for _, t := range tl.Threads {
			s.TopFrames = append(s.TopFrames, t.InstructionPointer)
		}
	}
	if m := a.MiscInfo; m != nil {
		s.MiscInfo = &MiscSummary{
			ProcessID:           m.ProcessID,
			ProcessCreateTime:   m.ProcessCreateTime,
			ProcessorMaxMHz:     m.ProcessorMaxMHz,
			ProcessorCurrentMHz: m.ProcessorCurrentMHz,
		}
	}
	if ml := a.Modules; ml != nil {
		list := make([]ModuleSummary, 0, len(ml.Modules))
		for _, m := range ml.Modules {
			list = append(list, projectModule(m))
		}
		s.Modules = &ModulesSummary{Count: len(list), List: list}
	}
	if u := a.UnloadedModules; u != nil {
		n := u.Count
		s.UnloadedModuleCount = &n
	}
	if mr := a.MemoryRegions; mr != nil {
		n := mr.Count
		s.MemoryRegions = &n
	}
	return s
}

// projectModule takes the size from the module's image size, or else from
// its base/end address pair. An end below the base yields size 0.
func projectModule(m Module) ModuleSummary {
	out := ModuleSummary{Name: m.Filename, Version: m.Version, BaseAddress: m.BaseAddr}
	if m.Size > 0 {
		out.Size = m.Size
		return out
	}
	base, okBase := parseHex(m.BaseAddr)
	end, okEnd := parseHex(m.EndAddr)
	if okBase && okEnd && end >= base {
		out.Size = end - base
	}
	return out
}

func parseHex(s string) (uint64, bool) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	return v, err == nil
}

// Summarize analyzes data and projects the summary from the analysis.
func Summarize(data []byte) (Summary, *Analysis, error) {
	a, err := Analyze(data)
	if err != nil {
		return Summary{}, nil, err
	}
	return Project(a), a, nil
}
