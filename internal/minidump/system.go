package minidump

import (
	"fmt"
	"strings"
)

type OS int

const (
	OSUnknown OS = iota
	OSWindows
	OSMacOs
	OSIos
	OSLinux
	OSSolaris
	OSAndroid
	OSPs3
	OSNaCl
	OSFuchsia
	OSUnix
)

var osNames = map[OS]string{
	OSWindows: "Windows",
	OSMacOs:   "MacOs",
	OSIos:     "Ios",
	OSLinux:   "Linux",
	OSSolaris: "Solaris",
	OSAndroid: "Android",
	OSPs3:     "Ps3",
	OSNaCl:    "NaCl",
	OSFuchsia: "Fuchsia",
	OSUnix:    "Unix",
}

// osFromPlatform maps MINIDUMP_SYSTEM_INFO.PlatformId.
func osFromPlatform(id uint32) OS {
	switch id {
	case 0, 1, 2, 3: // VER_PLATFORM_WIN32s, _WIN32_WINDOWS, _WIN32_NT, _WIN32_CE
		return OSWindows
	case 0x8000:
		return OSUnix
	case 0x8101:
		return OSMacOs
	case 0x8102:
		return OSIos
	case 0x8201:
		return OSLinux
	case 0x8202:
		return OSSolaris
	case 0x8203:
		return OSAndroid
	case 0x8204:
		return OSPs3
	case 0x8205:
		return OSNaCl
	case 0x8206:
		return OSFuchsia
	}
	return OSUnknown
}

type CPU int

const (
	CPUUnknown CPU = iota
	CPUX86
	CPUX86_64
	CPUPpc
	CPUPpc64
	CPUSparc
	CPUArm
	CPUArm64
	CPUMips
	CPUMips64
)

var cpuNames = map[CPU]string{
	CPUX86:    "X86",
	CPUX86_64: "X86_64",
	CPUPpc:    "Ppc",
	CPUPpc64:  "Ppc64",
	CPUSparc:  "Sparc",
	CPUArm:    "Arm",
	CPUArm64:  "Arm64",
	CPUMips:   "Mips",
	CPUMips64: "Mips64",
}

// cpuFromArch maps MINIDUMP_SYSTEM_INFO.ProcessorArchitecture, including the
// Breakpad extensions above 0x8000.
func cpuFromArch(arch uint16) CPU {
	switch arch {
	case 0, 10: // PROCESSOR_ARCHITECTURE_INTEL, _IA32_ON_WIN64
		return CPUX86
	case 1:
		return CPUMips
	case 3:
		return CPUPpc
	case 5:
		return CPUArm
	case 9:
		return CPUX86_64
	case 12, 0x8003:
		return CPUArm64
	case 0x8001:
		return CPUSparc
	case 0x8002:
		return CPUPpc64
	case 0x8004:
		return CPUMips64
	}
	return CPUUnknown
}

func (c CPU) is(cpus ...CPU) bool {
	for _, x := range cpus {
		if c == x {
			return true
		}
	}
	return false
}

// SystemInfo is the decoded MINIDUMP_SYSTEM_INFO stream.
type SystemInfo struct {
	OS        string `json:"os"`
	OSVersion string `json:"os_ver,omitempty"`
	CPUArch   string `json:"cpu_arch"`
	CPUCount  uint8  `json:"cpu_count"`
	CPUInfo   string `json:"cpu_info,omitempty"`

	os  OS
	cpu CPU
}

const systemInfoSize = 56

func decodeSystemInfo(r *reader, v view) (*SystemInfo, error) {
	if v.len() < systemInfoSize {
		return nil, fmt.Errorf("system info: %d bytes, want %d", v.len(), systemInfoSize)
	}
	arch := v.u16(0)
	platform := v.u32(20)
	si := &SystemInfo{
		CPUCount: v.u8(6),
		os:       osFromPlatform(platform),
		cpu:      cpuFromArch(arch),
	}

	si.OS = osNames[si.os]
	if si.os == OSUnknown {
		si.OS = fmt.Sprintf("Unknown(%#x)", platform)
	}
	si.CPUArch = cpuNames[si.cpu]
	if si.cpu == CPUUnknown {
		si.CPUArch = fmt.Sprintf("Unknown(%#x)", arch)
	}

	si.OSVersion = fmt.Sprintf("%d.%d.%d", v.u32(8), v.u32(12), v.u32(16))
	if rva := v.u32(24); rva != 0 {
		// A broken service pack string is not worth losing the stream over.
		if csd, err := r.readString(rva); err == nil && csd != "" {
			si.OSVersion += " " + csd
		}
	}

	if si.cpu.is(CPUX86, CPUX86_64) {
		vendor := strings.TrimRight(string(v.b[32:44]), "\x00")
		if vendor != "" {
			rev := v.u16(4)
			si.CPUInfo = fmt.Sprintf("%s family %d model %d stepping %d", vendor, v.u16(2), rev>>8, rev&0xff)
		}
	}
	return si, nil
}
