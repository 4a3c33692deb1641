package minidump

import "fmt"

// exceptionRecord holds the MINIDUMP_EXCEPTION fields crash-reason decoding
// needs.
type exceptionRecord struct {
	code    uint32
	flags   uint32
	address uint64
	params  []uint64
}

const unknownReason = "Unknown"

// crashReason names why the process faulted. The same raw code means
// different things per OS, and some subcodes differ per CPU.
func crashReason(e exceptionRecord, os OS, cpu CPU) string {
	switch os {
	case OSLinux, OSAndroid:
		return linuxReason(e, cpu)
	case OSWindows:
		return windowsReason(e, cpu)
	case OSMacOs, OSIos:
		return machReason(e, cpu)
	}
	return fmt.Sprintf("%#08x", e.code)
}

func withSubcode(name string, sub uint32, names map[uint32]string) string {
	if s, ok := names[sub]; ok {
		return name + " / " + s
	}
	return fmt.Sprintf("%s / %#08x", name, sub)
}

// Linux: code is the signal number, flags is si_code.

var linuxSignals = map[uint32]string{
	1: "SIGHUP", 2: "SIGINT", 3: "SIGQUIT", 4: "SIGILL", 5: "SIGTRAP", 6: "SIGABRT",
	7: "SIGBUS", 8: "SIGFPE", 9: "SIGKILL", 10: "SIGUSR1", 11: "SIGSEGV", 12: "SIGUSR2",
	13: "SIGPIPE", 14: "SIGALRM", 15: "SIGTERM", 16: "SIGSTKFLT", 17: "SIGCHLD", 18: "SIGCONT",
	19: "SIGSTOP", 20: "SIGTSTP", 21: "SIGTTIN", 22: "SIGTTOU", 23: "SIGURG", 24: "SIGXCPU",
	25: "SIGXFSZ", 26: "SIGVTALRM", 27: "SIGPROF", 28: "SIGWINCH", 29: "SIGIO", 30: "SIGPWR",
	31: "SIGSYS",
}

var mipsSignals = map[uint32]string{
	1: "SIGHUP", 2: "SIGINT", 3: "SIGQUIT", 4: "SIGILL", 5: "SIGTRAP", 6: "SIGABRT",
	7: "SIGEMT", 8: "SIGFPE", 9: "SIGKILL", 10: "SIGBUS", 11: "SIGSEGV", 12: "SIGSYS",
	13: "SIGPIPE", 14: "SIGALRM", 15: "SIGTERM", 16: "SIGUSR1", 17: "SIGUSR2", 18: "SIGCHLD",
	19: "SIGPWR", 20: "SIGWINCH", 21: "SIGURG", 22: "SIGIO", 23: "SIGSTOP", 24: "SIGTSTP",
	25: "SIGCONT", 26: "SIGTTIN", 27: "SIGTTOU", 28: "SIGVTALRM", 29: "SIGPROF", 30: "SIGXCPU",
	31: "SIGXFSZ",
}

var sparcSignals = map[uint32]string{
	1: "SIGHUP", 2: "SIGINT", 3: "SIGQUIT", 4: "SIGILL", 5: "SIGTRAP", 6: "SIGABRT",
	7: "SIGEMT", 8: "SIGFPE", 9: "SIGKILL", 10: "SIGBUS", 11: "SIGSEGV", 12: "SIGSYS",
	13: "SIGPIPE", 14: "SIGALRM", 15: "SIGTERM", 16: "SIGURG", 17: "SIGSTOP", 18: "SIGTSTP",
	19: "SIGCONT", 20: "SIGCHLD", 21: "SIGTTIN", 22: "SIGTTOU", 23: "SIGIO", 24: "SIGXCPU",
	25: "SIGXFSZ", 26: "SIGVTALRM", 27: "SIGPROF", 28: "SIGWINCH", 29: "SIGPWR", 30: "SIGUSR1",
	31: "SIGUSR2",
}

var linuxSigCodes = map[string]map[uint32]string{
	"SIGSEGV": {1: "SEGV_MAPERR", 2: "SEGV_ACCERR", 3: "SEGV_BNDERR", 4: "SEGV_PKUERR"},
	"SIGBUS":  {1: "BUS_ADRALN", 2: "BUS_ADRERR", 3: "BUS_OBJERR", 4: "BUS_MCEERR_AR", 5: "BUS_MCEERR_AO"},
	"SIGFPE": {1: "FPE_INTDIV", 2: "FPE_INTOVF", 3: "FPE_FLTDIV", 4: "FPE_FLTOVF",
		5: "FPE_FLTUND", 6: "FPE_FLTRES", 7: "FPE_FLTINV", 8: "FPE_FLTSUB"},
	"SIGILL": {1: "ILL_ILLOPC", 2: "ILL_ILLOPN", 3: "ILL_ILLADR", 4: "ILL_ILLTRP",
		5: "ILL_PRVOPC", 6: "ILL_PRVREG", 7: "ILL_COPROC", 8: "ILL_BADSTK"},
	"SIGTRAP": {1: "TRAP_BRKPT", 2: "TRAP_TRACE", 3: "TRAP_BRANCH", 4: "TRAP_HWBKPT"},
}

// si_code values shared by every signal. Negative codes arrive as uint32.
var linuxGenericCodes = map[uint32]string{
	0:          "SI_USER",
	0x80:       "SI_KERNEL",
	0xffffffff: "SI_QUEUE",
	0xfffffffe: "SI_TIMER",
	0xfffffffd: "SI_MESGQ",
	0xfffffffc: "SI_ASYNCIO",
	0xfffffffb: "SI_SIGIO",
	0xfffffffa: "SI_TKILL",
}

// Breakpad writes this code for dumps requested without a crash.
const dumpRequested = 0xffffffff

func linuxReason(e exceptionRecord, cpu CPU) string {
	if e.code == dumpRequested {
		return "DUMP_REQUESTED"
	}
	signals := linuxSignals
	switch {
	case cpu.is(CPUMips, CPUMips64):
		signals = mipsSignals
	case cpu.is(CPUSparc):
		signals = sparcSignals
	}
	name, ok := signals[e.code]
	if !ok {
		return fmt.Sprintf("%#08x", e.code)
	}
	if s, ok := linuxSigCodes[name][e.flags]; ok {
		return name + " / " + s
	}
	return withSubcode(name, e.flags, linuxGenericCodes)
}

// Windows: code is an NTSTATUS.

var windowsCodes = map[uint32]string{
	0x40010005: "DBG_CONTROL_C",
	0x80000002: "EXCEPTION_DATATYPE_MISALIGNMENT",
	0x80000003: "EXCEPTION_BREAKPOINT",
	0x80000004: "EXCEPTION_SINGLE_STEP",
	0xc0000005: "EXCEPTION_ACCESS_VIOLATION",
	0xc0000006: "EXCEPTION_IN_PAGE_ERROR",
	0xc0000008: "EXCEPTION_INVALID_HANDLE",
	0xc000001d: "EXCEPTION_ILLEGAL_INSTRUCTION",
	0xc0000025: "EXCEPTION_NONCONTINUABLE_EXCEPTION",
	0xc0000026: "EXCEPTION_INVALID_DISPOSITION",
	0xc000008c: "EXCEPTION_ARRAY_BOUNDS_EXCEEDED",
	0xc000008d: "EXCEPTION_FLT_DENORMAL_OPERAND",
	0xc000008e: "EXCEPTION_FLT_DIVIDE_BY_ZERO",
	0xc000008f: "EXCEPTION_FLT_INEXACT_RESULT",
	0xc0000090: "EXCEPTION_FLT_INVALID_OPERATION",
	0xc0000091: "EXCEPTION_FLT_OVERFLOW",
	0xc0000092: "EXCEPTION_FLT_STACK_CHECK",
	0xc0000093: "EXCEPTION_FLT_UNDERFLOW",
	0xc0000094: "EXCEPTION_INT_DIVIDE_BY_ZERO",
	0xc0000095: "EXCEPTION_INT_OVERFLOW",
	0xc0000096: "EXCEPTION_PRIV_INSTRUCTION",
	0xc00000fd: "EXCEPTION_STACK_OVERFLOW",
	0xc0000194: "EXCEPTION_POSSIBLE_DEADLOCK",
	0xc0000374: "STATUS_HEAP_CORRUPTION",
	0xc0000409: "STATUS_STACK_BUFFER_OVERRUN",
	0xc0000417: "STATUS_INVALID_CRUNTIME_PARAMETER",
	0xe06d7363: "EXCEPTION_CXX",
}

const (
	statusAccessViolation = 0xc0000005
	statusInPageError     = 0xc0000006
	statusWX86Breakpoint  = 0x4000001f
)

// ExceptionInformation[0] of an access violation.
var accessKinds = map[uint64]string{0: "_READ", 1: "_WRITE", 8: "_EXEC"}

func windowsReason(e exceptionRecord, cpu CPU) string {
	switch e.code {
	case statusAccessViolation, statusInPageError:
		name := windowsCodes[e.code]
		if len(e.params) > 0 {
			name += accessKinds[e.params[0]]
		}
		return name
	case statusWX86Breakpoint:
		// Only raised by the WOW64 x86 emulator.
		if cpu.is(CPUX86, CPUX86_64) {
			return "STATUS_WX86_BREAKPOINT"
		}
	}
	if name, ok := windowsCodes[e.code]; ok {
		return name
	}
	return fmt.Sprintf("%#08x", e.code)
}

// macOS and iOS: code is the Mach exception type, flags its first code.

const (
	excBadAccess      = 1
	excBadInstruction = 2
	excArithmetic     = 3
	excBreakpoint     = 6
)

var machTypes = map[uint32]string{
	1: "EXC_BAD_ACCESS", 2: "EXC_BAD_INSTRUCTION", 3: "EXC_ARITHMETIC", 4: "EXC_EMULATION",
	5: "EXC_SOFTWARE", 6: "EXC_BREAKPOINT", 7: "EXC_SYSCALL", 8: "EXC_MACH_SYSCALL",
	9: "EXC_RPC_ALERT", 10: "EXC_CRASH", 11: "EXC_RESOURCE", 12: "EXC_GUARD",
	0x43507378: "SIMULATED",
}

var kernCodes = map[uint32]string{
	1: "KERN_INVALID_ADDRESS", 2: "KERN_PROTECTION_FAILURE", 8: "KERN_NO_ACCESS",
	9: "KERN_MEMORY_FAILURE", 10: "KERN_MEMORY_ERROR", 50: "KERN_CODESIGN_ERROR",
}

type machArch int

const (
	machOther machArch = iota
	machX86
	machArm
	machPpc
)

func machArchOf(cpu CPU) machArch {
	switch {
	case cpu.is(CPUX86, CPUX86_64):
		return machX86
	case cpu.is(CPUArm, CPUArm64):
		return machArm
	case cpu.is(CPUPpc, CPUPpc64):
		return machPpc
	}
	return machOther
}

// machSubcodes[type][arch] lists the CPU-specific codes of a Mach exception.
var machSubcodes = map[uint32]map[machArch]map[uint32]string{
	excBadAccess: {
		machX86: {13: "EXC_I386_GPFLT"},
		machArm: {0x101: "EXC_ARM_DA_ALIGN", 0x102: "EXC_ARM_DA_DEBUG", 0x103: "EXC_ARM_SP_ALIGN", 0x104: "EXC_ARM_SWP"},
		machPpc: {0x101: "EXC_PPC_VM_PROT_READ", 0x102: "EXC_PPC_BADSPACE", 0x103: "EXC_PPC_UNALIGNED"},
	},
	excBadInstruction: {
		machX86: {1: "EXC_I386_INVOP"},
		machArm: {1: "EXC_ARM_UNDEFINED"},
		machPpc: {1: "EXC_PPC_INVALID_SYSCALL", 2: "EXC_PPC_UNIPL_INST", 3: "EXC_PPC_PRIVINST",
			4: "EXC_PPC_PRIVREG", 5: "EXC_PPC_TRACE", 6: "EXC_PPC_PERFMON"},
	},
	excArithmetic: {
		machX86: {1: "EXC_I386_DIV", 2: "EXC_I386_INTO", 3: "EXC_I386_NOEXT", 4: "EXC_I386_EXTOVR",
			5: "EXC_I386_EXTERR", 6: "EXC_I386_EMERR", 7: "EXC_I386_BOUND", 8: "EXC_I386_SSEEXTERR"},
		machArm: {1: "EXC_ARM_FP_IO", 2: "EXC_ARM_FP_DZ", 3: "EXC_ARM_FP_OF", 4: "EXC_ARM_FP_UF",
			5: "EXC_ARM_FP_IX", 6: "EXC_ARM_FP_ID"},
		machPpc: {1: "EXC_PPC_OVERFLOW", 2: "EXC_PPC_ZERO_DIVIDE", 3: "EXC_PPC_FLT_INEXACT",
			4: "EXC_PPC_FLT_ZERO_DIVIDE", 5: "EXC_PPC_FLT_UNDERFLOW", 6: "EXC_PPC_FLT_OVERFLOW",
			7: "EXC_PPC_FLT_NOT_A_NUMBER"},
	},
	excBreakpoint: {
		machX86: {1: "EXC_I386_SGL", 2: "EXC_I386_BPT"},
		machArm: {1: "EXC_ARM_BREAKPOINT"},
		machPpc: {1: "EXC_PPC_BREAKPOINT"},
	},
}

func machReason(e exceptionRecord, cpu CPU) string {
	name, ok := machTypes[e.code]
	if !ok {
		return fmt.Sprintf("%#08x", e.code)
	}
	if s, ok := machSubcodes[e.code][machArchOf(cpu)][e.flags]; ok {
		return name + " / " + s
	}
	if e.code == excBadAccess {
		return withSubcode(name, e.flags, kernCodes)
	}
	if e.flags == 0 {
		return name
	}
	return fmt.Sprintf("%s / %#08x", name, e.flags)
}
