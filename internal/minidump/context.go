package minidump

// pcLayout locates the program counter inside a raw CPU context.
type pcLayout struct {
	offset int
	width  int
	// size of the fixed Windows CONTEXT layout; larger blobs carry XSAVE
	// state and are only trusted when misc info reports their size.
	fixedSize int
}

var pcLayouts = map[CPU]pcLayout{
	CPUX86:    {offset: 184, width: 4, fixedSize: 716},  // eip
	CPUX86_64: {offset: 248, width: 8, fixedSize: 1232}, // rip
	CPUArm:    {offset: 64, width: 4},                   // iregs[15]
	CPUArm64:  {offset: 264, width: 8},                  // pc, same offset in both Breakpad layouts
	CPUPpc:    {offset: 4, width: 4},                    // srr0
	CPUPpc64:  {offset: 8, width: 8},                    // srr0
	CPUSparc:  {offset: 272, width: 8},                  // pc
	CPUMips:   {offset: 312, width: 8},                  // epc, after the u32 hi/lo/dsp_control
	CPUMips64: {offset: 312, width: 8},                  // epc
}

// instructionPointer reads the program counter of ctx for the given CPU.
// ok is false when the layout is unknown or the blob does not fit it.
func instructionPointer(ctx view, cpu CPU, misc *MiscInfo) (uint64, bool) {
	l, known := pcLayouts[cpu]
	if !known || ctx.len() < l.offset+l.width {
		return 0, false
	}
	if l.fixedSize > 0 {
		switch {
		case ctx.len() < l.fixedSize:
			return 0, false
		case ctx.len() > l.fixedSize:
			if misc == nil || misc.XStateContextSize == 0 || uint32(ctx.len()) > misc.XStateContextSize {
				return 0, false
			}
		}
	}
	if l.width == 4 {
		return uint64(ctx.u32(l.offset)), true
	}
	return ctx.u64(l.offset), true
}
