package winproc

import (
	"fmt"

	"github.com/emberforge/wincore/core"
)

const (
	StackSize    = 0x40000
	StackAddress = 0x0000_8000_0000_0000 - StackSize

	GsSegmentAddr = 0x0600_0000
	GsSegmentSize = 20 << 20

	KusdAddress = 0x7ffe_0000

	Ia32GsBaseMsr = 0xC000_0101
)

// ProcessContext owns everything the process builder constructed: the
// mapped executable and ntdll, the GS bump region, and typed refs to the
// structures guest code walks to find its own environment. It outlives the
// emulator run; nothing frees it explicitly; when the emulator is dropped so
// is every region it logically owns.
type ProcessContext struct {
	Emu core.Emulator

	Kusd            core.Ref[Kusd]
	GsSegment       *core.BumpAllocator
	Teb             core.Ref[TEB]
	Peb             core.Ref[PEB]
	ProcessParams   core.Ref[RtlUserProcessParameters]

	Executable MappedBinary
	Ntdll      MappedBinary
}

func setupStack(emu core.Emulator, base, size uint64) error {
	if err := emu.AllocateMemory(base, size, core.PermRead|core.PermWrite); err != nil {
		return fmt.Errorf("mapping stack: %w", err)
	}
	return emu.SetReg(core.RegRsp, base+size)
}

func setupGsSegment(emu core.Emulator, base, size uint64) (*core.BumpAllocator, error) {
	if err := emu.WriteMSR(Ia32GsBaseMsr, base); err != nil {
		return nil, fmt.Errorf("setting IA32_GS_BASE: %w", err)
	}
	if err := emu.AllocateMemory(base, size, core.PermRead|core.PermWrite); err != nil {
		return nil, fmt.Errorf("mapping GS segment: %w", err)
	}
	return core.NewBumpAllocator(emu, base, size), nil
}

// BuildProcess constructs the stack, GS segment, KUSD, TEB, PEB, and process
// parameters for a new process, leaving executable/ntdll unmapped: callers
// map those with MapExecutable (which also sets PEB.ImageBaseAddress) and
// MapNtdll, since only the caller knows the two module byte buffers.
func BuildProcess(emu core.Emulator, imagePath, commandLine string) (*ProcessContext, error) {
	if err := setupStack(emu, StackAddress, StackSize); err != nil {
		return nil, err
	}

	kusd, err := setupKusd(emu, KusdAddress)
	if err != nil {
		return nil, fmt.Errorf("setting up KUSD: %w", err)
	}

	gs, err := setupGsSegment(emu, GsSegmentAddr, GsSegmentSize)
	if err != nil {
		return nil, err
	}

	teb := core.Reserve[TEB](gs)
	peb := core.Reserve[PEB](gs)
	params := core.Reserve[RtlUserProcessParameters](gs)

	if err := teb.Access(func(t *TEB) {
		t.NtTib.StackLimit = StackAddress
		t.NtTib.StackBase = StackAddress + StackSize
		t.NtTib.Self = teb.Value()
		t.ProcessEnvironmentBlock = peb.Value()
	}); err != nil {
		return nil, fmt.Errorf("initializing TEB: %w", err)
	}

	if err := peb.Access(func(p *PEB) {
		p.ImageBaseAddress = 0
		p.ProcessHeap = 0
		p.ProcessHeaps = 0
		p.ProcessParameters = params.Value()
	}); err != nil {
		return nil, fmt.Errorf("initializing PEB: %w", err)
	}

	if err := params.Access(func(p *RtlUserProcessParameters) {
		p.Flags = 0x6001
	}); err != nil {
		return nil, fmt.Errorf("initializing process parameters: %w", err)
	}

	imagePathRef := core.NewRef[UnicodeString](emu, params.Value()+fieldOffsetImagePathName)
	if err := MakeUnicodeString(gs, imagePathRef, imagePath); err != nil {
		return nil, fmt.Errorf("writing ImagePathName: %w", err)
	}

	commandLineRef := core.NewRef[UnicodeString](emu, params.Value()+fieldOffsetCommandLine)
	if err := MakeUnicodeString(gs, commandLineRef, commandLine); err != nil {
		return nil, fmt.Errorf("writing CommandLine: %w", err)
	}

	return &ProcessContext{
		Emu:           emu,
		Kusd:          kusd,
		GsSegment:     gs,
		Teb:           teb,
		Peb:           peb,
		ProcessParams: params,
	}, nil
}

// MapExecutable maps data as the process's primary executable and updates
// PEB.ImageBaseAddress to point at it.
func (c *ProcessContext) MapExecutable(data []byte, name string) error {
	bin, err := MapImage(c.Emu, data, name)
	if err != nil {
		return err
	}
	c.Executable = bin
	return c.Peb.Access(func(p *PEB) {
		p.ImageBaseAddress = bin.ImageBase
	})
}

// MapNtdll maps data as the process's ntdll.
func (c *ProcessContext) MapNtdll(data []byte, name string) error {
	bin, err := MapImage(c.Emu, data, name)
	if err != nil {
		return err
	}
	c.Ntdll = bin
	return nil
}
