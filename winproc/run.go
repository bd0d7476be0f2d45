package winproc

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/emberforge/wincore/core"
)

// KernelSimulator is the external collaborator that gives syscalls meaning.
// The run loop knows nothing about what any individual syscall does; it only
// knows to call HandleSyscall whenever the guest executes a SYSCALL
// instruction.
type KernelSimulator interface {
	HandleSyscall(emu core.Emulator, ctx *ProcessContext) error
}

// RunOptions configures a single emulator run.
type RunOptions struct {
	Trace bool
}

// Prepare wires the syscall boundary and the hook fabric onto ctx and sets
// up the registers LdrInitializeThunk expects (a freshly reserved CONTEXT in
// rcx, the ntdll base in rdx), but does not itself start execution. It
// returns the entry point to start at and a func that reports the most
// recent error the kernel simulator returned for a SYSCALL, if any.
//
// Run calls Prepare and immediately starts; the interactive debug shell
// calls Prepare once and drives Start itself, so both paths get the same
// mandatory register setup - the register contract holds unconditionally,
// not only when Run itself owns the loop.
func Prepare(emu core.Emulator, ctx *ProcessContext, kernel KernelSimulator, opts RunOptions) (entry uint64, syscallErr func() error, err error) {
	ldrInit, ok := ctx.Ntdll.Exports["LdrInitializeThunk"]
	if !ok {
		return 0, nil, fmt.Errorf("ntdll export LdrInitializeThunk not found")
	}
	// RtlUserThreadStart is resolved for a later CreateProcess/CreateThread
	// layer; the core run loop never calls it.
	if _, ok := ctx.Ntdll.Exports["RtlUserThreadStart"]; !ok {
		return 0, nil, fmt.Errorf("ntdll export RtlUserThreadStart not found")
	}

	fabric := core.NewHookFabric(emu)
	if err := WatchProcessStructures(fabric, ctx); err != nil {
		return 0, nil, fmt.Errorf("installing structure watches: %w", err)
	}
	if err := InstallExportTrace(fabric, ctx.Ntdll); err != nil {
		return 0, nil, fmt.Errorf("installing export trace: %w", err)
	}

	var sErr error
	if _, err := emu.HookInstruction(core.OpcodeSyscall, func() {
		if err := kernel.HandleSyscall(emu, ctx); err != nil {
			sErr = err
		}
	}); err != nil {
		return 0, nil, fmt.Errorf("installing syscall hook: %w", err)
	}

	if opts.Trace {
		if err := fabric.InstallGlobalTrace(func(addr uint64) string {
			return disassembleAt(emu, addr)
		}); err != nil {
			return 0, nil, fmt.Errorf("installing global trace: %w", err)
		}
	}

	execContext := core.Reserve[Context](ctx.GsSegment)
	if err := emu.SetReg(core.RegRcx, execContext.Value()); err != nil {
		return 0, nil, err
	}
	if err := emu.SetReg(core.RegRdx, ctx.Ntdll.ImageBase); err != nil {
		return 0, nil, err
	}

	return ldrInit, func() error { return sErr }, nil
}

// Run wires the syscall boundary and the hook fabric onto ctx, sets up the
// registers LdrInitializeThunk expects, and starts execution. It returns
// once the guest halts or faults.
func Run(emu core.Emulator, ctx *ProcessContext, kernel KernelSimulator, opts RunOptions) error {
	entry, syscallErr, err := Prepare(emu, ctx, kernel, opts)
	if err != nil {
		return err
	}

	if err := emu.Start(entry); err != nil {
		return fmt.Errorf("emulation failed: %w", err)
	}
	return syscallErr()
}

// disassembleAt reads a handful of bytes at addr and decodes the first
// instruction, for the global trace hook's log line. A decode failure
// yields an empty mnemonic rather than aborting the trace.
func disassembleAt(emu core.Emulator, addr uint64) string {
	buf, err := emu.ReadMemory(addr, 16)
	if err != nil {
		return ""
	}
	inst, err := x86asm.Decode(buf, 64)
	if err != nil {
		return ""
	}
	return x86asm.GNUSyntax(inst, addr, nil)
}
