// Package ucemu adapts github.com/unicorn-engine/unicorn's Go bindings onto
// the core.Emulator contract. It is the only package in this repository
// that imports Unicorn directly; everything above core.Emulator is written
// against the interface and can be exercised with a fake in tests.
//
// The instruction-level semantics Unicorn provides - actual x86-64
// execution - are exactly the "embedded CPU emulator" the design calls out
// as an external collaborator. This file is glue, not emulation.
package ucemu

import (
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/emberforge/wincore/core"
)

// Adapter binds a single Unicorn instance, configured for 64-bit x86, to
// core.Emulator.
type Adapter struct {
	uc uc.Unicorn
}

// New creates a fresh 64-bit x86 Unicorn instance and wraps it.
func New() (*Adapter, error) {
	u, err := uc.NewUnicorn(uc.ARCH_X86, uc.MODE_64)
	if err != nil {
		return nil, fmt.Errorf("creating unicorn x86-64 instance: %w", err)
	}
	return &Adapter{uc: u}, nil
}

// Raw exposes the underlying Unicorn handle for callers (the interactive
// debug shell, mainly) that need engine-specific functionality the
// core.Emulator contract deliberately doesn't surface, like single-stepping
// with a temporary hook.
func (a *Adapter) Raw() uc.Unicorn {
	return a.uc
}

func permToProt(p core.Permission) int {
	prot := uc.PROT_NONE
	if p&core.PermRead != 0 {
		prot |= uc.PROT_READ
	}
	if p&core.PermWrite != 0 {
		prot |= uc.PROT_WRITE
	}
	if p&core.PermExec != 0 {
		prot |= uc.PROT_EXEC
	}
	return prot
}

func (a *Adapter) AllocateMemory(addr, size uint64, perm core.Permission) error {
	return a.uc.MemMapProt(addr, size, permToProt(perm))
}

func (a *Adapter) ProtectMemory(addr, size uint64, perm core.Permission) error {
	return a.uc.MemProtect(addr, size, permToProt(perm))
}

// FindFreeAllocationBase asks Unicorn's mapped-region list for a gap large
// enough to host size bytes, scanning upward from the image-space floor
// used by real 64-bit Windows loaders. Unicorn does not expose an "ASLR
// base picker" API of its own, so this walks MemRegions() the way a loader
// would walk the process's VAD tree.
func (a *Adapter) FindFreeAllocationBase(size uint64) (uint64, error) {
	const floor = 0x0001_0000_0000
	const ceiling = 0x0000_7FFF_FFFF_0000
	const step = 0x1_0000 // 64 KiB allocation granularity, matching Windows

	regions, err := a.uc.MemRegions()
	if err != nil {
		return 0, fmt.Errorf("listing mapped regions: %w", err)
	}

	candidate := uint64(floor)
	for candidate+size < ceiling {
		overlaps := false
		for _, r := range regions {
			regBegin, regEnd := uint64(r.Begin), uint64(r.End)
			if candidate < regEnd && regBegin < candidate+size {
				overlaps = true
				candidate = alignUp(regEnd+1, step)
				break
			}
		}
		if !overlaps {
			return candidate, nil
		}
	}

	return 0, fmt.Errorf("no free region of size 0x%x found below 0x%x", size, ceiling)
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

func (a *Adapter) WriteMemory(addr uint64, buf []byte) error {
	return a.uc.MemWrite(addr, buf)
}

func (a *Adapter) ReadMemory(addr uint64, size uint64) ([]byte, error) {
	return a.uc.MemRead(addr, size)
}

var registerIDs = map[core.Register]int{
	core.RegRip: uc.X86_REG_RIP,
	core.RegRsp: uc.X86_REG_RSP,
	core.RegRax: uc.X86_REG_RAX,
	core.RegRbx: uc.X86_REG_RBX,
	core.RegRcx: uc.X86_REG_RCX,
	core.RegRdx: uc.X86_REG_RDX,
	core.RegRsi: uc.X86_REG_RSI,
	core.RegRdi: uc.X86_REG_RDI,
	core.RegRbp: uc.X86_REG_RBP,
	core.RegR8:  uc.X86_REG_R8,
	core.RegR9:  uc.X86_REG_R9,
	core.RegR10: uc.X86_REG_R10,
	core.RegR11: uc.X86_REG_R11,
	core.RegR12: uc.X86_REG_R12,
	core.RegR13: uc.X86_REG_R13,
	core.RegR14: uc.X86_REG_R14,
	core.RegR15: uc.X86_REG_R15,
}

func (a *Adapter) Reg(r core.Register) (uint64, error) {
	id, ok := registerIDs[r]
	if !ok {
		return 0, fmt.Errorf("unknown register %d", r)
	}
	return a.uc.RegRead(id)
}

func (a *Adapter) SetReg(r core.Register, v uint64) error {
	id, ok := registerIDs[r]
	if !ok {
		return fmt.Errorf("unknown register %d", r)
	}
	return a.uc.RegWrite(id, v)
}

// WriteMSR writes a model-specific register through Unicorn's UC_X86_REG_MSR
// pseudo-register, the same mechanism the samples use to set IA32_GS_BASE
// before running 64-bit Windows code under emulation.
func (a *Adapter) WriteMSR(id uint32, value uint64) error {
	return a.uc.RegWriteMsr(id, value)
}

func (a *Adapter) HookMemoryRead(addr, size uint64, cb core.MemHookFunc) (core.HookHandle, error) {
	h, err := a.uc.HookAdd(uc.HOOK_MEM_READ, func(_ uc.Unicorn, access int, addr uint64, size int, _ int64) {
		cb(addr, uint64(size))
	}, addr, addr+size)
	if err != nil {
		return 0, err
	}
	return core.HookHandle(h), nil
}

func (a *Adapter) HookMemoryExecution(addr, size uint64, cb core.ExecHookFunc) (core.HookHandle, error) {
	begin, end := addr, addr+size
	if size == core.WholeAddressSpace {
		begin, end = 0, ^uint64(0)
	} else if size == 0 {
		end = addr
	}
	h, err := a.uc.HookAdd(uc.HOOK_CODE, func(_ uc.Unicorn, addr uint64, size uint32) {
		cb(addr, uint64(size))
	}, begin, end)
	if err != nil {
		return 0, err
	}
	return core.HookHandle(h), nil
}

func (a *Adapter) HookInstruction(op core.Opcode, cb func()) (core.HookHandle, error) {
	switch op {
	case core.OpcodeSyscall:
		h, err := a.uc.HookAddInsn(uc.HOOK_INSN, func(_ uc.Unicorn) {
			cb()
		}, 1, 0, uc.X86_INS_SYSCALL)
		if err != nil {
			return 0, err
		}
		return core.HookHandle(h), nil
	default:
		return 0, fmt.Errorf("unsupported opcode hook %d", op)
	}
}

func (a *Adapter) Start(entry uint64) error {
	if err := a.uc.Start(entry, 0); err != nil {
		rip, _ := a.uc.RegRead(uc.X86_REG_RIP)
		return &core.FaultError{Rip: rip, Err: err}
	}
	return nil
}
