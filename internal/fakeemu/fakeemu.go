// Package fakeemu implements core.Emulator over a plain byte slice, so C1-C7
// can be exercised in tests without a real CPU emulation engine. It performs
// no instruction-level emulation: Start always returns nil immediately.
// Hooks are recorded rather than run - tests
// fire them explicitly with FireMemoryRead/FireMemoryExecution/FireInstruction
// to exercise the Hook Fabric's callbacks the way a real engine would when it
// hits a watched address.
package fakeemu

import (
	"fmt"

	"github.com/emberforge/wincore/core"
)

type region struct {
	base, size uint64
	perm       core.Permission
}

type memHook struct {
	base, size uint64
	cb         core.MemHookFunc
}

type execHook struct {
	base, size uint64
	cb         core.ExecHookFunc
}

// Emulator is a minimal, in-memory stand-in for a real CPU emulator.
type Emulator struct {
	mem        map[uint64]byte
	regions    []region
	regs       map[core.Register]uint64
	msrs       map[uint32]uint64
	nextHigh   uint64
	nextHook   core.HookHandle
	readHooks  []memHook
	execHooks  []execHook
	instrHooks map[core.Opcode][]func()
}

// New returns an Emulator with an empty address space.
func New() *Emulator {
	return &Emulator{
		mem:        make(map[uint64]byte),
		regs:       make(map[core.Register]uint64),
		msrs:       make(map[uint32]uint64),
		nextHigh:   0x1_0000_0000,
		instrHooks: make(map[core.Opcode][]func()),
	}
}

func (e *Emulator) findRegion(addr uint64) *region {
	for i := range e.regions {
		r := &e.regions[i]
		if addr >= r.base && addr < r.base+r.size {
			return r
		}
	}
	return nil
}

func (e *Emulator) overlaps(base, size uint64) bool {
	for _, r := range e.regions {
		if base < r.base+r.size && r.base < base+size {
			return true
		}
	}
	return false
}

func (e *Emulator) AllocateMemory(addr, size uint64, perm core.Permission) error {
	if e.overlaps(addr, size) {
		return fmt.Errorf("fakeemu: range [0x%x, 0x%x) already mapped", addr, addr+size)
	}
	e.regions = append(e.regions, region{base: addr, size: size, perm: perm})
	return nil
}

func (e *Emulator) ProtectMemory(addr, size uint64, perm core.Permission) error {
	r := e.findRegion(addr)
	if r == nil {
		return fmt.Errorf("fakeemu: no mapped region at 0x%x", addr)
	}
	r.perm = perm
	return nil
}

func (e *Emulator) FindFreeAllocationBase(size uint64) (uint64, error) {
	for {
		base := e.nextHigh
		e.nextHigh += size + 0x1000
		if !e.overlaps(base, size) {
			return base, nil
		}
	}
}

func (e *Emulator) WriteMemory(addr uint64, buf []byte) error {
	for i, b := range buf {
		e.mem[addr+uint64(i)] = b
	}
	return nil
}

func (e *Emulator) ReadMemory(addr uint64, size uint64) ([]byte, error) {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = e.mem[addr+uint64(i)]
	}
	return buf, nil
}

func (e *Emulator) Reg(r core.Register) (uint64, error) {
	return e.regs[r], nil
}

func (e *Emulator) SetReg(r core.Register, v uint64) error {
	e.regs[r] = v
	return nil
}

func (e *Emulator) WriteMSR(id uint32, value uint64) error {
	e.msrs[id] = value
	return nil
}

func (e *Emulator) HookMemoryRead(addr, size uint64, cb core.MemHookFunc) (core.HookHandle, error) {
	e.readHooks = append(e.readHooks, memHook{base: addr, size: size, cb: cb})
	e.nextHook++
	return e.nextHook, nil
}

func (e *Emulator) HookMemoryExecution(addr, size uint64, cb core.ExecHookFunc) (core.HookHandle, error) {
	e.execHooks = append(e.execHooks, execHook{base: addr, size: size, cb: cb})
	e.nextHook++
	return e.nextHook, nil
}

func (e *Emulator) HookInstruction(op core.Opcode, cb func()) (core.HookHandle, error) {
	e.instrHooks[op] = append(e.instrHooks[op], cb)
	e.nextHook++
	return e.nextHook, nil
}

// hits reports whether addr falls within a hook registered over [base, base+size),
// honoring the same size conventions HookMemoryExecution documents: size ==
// core.WholeAddressSpace matches any address, size == 0 matches only base itself.
func hits(base, size, addr uint64) bool {
	if size == core.WholeAddressSpace {
		return true
	}
	if size == 0 {
		return addr == base
	}
	return addr >= base && addr < base+size
}

// FireMemoryRead invokes every installed read hook whose range covers addr,
// the way a real engine would when the guest reads a watched address.
func (e *Emulator) FireMemoryRead(addr, size uint64) {
	for _, h := range e.readHooks {
		if hits(h.base, h.size, addr) {
			h.cb(addr, size)
		}
	}
}

// FireMemoryExecution invokes every installed execution hook whose range
// covers addr, the way a real engine would just before executing there.
func (e *Emulator) FireMemoryExecution(addr, size uint64) {
	for _, h := range e.execHooks {
		if hits(h.base, h.size, addr) {
			h.cb(addr, size)
		}
	}
}

// FireInstruction invokes every hook installed for op, the way a real engine
// would upon decoding that opcode.
func (e *Emulator) FireInstruction(op core.Opcode) {
	for _, cb := range e.instrHooks[op] {
		cb()
	}
}

func (e *Emulator) Start(entry uint64) error {
	return nil
}

// MSR returns the last value written to the given model-specific register,
// for assertions.
func (e *Emulator) MSR(id uint32) uint64 {
	return e.msrs[id]
}

// Permission returns the permission bits a region was last mapped or
// protected with, for assertions.
func (e *Emulator) Permission(addr uint64) (core.Permission, bool) {
	r := e.findRegion(addr)
	if r == nil {
		return 0, false
	}
	return r.perm, true
}
