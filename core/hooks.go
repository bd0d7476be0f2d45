package core

import (
	"log"
)

// HookFabric installs the observability hooks described in §4.6: structure
// watches, export traces, and the (expensive, opt-in) global execution
// trace. It holds no state of its own beyond the emulator it is wired to -
// every watcher closes over its own TypeInfo/name, per the "hook callbacks
// capturing context" design note.
type HookFabric struct {
	emu Emulator
}

// NewHookFabric wires a fabric to emu. Hooks installed through it live for
// the lifetime of emu's run; there is no unwatch.
func NewHookFabric(emu Emulator) *HookFabric {
	return &HookFabric{emu: emu}
}

// Watch installs a read hook over ref's range that logs the field name (via
// info) touched by each access. It never alters the read.
func Watch[T any](f *HookFabric, ref Ref[T], info *TypeInfo) error {
	base := ref.Value()
	size := ref.Size()
	_, err := f.emu.HookMemoryRead(base, size, func(addr uint64, _ uint64) {
		offset := int(addr - base)
		log.Printf("%s: +0x%x (%s)", info.TypeName(), offset, info.FieldName(offset))
	})
	return err
}

// ExportTraceEntry is one resolved, de-aliased export the fabric will hook.
type ExportTraceEntry struct {
	Name    string
	Address uint64
}

// InstallExportTrace hooks every entry in entries with an execution hook
// that logs the function name, special-casing RtlImageNtHeaderEx to also
// log the second integer-argument register (its "base" parameter) the way
// the source's ad-hoc trace did.
func (f *HookFabric) InstallExportTrace(entries []ExportTraceEntry) error {
	for _, e := range entries {
		name := e.Name // capture per-iteration; a shared reference would rename every hook to the last entry
		_, err := f.emu.HookMemoryExecution(e.Address, 0, func(addr uint64, _ uint64) {
			log.Printf("executing function: %s (0x%x)", name, addr)
			if name == "RtlImageNtHeaderEx" {
				if base, err := f.emu.Reg(RegRdx); err == nil {
					log.Printf("  base: 0x%x", base)
				}
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// InstallGlobalTrace hooks every instruction in the address space and logs
// the instruction pointer plus general-purpose registers. disasm, when
// non-nil, is used to also log a decoded mnemonic for each traced
// instruction; it is optional because decoding needs to read the
// instruction bytes back out of guest memory, which the fabric itself does
// not know how to do without a size hint.
//
// This is the hook §4.6 calls "catastrophic for throughput" - callers gate
// it behind an explicit trace flag and never install it by default.
func (f *HookFabric) InstallGlobalTrace(disasm func(addr uint64) string) error {
	_, err := f.emu.HookMemoryExecution(0, WholeAddressSpace, func(addr uint64, _ uint64) {
		regs := make(map[string]uint64, 8)
		for _, r := range []struct {
			name string
			reg  Register
		}{
			{"rax", RegRax}, {"rbx", RegRbx}, {"rcx", RegRcx}, {"rdx", RegRdx},
			{"rsi", RegRsi}, {"rdi", RegRdi}, {"r8", RegR8}, {"r9", RegR9},
		} {
			if v, err := f.emu.Reg(r.reg); err == nil {
				regs[r.name] = v
			}
		}

		line := ""
		if disasm != nil {
			line = disasm(addr)
		}
		log.Printf("inst: 0x%016x %-32s rax=%016x rbx=%016x rcx=%016x rdx=%016x rdi=%016x rsi=%016x",
			addr, line, regs["rax"], regs["rbx"], regs["rcx"], regs["rdx"], regs["rdi"], regs["rsi"])
	})
	return err
}
