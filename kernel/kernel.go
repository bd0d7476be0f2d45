// Package kernel provides a minimal winproc.KernelSimulator. It implements
// no actual Windows syscall semantics - that behavior belongs to a
// collaborator this repository deliberately does not own - but it lets a
// process run far enough to prove the loader, hook fabric, and run loop are
// wired correctly, and gives operators a place to log what the guest was
// asking for.
package kernel

import (
	"log"

	"github.com/emberforge/wincore/core"
	"github.com/emberforge/wincore/winproc"
)

// Stub logs the syscall number (rax, by convention) and the instruction
// pointer at the syscall, then lets the guest keep running with whatever
// return value happened to already be in rax.
type Stub struct{}

// HandleSyscall implements winproc.KernelSimulator.
func (Stub) HandleSyscall(emu core.Emulator, ctx *winproc.ProcessContext) error {
	num, err := emu.Reg(core.RegRax)
	if err != nil {
		return err
	}
	rip, err := emu.Reg(core.RegRip)
	if err != nil {
		return err
	}
	log.Printf("unhandled syscall %d at rip=0x%x", num, rip)
	return nil
}
