package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
	"golang.org/x/arch/x86/x86asm"

	"github.com/emberforge/wincore/core"
	"github.com/emberforge/wincore/core/ucemu"
	"github.com/emberforge/wincore/winproc"
)

var debugCompleter = readline.NewPrefixCompleter(
	readline.PcItem("run"),
	readline.PcItem("next"),
	readline.PcItem("regs"),
	readline.PcItem("break"),
	readline.PcItem("breakpoints"),
	readline.PcItem("quit"),
)

// debugShell is a thin operator convenience layered on top of Run's guest
// registers; it never touches process construction and does not change the
// run loop's semantics when unused. It calls winproc.Prepare itself, on
// first use, so the mandatory rcx/rdx register contract LdrInitializeThunk
// expects holds here exactly as it does for the non-interactive Run path.
type debugShell struct {
	emu    *ucemu.Adapter
	ctx    *winproc.ProcessContext
	kernel winproc.KernelSimulator
	opts   winproc.RunOptions

	breakpoints  map[uint64]bool
	entry        uint64
	prepared     bool
	started      bool
	checkSyscall func() error
}

func newDebugShell(emu *ucemu.Adapter, ctx *winproc.ProcessContext, kernel winproc.KernelSimulator, opts winproc.RunOptions) *debugShell {
	return &debugShell{emu: emu, ctx: ctx, kernel: kernel, opts: opts, breakpoints: make(map[uint64]bool)}
}

// ensurePrepared runs winproc.Prepare exactly once, lazily, the first time
// the operator asks to run or step - not at shell startup, so "regs" and
// "break" work before the process is wired up.
func (d *debugShell) ensurePrepared() error {
	if d.prepared {
		return nil
	}
	entry, syscallErr, err := winproc.Prepare(d.emu, d.ctx, d.kernel, d.opts)
	if err != nil {
		return err
	}
	d.entry = entry
	d.checkSyscall = syscallErr
	d.prepared = true
	return nil
}

// currentRip is where the next Start should resume from: the entry point
// before the guest has ever run, otherwise wherever it last stopped.
func (d *debugShell) currentRip() (uint64, error) {
	if !d.started {
		return d.entry, nil
	}
	return d.emu.Reg(core.RegRip)
}

func (d *debugShell) reportSyscallErr() {
	if d.checkSyscall == nil {
		return
	}
	if err := d.checkSyscall(); err != nil {
		fmt.Println("syscall handler error:", err)
	}
}

func (d *debugShell) enter() error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            "wincore > ",
		AutoComplete:      debugCompleter,
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("starting debug shell: %w", err)
	}
	defer l.Close()

	for {
		line, err := l.Readline()
		if err != nil {
			return nil
		}
		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}

		switch words[0] {
		case "quit", "q":
			return nil
		case "run", "r":
			if err := d.ensurePrepared(); err != nil {
				fmt.Println("preparing process:", err)
				continue
			}
			rip, err := d.currentRip()
			if err != nil {
				fmt.Println("reading rip:", err)
				continue
			}
			d.started = true
			if err := d.runToBreakpoint(rip); err != nil {
				fmt.Println("emulation stopped:", err)
			}
			d.reportSyscallErr()
		case "next", "n":
			if err := d.ensurePrepared(); err != nil {
				fmt.Println("preparing process:", err)
				continue
			}
			d.step()
		case "regs":
			d.printRegs()
		case "break", "b":
			if len(words) != 2 {
				fmt.Println("usage: break <addr>")
				continue
			}
			addr, err := strconv.ParseUint(strings.TrimPrefix(words[1], "0x"), 16, 64)
			if err != nil {
				fmt.Println("bad address:", words[1])
				continue
			}
			d.breakpoints[addr] = true
			fmt.Printf("breakpoint set at 0x%x\n", addr)
		case "breakpoints":
			for addr := range d.breakpoints {
				fmt.Printf("  0x%x\n", addr)
			}
		default:
			fmt.Println("unknown command:", words[0])
		}
	}
}

// runToBreakpoint runs from rip to completion, installing a code hook over
// the whole address space that consults d.breakpoints on every instruction
// and stops the engine the moment it hits one - the same
// emu.Breakpoints[addr]/AutoContinue check the source's HookCodeStep ran
// each iteration of its own step loop, just expressed as a hook here instead
// of a loop condition since Start runs to completion rather than
// instruction-by-instruction.
func (d *debugShell) runToBreakpoint(rip uint64) error {
	raw := d.emu.Raw()
	handle, err := raw.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		if d.breakpoints[addr] {
			mu.Stop()
		}
	}, uint64(0), ^uint64(0))
	if err != nil {
		return fmt.Errorf("installing breakpoint hook: %w", err)
	}
	defer raw.HookDel(handle)

	return d.emu.Start(rip)
}

// step runs exactly one instruction by installing a code hook that stops the
// engine the first time it fires, then removing it - the same
// install/stop/remove dance the source's HookCodeStep used to implement
// single-stepping over Unicorn's run-to-completion Start API. It reports
// when the landed instruction is itself a breakpoint, consulting the same
// d.breakpoints set runToBreakpoint stops on.
func (d *debugShell) step() {
	rip, err := d.currentRip()
	if err != nil {
		fmt.Println("reading rip:", err)
		return
	}

	raw := d.emu.Raw()
	var handle uc.Hook
	handle, err = raw.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		buf, _ := mu.MemRead(addr, uint64(size))
		if inst, derr := x86asm.Decode(buf, 64); derr == nil {
			fmt.Printf("0x%x: %s\n", addr, x86asm.GNUSyntax(inst, addr, nil))
		}
		if d.breakpoints[addr] {
			fmt.Printf("breakpoint hit at 0x%x\n", addr)
		}
		mu.Stop()
	}, rip, ^uint64(0))
	if err != nil {
		fmt.Println("installing step hook:", err)
		return
	}
	defer raw.HookDel(handle)

	d.started = true
	if err := d.emu.Start(rip); err != nil {
		fmt.Println("step failed:", err)
	}
	d.reportSyscallErr()
}

func (d *debugShell) printRegs() {
	for _, r := range []struct {
		name string
		reg  core.Register
	}{
		{"rip", core.RegRip}, {"rsp", core.RegRsp}, {"rax", core.RegRax},
		{"rbx", core.RegRbx}, {"rcx", core.RegRcx}, {"rdx", core.RegRdx},
	} {
		v, err := d.emu.Reg(r.reg)
		if err != nil {
			continue
		}
		fmt.Printf("%s = 0x%016x\n", r.name, v)
	}
}
