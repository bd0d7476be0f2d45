// Command wincore loads a Windows executable and ntdll, builds the process
// image a real Windows loader would produce, and drives it through an
// embedded CPU emulator until it halts, faults, or the operator quits an
// interactive debug session.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/emberforge/wincore/config"
	"github.com/emberforge/wincore/core/ucemu"
	"github.com/emberforge/wincore/kernel"
	"github.com/emberforge/wincore/winproc"
)

func main() {
	configPath := flag.String("c", "", "path to a YAML configuration file")
	trace := flag.Bool("t", false, "enable the global instruction trace")
	interactive := flag.Bool("i", false, "enter the interactive debug shell instead of running to completion")
	flag.Parse()

	var executable, ntdll string
	if flag.NArg() > 0 {
		executable = flag.Arg(0)
	}
	if flag.NArg() > 1 {
		ntdll = flag.Arg(1)
	}

	opts, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	opts = opts.MergeFlags(executable, ntdll, *trace)
	if err := opts.Validate(); err != nil {
		flag.PrintDefaults()
		log.Fatal(err)
	}

	if err := run(opts, *interactive); err != nil {
		log.Fatal(err)
	}
}

func run(opts config.Options, interactive bool) error {
	emu, err := ucemu.New()
	if err != nil {
		return err
	}

	ctx, err := winproc.BuildProcess(emu, opts.ImagePath, opts.CommandLine)
	if err != nil {
		return err
	}

	exeData, err := os.ReadFile(opts.Executable)
	if err != nil {
		return err
	}
	if err := ctx.MapExecutable(exeData, opts.Executable); err != nil {
		return err
	}

	ntdllData, err := os.ReadFile(opts.Ntdll)
	if err != nil {
		return err
	}
	if err := ctx.MapNtdll(ntdllData, opts.Ntdll); err != nil {
		return err
	}

	runOpts := winproc.RunOptions{Trace: opts.Trace}

	if interactive {
		return newDebugShell(emu, ctx, kernel.Stub{}, runOpts).enter()
	}

	if err := winproc.Run(emu, ctx, kernel.Stub{}, runOpts); err != nil {
		return err
	}
	log.Println("emulation done")
	return nil
}
