package winproc_test

import (
	"testing"

	"github.com/emberforge/wincore/internal/fakeemu"
	"github.com/emberforge/wincore/winproc"
)

func TestBuildProcessInvariants(t *testing.T) {
	emu := fakeemu.New()

	ctx, err := winproc.BuildProcess(emu, `C:\Users\test\app.exe`, `C:\Users\test\app.exe`)
	if err != nil {
		t.Fatalf("BuildProcess: %v", err)
	}

	teb, err := ctx.Teb.Read()
	if err != nil {
		t.Fatalf("reading TEB: %v", err)
	}
	if teb.NtTib.Self != ctx.Teb.Value() {
		t.Errorf("TEB.NtTib.Self = 0x%x, want 0x%x (self-pointer invariant)", teb.NtTib.Self, ctx.Teb.Value())
	}
	if teb.NtTib.StackLimit != winproc.StackAddress {
		t.Errorf("TEB.NtTib.StackLimit = 0x%x, want 0x%x", teb.NtTib.StackLimit, uint64(winproc.StackAddress))
	}
	if teb.NtTib.StackBase != winproc.StackAddress+winproc.StackSize {
		t.Errorf("TEB.NtTib.StackBase = 0x%x, want top of stack", teb.NtTib.StackBase)
	}
	if teb.ProcessEnvironmentBlock != ctx.Peb.Value() {
		t.Errorf("TEB.ProcessEnvironmentBlock = 0x%x, want PEB address 0x%x", teb.ProcessEnvironmentBlock, ctx.Peb.Value())
	}

	peb, err := ctx.Peb.Read()
	if err != nil {
		t.Fatalf("reading PEB: %v", err)
	}
	if peb.ProcessParameters != ctx.ProcessParams.Value() {
		t.Errorf("PEB.ProcessParameters = 0x%x, want 0x%x", peb.ProcessParameters, ctx.ProcessParams.Value())
	}
	if peb.ProcessHeap != 0 {
		t.Errorf("PEB.ProcessHeap = 0x%x, want null", peb.ProcessHeap)
	}

	params, err := ctx.ProcessParams.Read()
	if err != nil {
		t.Fatalf("reading process parameters: %v", err)
	}
	if params.Flags != 0x6001 {
		t.Errorf("process parameters Flags = 0x%x, want 0x6001", params.Flags)
	}
	if params.ImagePathName.Buffer == 0 {
		t.Errorf("ImagePathName.Buffer was never set")
	}

	gotMsr := emu.MSR(winproc.Ia32GsBaseMsr)
	if gotMsr != winproc.GsSegmentAddr {
		t.Errorf("IA32_GS_BASE MSR = 0x%x, want 0x%x", gotMsr, uint64(winproc.GsSegmentAddr))
	}
}

func TestBuildProcessCommandLineLength(t *testing.T) {
	emu := fakeemu.New()
	ctx, err := winproc.BuildProcess(emu, `C:\a.exe`, `C:\a.exe --flag`)
	if err != nil {
		t.Fatalf("BuildProcess: %v", err)
	}

	params, err := ctx.ProcessParams.Read()
	if err != nil {
		t.Fatalf("reading process parameters: %v", err)
	}

	buf, err := emu.ReadMemory(params.CommandLine.Buffer, uint64(params.CommandLine.Length))
	if err != nil {
		t.Fatalf("reading command line buffer: %v", err)
	}
	if len(buf) != len(`C:\a.exe --flag`)*2 {
		t.Errorf("command line buffer length = %d, want %d", len(buf), len(`C:\a.exe --flag`)*2)
	}
}

func TestReverseExportsBreaksTiesLexicographically(t *testing.T) {
	exports := map[string]uint64{
		"Zeta":  0x1000,
		"Alpha": 0x1000,
		"Beta":  0x2000,
	}

	reverse := winproc.ReverseExports(exports)
	if reverse[0x1000] != "Alpha" {
		t.Errorf("reverse[0x1000] = %q, want Alpha (lexicographically smallest)", reverse[0x1000])
	}
	if reverse[0x2000] != "Beta" {
		t.Errorf("reverse[0x2000] = %q, want Beta", reverse[0x2000])
	}
}
