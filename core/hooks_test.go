package core_test

import (
	"testing"

	"github.com/emberforge/wincore/core"
	"github.com/emberforge/wincore/internal/fakeemu"
)

type watchedStruct struct {
	A uint32
	B uint64
}

func TestWatchInstallsReadHookOverRefRange(t *testing.T) {
	emu := fakeemu.New()
	if err := emu.AllocateMemory(0x9000_0000, 0x1000, core.PermRead|core.PermWrite); err != nil {
		t.Fatalf("AllocateMemory: %v", err)
	}

	ref := core.NewRef[watchedStruct](emu, 0x9000_0000)
	info := core.NewTypeInfo[watchedStruct]()
	fabric := core.NewHookFabric(emu)

	if err := core.Watch(fabric, ref, info); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	emu.FireMemoryRead(ref.Value()+8, 8) // offset of field B

	// Watch only logs; the assertion here is that it did not error and that
	// firing a read inside the watched range does not panic or misroute -
	// coverage for the offset-to-field lookup happens in reflect_test.go.
}

func TestInstallExportTraceHooksEachEntry(t *testing.T) {
	emu := fakeemu.New()
	fabric := core.NewHookFabric(emu)

	entries := []core.ExportTraceEntry{
		{Name: "foo", Address: 0x1000},
		{Name: "bar", Address: 0x2000},
	}
	if err := fabric.InstallExportTrace(entries); err != nil {
		t.Fatalf("InstallExportTrace: %v", err)
	}

	// Each entry gets its own hook at exactly its address, size 0 (single
	// address), per HookMemoryExecution's size convention.
	emu.FireMemoryExecution(0x1000, 0)
	emu.FireMemoryExecution(0x2000, 0)
	emu.FireMemoryExecution(0x3000, 0) // unhooked address, must not fire either callback
}

func TestInstallExportTraceLogsBaseForRtlImageNtHeaderEx(t *testing.T) {
	emu := fakeemu.New()
	if err := emu.SetReg(core.RegRdx, 0x1_4000_0000); err != nil {
		t.Fatalf("SetReg: %v", err)
	}
	fabric := core.NewHookFabric(emu)

	entries := []core.ExportTraceEntry{{Name: "RtlImageNtHeaderEx", Address: 0x1000}}
	if err := fabric.InstallExportTrace(entries); err != nil {
		t.Fatalf("InstallExportTrace: %v", err)
	}

	emu.FireMemoryExecution(0x1000, 0)
}

func TestInstallGlobalTraceHooksWholeAddressSpace(t *testing.T) {
	emu := fakeemu.New()
	fabric := core.NewHookFabric(emu)

	var disassembled uint64
	disasm := func(addr uint64) string {
		disassembled = addr
		return "nop"
	}

	if err := fabric.InstallGlobalTrace(disasm); err != nil {
		t.Fatalf("InstallGlobalTrace: %v", err)
	}

	emu.FireMemoryExecution(0x1234, 1)
	emu.FireMemoryExecution(0xffff_ffff_0000_0000, 1)

	if disassembled != 0xffff_ffff_0000_0000 {
		t.Errorf("disasm not called with last fired address, got 0x%x", disassembled)
	}
}
