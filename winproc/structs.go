// Package winproc knows what carbonblack-binee's loader.go knew about the
// Windows process image - TEB, PEB, process parameters, the CPU context
// block, KUSER_SHARED_DATA - but for amd64 rather than the 32-bit guests
// binee targets, and expressed as plain Go structs read and written through
// core.Ref rather than through binee's util.StructWrite helpers.
package winproc

import (
	"fmt"
	"unsafe"
)

// UnicodeString mirrors UNICODE_STRING: a counted, non-NUL-terminated wide
// string. Buffer is a guest address, never a host pointer.
type UnicodeString struct {
	Length        uint16
	MaximumLength uint16
	_             [4]byte // alignment padding to keep Buffer 8-byte aligned, as the real ABI does
	Buffer        uint64
}

// NtTib mirrors NT_TIB, the part of the TEB every architecture shares.
type NtTib struct {
	ExceptionList uint64
	StackBase     uint64
	StackLimit    uint64
	SubSystemTib  uint64
	FiberData     uint64
	ArbitraryData uint64
	Self          uint64
}

// TEB mirrors the fields of the Thread Environment Block this system cares
// about. Real TEBs are much larger; unused trailing space is not modeled
// since nothing here reads it.
type TEB struct {
	NtTib                    NtTib
	EnvironmentPointer       uint64
	ClientId                 [2]uint64
	ActiveRpcHandle          uint64
	ThreadLocalStoragePointer uint64
	ProcessEnvironmentBlock  uint64
	LastErrorValue           uint32
	_                        [4]byte
}

// PEB mirrors the fields of the Process Environment Block this system cares
// about.
type PEB struct {
	InheritedAddressSpace    uint8
	ReadImageFileExecOptions uint8
	BeingDebugged            uint8
	BitField                 uint8
	_                        [4]byte
	Mutant                   uint64
	ImageBaseAddress         uint64
	Ldr                      uint64
	ProcessParameters        uint64
	SubSystemData            uint64
	ProcessHeap              uint64
	FastPebLock              uint64
	_                        uint64
	ProcessHeaps             uint64
}

// RtlUserProcessParameters mirrors RTL_USER_PROCESS_PARAMETERS down through
// CommandLine, which is as far as this system writes.
type RtlUserProcessParameters struct {
	MaximumLength    uint32
	Length           uint32
	Flags            uint32
	DebugFlags       uint32
	ConsoleHandle    uint64
	ConsoleFlags     uint32
	_                [4]byte
	StandardInput    uint64
	StandardOutput   uint64
	StandardError    uint64
	CurrentDirectory [24]byte // CURDIR: DosPath UNICODE_STRING (16B) + Handle (8B), opaque here
	DllPath          UnicodeString
	ImagePathName    UnicodeString
	CommandLine      UnicodeString
}

// M128a mirrors the 128-bit SSE register save slot used by CONTEXT's
// VectorRegister array.
type M128a struct {
	Low  uint64
	High int64
}

// Context mirrors the amd64 CONTEXT structure LdrInitializeThunk expects a
// pointer to in rcx. This system only reserves it and writes none of its
// fields; every field exists so the struct's size and layout match the real
// ABI, since some guest code inspects CONTEXT.ContextFlags to decide what to
// trust.
type Context struct {
	P1Home, P2Home, P3Home, P4Home, P5Home, P6Home uint64
	ContextFlags                                   uint32
	MxCsr                                          uint32
	SegCs, SegDs, SegEs, SegFs, SegGs, SegSs       uint16
	EFlags                                         uint32
	Dr0, Dr1, Dr2, Dr3, Dr6, Dr7                   uint64
	Rax, Rcx, Rdx, Rbx                             uint64
	Rsp, Rbp                                       uint64
	Rsi, Rdi                                       uint64
	R8, R9, R10, R11, R12, R13, R14, R15           uint64
	Rip                                            uint64
	FltSave                                        [512]byte
	VectorRegister                                 [26]M128a
	VectorControl                                  uint64
	DebugControl                                   uint64
	LastBranchToRip                                uint64
	LastBranchFromRip                              uint64
	LastExceptionToRip                             uint64
	LastExceptionFromRip                           uint64
}

const (
	fieldOffsetImagePathName = uint64(unsafe.Offsetof(RtlUserProcessParameters{}.ImagePathName))
	fieldOffsetCommandLine   = uint64(unsafe.Offsetof(RtlUserProcessParameters{}.CommandLine))
)

func mustOffset(name string, got, want uintptr) {
	if got != want {
		panic(fmt.Sprintf("winproc: %s has offset 0x%x, want 0x%x - ABI layout drifted", name, got, want))
	}
}

func init() {
	mustOffset("TEB.ProcessEnvironmentBlock", unsafe.Offsetof(TEB{}.ProcessEnvironmentBlock), 0x60)
	mustOffset("PEB.ImageBaseAddress", unsafe.Offsetof(PEB{}.ImageBaseAddress), 0x10)
	mustOffset("PEB.ProcessParameters", unsafe.Offsetof(PEB{}.ProcessParameters), 0x20)
	mustOffset("PEB.ProcessHeap", unsafe.Offsetof(PEB{}.ProcessHeap), 0x30)
	mustOffset("RtlUserProcessParameters.ImagePathName", unsafe.Offsetof(RtlUserProcessParameters{}.ImagePathName), 0x60)
	mustOffset("Context.Rip", unsafe.Offsetof(Context{}.Rip), 0xf8)
}
