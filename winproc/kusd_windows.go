//go:build windows

package winproc

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/emberforge/wincore/core"
)

// realKusdAddr is the fixed address KUSER_SHARED_DATA is mapped at in every
// Windows process, host or guest alike - so on a Windows host we can just
// read our own copy of the page instead of synthesizing one.
const realKusdAddr = 0x7ffe0000

func hostKusd() *Kusd {
	return (*Kusd)(unsafe.Pointer(uintptr(realKusdAddr)))
}

func setupKusd(emu core.Emulator, addr uint64) (core.Ref[Kusd], error) {
	size := pageAlignUp(uint64(unsafe.Sizeof(Kusd{})))
	if err := emu.AllocateMemory(addr, size, core.PermRead); err != nil {
		return core.Ref[Kusd]{}, err
	}
	ref := core.NewRef[Kusd](emu, addr)
	err := ref.Access(func(k *Kusd) {
		*k = *hostKusd()
		k.ImageNumberLow = imageFileMachineI386
		k.ImageNumberHigh = imageFileMachineAMD64
		k.ProcessorFeatures = [processorFeatureMax]uint8{}

		// RtlGetVersion bypasses the version lie GetVersionEx tells
		// under application compatibility shims, so the guest sees the
		// host's real build number.
		var info windows.OsVersionInfoEx
		info.OsVersionInfoSize = uint32(unsafe.Sizeof(info))
		if err := windows.RtlGetVersion(&info); err == nil {
			k.NtBuildNumber = info.BuildNumber
			k.NtMajorVersion = info.MajorVersion
			k.NtMinorVersion = info.MinorVersion
		}
	})
	return ref, err
}
