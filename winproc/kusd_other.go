//go:build !windows

package winproc

import (
	"time"
	"unsafe"

	"github.com/emberforge/wincore/core"
)

// buildKusd synthesizes a plausible KUSER_SHARED_DATA page field-by-field,
// since there is no real page to copy on a non-Windows host. Values are
// chosen to look like a recent Windows 10/11 install rather than to be
// accurate for any specific build.
func buildKusd(k *Kusd) {
	now := time.Now()
	ticks := uint32(now.UnixMilli() / 10)

	k.TickCountLowDeprecated = ticks
	k.TickCountMultiplier = 0x0fa00000
	k.TickCount.LowPart = ticks

	sysTime := now.UnixNano() / 100
	k.SystemTime.LowPart = uint32(sysTime)
	k.SystemTime.High1Time = int32(sysTime >> 32)
	k.SystemTime.High2Time = k.SystemTime.High1Time

	k.ImageNumberLow = imageFileMachineI386
	k.ImageNumberHigh = imageFileMachineAMD64

	setSystemRoot(k, `C:\Windows`)

	k.NtBuildNumber = 19045
	k.NtMajorVersion = 10
	k.NtMinorVersion = 0
	k.NtProductType = 1 // NtProductWinNt

	k.QpcFrequency = int64(time.Second / time.Nanosecond) // one tick per nanosecond, matching time.Now()'s resolution
}

func setupKusd(emu core.Emulator, addr uint64) (core.Ref[Kusd], error) {
	if err := emu.AllocateMemory(addr, pageAlignUp(uint64(unsafe.Sizeof(Kusd{}))), core.PermRead); err != nil {
		return core.Ref[Kusd]{}, err
	}
	ref := core.NewRef[Kusd](emu, addr)
	err := ref.Access(func(k *Kusd) {
		buildKusd(k)
		k.ProcessorFeatures = [processorFeatureMax]uint8{}
	})
	return ref, err
}
