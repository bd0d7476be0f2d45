package winproc

import (
	"unicode/utf16"

	"github.com/emberforge/wincore/core"
)

func utf16Encode(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// MakeUnicodeString reserves a UTF-16LE buffer for s (plus a trailing NUL)
// out of b, writes the code units, and fills out with the length/buffer
// fields UNICODE_STRING consumers expect.
func MakeUnicodeString(b *core.BumpAllocator, out core.Ref[UnicodeString], s string) error {
	units := utf16Encode(s)
	byteLen := len(units) * 2

	addr, err := b.ReserveBytes(2, uint64(byteLen+2))
	if err != nil {
		return err
	}

	buf := make([]byte, byteLen+2)
	for i, u := range units {
		buf[2*i] = byte(u)
		buf[2*i+1] = byte(u >> 8)
	}
	if err := b.Emu().WriteMemory(addr, buf); err != nil {
		return err
	}

	return out.Write(UnicodeString{
		Length:        uint16(byteLen),
		MaximumLength: uint16(byteLen + 2),
		Buffer:        addr,
	})
}

func pageAlignUp(v uint64) uint64 {
	const pageSize = 0x1000
	return (v + pageSize - 1) &^ (pageSize - 1)
}
