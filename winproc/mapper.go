package winproc

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/emberforge/wincore/core"
	"github.com/emberforge/wincore/pefile"
)

// MappedBinary is a PE image materialized into guest memory: its base, its
// footprint, and its resolved export table.
type MappedBinary struct {
	ImageBase   uint64
	SizeOfImage uint64
	Exports     map[string]uint64
}

func sectionPermission(characteristics uint32) core.Permission {
	perm := core.PermNone
	if characteristics&pefile.SectionExecute != 0 {
		perm |= core.PermExec
	}
	if characteristics&pefile.SectionRead != 0 {
		perm |= core.PermRead
	}
	if characteristics&pefile.SectionWrite != 0 {
		perm |= core.PermWrite
	}
	return perm
}

func max(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func min(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// MapImage parses data as a PE image and materializes it into emu's guest
// memory, applying base relocations if the image had to move. name is used
// only for logging.
func MapImage(emu core.Emulator, data []byte, name string) (MappedBinary, error) {
	pe, err := pefile.LoadPeBytes(data, name)
	if err != nil {
		return MappedBinary{}, fmt.Errorf("mapping %s: %w", name, err)
	}

	binary := MappedBinary{
		ImageBase:   pe.ImageBase(),
		SizeOfImage: pe.SizeOfImage(),
		Exports:     make(map[string]uint64),
	}

	relocated := false
	if err := emu.AllocateMemory(binary.ImageBase, binary.SizeOfImage, core.PermRead); err != nil {
		if !pe.IsDynamicBase() {
			return MappedBinary{}, fmt.Errorf("failed to map binary %s: not relocatable and preferred base 0x%x unavailable: %w", name, binary.ImageBase, err)
		}

		freeBase, ferr := emu.FindFreeAllocationBase(binary.SizeOfImage)
		if ferr != nil {
			return MappedBinary{}, fmt.Errorf("failed to map binary %s: no free base found: %w", name, ferr)
		}
		if aerr := emu.AllocateMemory(freeBase, binary.SizeOfImage, core.PermRead); aerr != nil {
			return MappedBinary{}, fmt.Errorf("failed to map binary %s at relocated base 0x%x: %w", name, freeBase, aerr)
		}

		relocated = true
		binary.ImageBase = freeBase
	}

	log.Printf("mapping %s at 0x%x", name, binary.ImageBase)

	headerSize := headerSizeOf(pe)
	if headerSize > 0 && headerSize <= len(data) {
		if err := emu.WriteMemory(binary.ImageBase, data[:headerSize]); err != nil {
			return MappedBinary{}, fmt.Errorf("writing headers of %s: %w", name, err)
		}
	}

	for _, section := range pe.Sections {
		target := binary.ImageBase + uint64(section.VirtualAddress)

		if len(section.Raw) > 0 {
			n := min(section.Size, section.VirtualSize)
			if err := emu.WriteMemory(target, section.Raw[:n]); err != nil {
				return MappedBinary{}, fmt.Errorf("writing section %s of %s: %w", section.Name, name, err)
			}
		}

		perm := sectionPermission(section.Characteristics)
		sizeOfSection := pageAlignUp(uint64(max(section.Size, section.VirtualSize)))
		if err := emu.ProtectMemory(target, sizeOfSection, perm); err != nil {
			return MappedBinary{}, fmt.Errorf("protecting section %s of %s: %w", section.Name, name, err)
		}
	}

	if relocated {
		if err := applyRelocations(emu, pe, binary.ImageBase); err != nil {
			return MappedBinary{}, fmt.Errorf("applying relocations to %s: %w", name, err)
		}
	}

	for _, exp := range pe.Exports {
		binary.Exports[exp.Name] = binary.ImageBase + uint64(exp.Rva)
	}

	return binary, nil
}

func headerSizeOf(pe *pefile.PeFile) int {
	if pe.PeType == pefile.Pe32 {
		return int(pe.OptionalHeader.(*pefile.OptionalHeader32).SizeOfHeaders)
	}
	return int(pe.OptionalHeader.(*pefile.OptionalHeader32P).SizeOfHeaders)
}

// applyRelocations fixes up every IMAGE_REL_BASED_DIR64 slot the mapper
// recorded, matching the delta between the preferred and the actual load
// address. An empty relocation table on a relocated image is a degraded
// mapping, not an error: it is logged and left alone, matching §4.3's
// documented caller-visible degraded mode.
func applyRelocations(emu core.Emulator, pe *pefile.PeFile, actualBase uint64) error {
	if len(pe.Relocations) == 0 {
		log.Printf("warning: %s relocated to 0x%x but carries no .reloc entries; internal pointers are unfixed", pe.Name, actualBase)
		return nil
	}

	preferredBase := pe.ImageBase()
	delta := int64(actualBase) - int64(preferredBase)
	if delta == 0 {
		return nil
	}

	for _, reloc := range pe.Relocations {
		addr := actualBase + uint64(reloc.Rva)

		switch reloc.Type {
		case pefile.RelBasedDir64:
			buf, err := emu.ReadMemory(addr, 8)
			if err != nil {
				return fmt.Errorf("reading relocation slot at 0x%x: %w", addr, err)
			}
			value := binary.LittleEndian.Uint64(buf)
			binary.LittleEndian.PutUint64(buf, uint64(int64(value)+delta))
			if err := emu.WriteMemory(addr, buf); err != nil {
				return fmt.Errorf("writing relocation slot at 0x%x: %w", addr, err)
			}
		case pefile.RelBasedHighLow:
			buf, err := emu.ReadMemory(addr, 4)
			if err != nil {
				return fmt.Errorf("reading relocation slot at 0x%x: %w", addr, err)
			}
			value := binary.LittleEndian.Uint32(buf)
			binary.LittleEndian.PutUint32(buf, uint32(int64(value)+delta))
			if err := emu.WriteMemory(addr, buf); err != nil {
				return fmt.Errorf("writing relocation slot at 0x%x: %w", addr, err)
			}
		}
	}

	return nil
}
