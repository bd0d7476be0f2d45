package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Ref is a typed cursor onto a fixed-size range of guest memory. It owns no
// storage of its own; every operation round-trips through the emulator's
// raw read/write calls, the same way util.StructWrite/GetPointer round-trip
// through Unicorn's MemRead/MemWrite rather than holding a native pointer
// into memory the host does not own.
type Ref[T any] struct {
	emu  Emulator
	addr uint64
}

// NewRef wraps an existing guest address as a typed view of T. Callers get
// one of these back from Reserve, from a mapper's resolved struct address,
// or by hand when they already know where a T lives.
func NewRef[T any](emu Emulator, addr uint64) Ref[T] {
	return Ref[T]{emu: emu, addr: addr}
}

// Value returns the guest address this reference points at.
func (r Ref[T]) Value() uint64 {
	return r.addr
}

// Size returns the number of bytes T occupies in guest memory: its
// encoding/binary size, which counts every declared field (blank padding
// fields included) but not implicit alignment padding. For structs that
// declare all their padding as fields, as winproc's do (see the offset
// assertions there), this equals unsafe.Sizeof(T).
func (r Ref[T]) Size() uint64 {
	var zero T
	return uint64(binary.Size(zero))
}

// Read copies the referenced value out of guest memory.
func (r Ref[T]) Read() (T, error) {
	var out T
	buf, err := r.emu.ReadMemory(r.addr, r.Size())
	if err != nil {
		return out, fmt.Errorf("reading %T at 0x%x: %w", out, r.addr, err)
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &out); err != nil {
		return out, fmt.Errorf("decoding %T at 0x%x: %w", out, r.addr, err)
	}
	return out, nil
}

// Write copies v into guest memory, replacing whatever was there.
func (r Ref[T]) Write(v T) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("encoding %T for write to 0x%x: %w", v, r.addr, err)
	}
	if err := r.emu.WriteMemory(r.addr, buf.Bytes()); err != nil {
		return fmt.Errorf("writing %T to 0x%x: %w", v, r.addr, err)
	}
	return nil
}

// Access reads the current value, lets f mutate it in place, and writes the
// result back. Guest memory is the source of truth; nothing about T
// survives between calls to Access.
func (r Ref[T]) Access(f func(*T)) error {
	v, err := r.Read()
	if err != nil {
		return err
	}
	f(&v)
	return r.Write(v)
}
