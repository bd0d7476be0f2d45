package core_test

import (
	"testing"

	"github.com/emberforge/wincore/core"
	"github.com/emberforge/wincore/internal/fakeemu"
)

type point struct {
	X, Y int32
}

func TestRefReadWrite(t *testing.T) {
	emu := fakeemu.New()
	if err := emu.AllocateMemory(0x1000, 0x1000, core.PermRead|core.PermWrite); err != nil {
		t.Fatalf("AllocateMemory: %v", err)
	}

	ref := core.NewRef[point](emu, 0x1000)
	if ref.Value() != 0x1000 {
		t.Errorf("Value() = 0x%x, want 0x1000", ref.Value())
	}
	if ref.Size() != 8 {
		t.Errorf("Size() = %d, want 8", ref.Size())
	}

	if err := ref.Write(point{X: 1, Y: 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := ref.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != (point{X: 1, Y: 2}) {
		t.Errorf("Read() = %+v, want {1 2}", got)
	}
}

func TestRefAccessMutatesInPlace(t *testing.T) {
	emu := fakeemu.New()
	if err := emu.AllocateMemory(0x2000, 0x1000, core.PermRead|core.PermWrite); err != nil {
		t.Fatalf("AllocateMemory: %v", err)
	}

	ref := core.NewRef[point](emu, 0x2000)
	if err := ref.Write(point{X: 5, Y: 5}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := ref.Access(func(p *point) { p.X *= 2 }); err != nil {
		t.Fatalf("Access: %v", err)
	}

	got, err := ref.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.X != 10 {
		t.Errorf("X = %d, want 10", got.X)
	}
}
