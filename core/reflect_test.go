package core_test

import (
	"testing"

	"github.com/emberforge/wincore/core"
)

type sample struct {
	Header uint32
	Flags  uint32
	Name   [8]byte
}

func TestFieldNameExactAndBetween(t *testing.T) {
	info := core.NewTypeInfo[sample]()

	if got := info.FieldName(0); got != "Header" {
		t.Errorf("FieldName(0) = %q, want Header", got)
	}
	if got := info.FieldName(4); got != "Flags" {
		t.Errorf("FieldName(4) = %q, want Flags", got)
	}
	if got := info.FieldName(5); got != "Flags+1" {
		t.Errorf("FieldName(5) = %q, want Flags+1", got)
	}
}

func TestFieldNameBeyondLastField(t *testing.T) {
	info := core.NewTypeInfo[sample]()
	if got := info.FieldName(1000); got != "<N/A>" {
		t.Errorf("FieldName(1000) = %q, want <N/A>", got)
	}
}

type empty struct{}

func TestFieldNameEmptyType(t *testing.T) {
	info := core.NewTypeInfo[empty]()
	if got := info.FieldName(0); got != "<N/A>" {
		t.Errorf("FieldName(0) = %q, want <N/A>", got)
	}
}
