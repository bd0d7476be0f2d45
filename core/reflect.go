package core

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/modern-go/reflect2"
)

// TypeInfo answers "which field of T lives at byte offset o", the way the
// source's compile-time reflection answered it for the hook fabric's
// structure watchers. Go has no compile-time field enumeration, so this
// walks the standard reflect type descriptor once at construction (reflect2
// supplies only the type name) and caches an offset-ordered table, the same
// shape decodeStruct in a reflect2-based binary codec builds for marshaling.
type TypeInfo struct {
	typeName string
	offsets  []int
	names    []string
}

// NewTypeInfo builds a field table for T. Call it once per type and reuse
// the result; it is never touched from the guest execution hot path.
func NewTypeInfo[T any]() *TypeInfo {
	var zero T
	rt := reflect.TypeOf(zero)
	t2 := reflect2.Type2(rt)

	info := &TypeInfo{typeName: t2.Type1().Name()}
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if f.PkgPath != "" {
			continue // unexported, can't be part of the ABI layout anyway
		}
		info.offsets = append(info.offsets, int(f.Offset))
		info.names = append(info.names, f.Name)
	}

	order := make([]int, len(info.offsets))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return info.offsets[order[i]] < info.offsets[order[j]] })

	sortedOffsets := make([]int, len(order))
	sortedNames := make([]string, len(order))
	for i, idx := range order {
		sortedOffsets[i] = info.offsets[idx]
		sortedNames[i] = info.names[idx]
	}
	info.offsets = sortedOffsets
	info.names = sortedNames
	return info
}

// TypeName returns the struct's bare type name, as printed alongside the
// field name in a structure-watch log line.
func (t *TypeInfo) TypeName() string {
	return t.typeName
}

// FieldName maps a byte offset to the enclosing field, using the same
// exact/between/before/after rules as the source's type_info<T>.
func (t *TypeInfo) FieldName(offset int) string {
	if len(t.offsets) == 0 {
		return "<N/A>"
	}

	lastOffset := 0
	lastName := ""
	for i, o := range t.offsets {
		if offset == o {
			return t.names[i]
		}
		if offset < o {
			if i == 0 {
				return "<N/A>"
			}
			return fmt.Sprintf("%s+%d", lastName, offset-lastOffset)
		}
		lastOffset = o
		lastName = t.names[i]
	}

	return "<N/A>"
}
