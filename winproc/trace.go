package winproc

import (
	"sort"

	"github.com/emberforge/wincore/core"
)

// ReverseExports builds an address->name map from a module's export table,
// breaking ties on aliased addresses by keeping the lexicographically
// smallest name. Iteration over a Go map has no defined order, so the
// straightforward "first one wins" the source's C++ used is not
// reproducible here; sorting candidate names deterministically is.
func ReverseExports(exports map[string]uint64) map[uint64]string {
	byAddr := make(map[uint64][]string, len(exports))
	for name, addr := range exports {
		byAddr[addr] = append(byAddr[addr], name)
	}

	result := make(map[uint64]string, len(byAddr))
	for addr, names := range byAddr {
		sort.Strings(names)
		result[addr] = names[0]
	}
	return result
}

// InstallExportTrace installs an execution trap on every export of ntdll,
// logging the function name on each call.
func InstallExportTrace(fabric *core.HookFabric, ntdll MappedBinary) error {
	reverse := ReverseExports(ntdll.Exports)

	entries := make([]core.ExportTraceEntry, 0, len(reverse))
	for addr, name := range reverse {
		entries = append(entries, core.ExportTraceEntry{Name: name, Address: addr})
	}

	return fabric.InstallExportTrace(entries)
}

// WatchProcessStructures installs read watches over TEB, PEB, process
// parameters, and KUSD, so field-level access shows up in the log the way
// the source's watch_object calls did for every structure it built.
func WatchProcessStructures(fabric *core.HookFabric, ctx *ProcessContext) error {
	if err := core.Watch(fabric, ctx.Teb, core.NewTypeInfo[TEB]()); err != nil {
		return err
	}
	if err := core.Watch(fabric, ctx.Peb, core.NewTypeInfo[PEB]()); err != nil {
		return err
	}
	if err := core.Watch(fabric, ctx.ProcessParams, core.NewTypeInfo[RtlUserProcessParameters]()); err != nil {
		return err
	}
	if err := core.Watch(fabric, ctx.Kusd, core.NewTypeInfo[Kusd]()); err != nil {
		return err
	}
	return nil
}
