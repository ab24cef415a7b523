package codegen

import (
	"encoding/binary"

	"github.com/snrtools/salc/pkg/config"
	"github.com/snrtools/salc/pkg/diag"
	"github.com/snrtools/salc/pkg/snr"
	"github.com/snrtools/salc/pkg/symbols"
)

// Layout assigns file offsets to the units, patches their relocations and
// assembles the final scenario file. Entry items come first so execution
// starts at the code offset; everything else keeps declaration order.
func Layout(units []*Unit, bag *diag.Bag) []byte {
	ordered := make([]*Unit, 0, len(units))
	for _, u := range units {
		if u.Sym.Kind == symbols.KindEntry {
			ordered = append(ordered, u)
		}
	}
	for _, u := range units {
		if u.Sym.Kind != symbols.KindEntry {
			ordered = append(ordered, u)
		}
	}

	addrs := make(map[string]snr.CodeAddress)
	base := snr.CodeAddress(snr.HeaderSize)
	dialogue := 0
	for _, u := range ordered {
		u.Base = base
		addrs[u.Sym.Name] = base
		base += snr.CodeAddress(len(u.Code))
		dialogue += u.Msgs
	}

	for _, u := range ordered {
		for _, r := range u.Relocs {
			var target snr.CodeAddress
			if off, ok := u.Labels[r.Target]; ok {
				target = u.Base + snr.CodeAddress(off)
			} else if a, ok := addrs[r.Target]; ok {
				target = a
			} else {
				bag.Errorf(r.Span, "undefined reference to '%s'", r.Target)
				continue
			}
			binary.LittleEndian.PutUint32(u.Code[r.Offset:], uint32(target))
		}
	}

	h := snr.NewHeader()
	h.Size = uint32(base)
	h.DialogueLineCount = uint32(dialogue)
	w := snr.NewWriter()
	h.Encode(w)
	for _, u := range ordered {
		w.Raw(u.Code)
	}
	return w.Bytes()
}

// Generate lowers every item of a resolved file and lays the result out into
// a scenario binary. The pipeline package runs the same stages with caching
// and parallel lowering; this is the direct path.
func Generate(table *symbols.Table, cfg *config.Config, bag *diag.Bag) []byte {
	units := make([]*Unit, 0, len(table.Symbols()))
	for _, sym := range table.Symbols() {
		units = append(units, LowerItem(sym, table, cfg, bag))
	}
	return Layout(units, bag)
}
