// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safepoint

import "github.com/aclements/go-safepoint/ir"

// Rewrite implements RelocationRewriter (spec.md §4.F): the spill-and-
// promote round trip that replaces every original use of a live value,
// across every statepoint in f, with the relocated pointer that is
// correct at that use — without ever naming a specific SSA value that
// must "already be the right one" at an arbitrary program point. It
// allocates one ir.Alloca per live value, spills every def and every
// relocate into its slot, reloads every remaining use from the slot, and
// finally hands the slots to ir.Mem2Reg to eliminate them again.
//
// liveValues is the union, across every statepoint Materialize produced
// in f, of the live (base+derived) values spilled; statepoints is the
// set of ir.Value tokens Materialize returned, in the order they were
// materialized. Both are keyed by pre-materialization identity: a value
// that was itself a call replaced by a statepoint's result projection is
// still named by its original (now-detached) call instruction.
func Rewrite(f *ir.Function, liveValues []*ir.Value, statepoints []*ir.Value) error {
	if len(liveValues) == 0 {
		return nil
	}

	// A live value that was itself materialized away (its defining call
	// replaced by a result projection) is now produced by that
	// projection, not by the stale, detached call object. canon maps
	// every such value to its current producer.
	canonical := map[*ir.Value]*ir.Value{}
	for _, sp := range statepoints {
		if sp.Statepoint != nil && sp.Statepoint.Result != nil {
			canonical[sp.Statepoint.OrigCall] = sp.Statepoint.Result
		}
	}
	canon := func(v *ir.Value) *ir.Value {
		if c, ok := canonical[v]; ok {
			return c
		}
		return v
	}

	bd := ir.NewBuilder(f, f.Entry)
	slots := make(map[*ir.Value]*ir.Value, len(liveValues))
	slotList := make([]*ir.Value, 0, len(liveValues))
	// Slots go at the top of the entry block (after any phis), so a root
	// value's initial store precedes every other instruction in f.
	firstNonPhi := f.Entry.Instrs[len(f.Entry.Phis())]
	for _, v := range liveValues {
		slot := f.InsertBefore(firstNonPhi, &ir.Value{Op: ir.OpAlloca, Typ: ir.PointerTo(v.Typ, 0), Name: v.Name + ".spill"})
		slots[v] = slot
		slotList = append(slotList, slot)
	}

	// Step 2: store each def into its slot immediately after the def
	// (arguments and constants store from the entry block, right after
	// the slot's own allocation).
	ourStores := map[*ir.Value]bool{}
	for _, v := range liveValues {
		slot := slots[v]
		def := canon(v)
		var store *ir.Value
		if def.Block() == nil {
			store = f.InsertAfter(slot, &ir.Value{Op: ir.OpStore, Typ: ir.VoidType, Args: []*ir.Value{slot, def}})
		} else {
			store = f.InsertAfter(def, &ir.Value{Op: ir.OpStore, Typ: ir.VoidType, Args: []*ir.Value{slot, def}})
		}
		ourStores[store] = true
	}

	// Step 3: at each statepoint, refresh every slot that was relocated
	// here, and null out every other tracked slot so a safepoint never
	// leaves a stale, non-relocated pointer sitting in the spill area for
	// the collector to scan.
	for _, sp := range statepoints {
		aux := sp.Statepoint
		relocated := make(map[*ir.Value]*ir.Value, len(aux.Live))
		for i, orig := range aux.Live {
			relocated[orig] = aux.Relocates[i]
		}

		insertAfter := sp
		if aux.Result != nil {
			insertAfter = aux.Result
		} else if len(aux.Relocates) > 0 {
			insertAfter = aux.Relocates[len(aux.Relocates)-1]
		}

		for _, v := range liveValues {
			slot := slots[v]
			if reloc, ok := relocated[v]; ok {
				store := f.InsertAfter(insertAfter, &ir.Value{Op: ir.OpStore, Typ: ir.VoidType, Args: []*ir.Value{slot, reloc}})
				ourStores[store] = true
				insertAfter = store
				continue
			}
			if aux.OrigCall == v && aux.Result != nil {
				continue // this site's own result: step 2 already stored it.
			}
			null := bd.ConstNull(v.Typ)
			store := f.InsertAfter(insertAfter, &ir.Value{Op: ir.OpStore, Typ: ir.VoidType, Args: []*ir.Value{slot, null}})
			ourStores[store] = true
			insertAfter = store
		}
	}

	// Step 4: rewrite every remaining use of an original live value,
	// outside the statepoint machinery itself, to a load from its slot
	// just before the use. A phi's incoming value is used on the edge
	// from its predecessor, so its load goes at the end of that
	// predecessor instead of before the phi.
	for _, v := range liveValues {
		slot := slots[v]
		def := canon(v)
		for _, instr := range f.Uses(def) {
			if instr.Op == ir.OpStatepoint || ourStores[instr] {
				continue // still names def directly; part of the machinery itself.
			}
			if instr.Op == ir.OpPhi {
				for i, a := range instr.Args {
					if a != def {
						continue
					}
					pred := instr.Edges[i]
					load := f.InsertBefore(pred.Terminator(), &ir.Value{
						Op: ir.OpLoad, Typ: v.Typ, Name: v.Name + ".reload", Args: []*ir.Value{slot},
					})
					instr.Args[i] = load
				}
				continue
			}
			load := f.InsertBefore(instr, &ir.Value{
				Op: ir.OpLoad, Typ: v.Typ, Name: v.Name + ".reload", Args: []*ir.Value{slot},
			})
			for i, a := range instr.Args {
				if a == def {
					instr.Args[i] = load
				}
			}
		}
	}

	return ir.Mem2Reg(f, slotList)
}
