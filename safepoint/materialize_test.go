// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safepoint

import (
	"testing"

	"github.com/aclements/go-safepoint/ir"
)

func TestMaterializeBasicShape(t *testing.T) {
	ptrType := ir.GCPointerTo(ir.VoidType)
	f := ir.NewFunction("f", ptrType)
	bd := ir.NewBuilder(f, f.Entry)
	call := bd.Call("r", ptrType, "other")
	ret := bd.Return(call)

	p0 := f.Params[0]
	live := []*ir.Value{p0}
	baseOf := map[*ir.Value]*ir.Value{p0: p0}

	sp, err := Materialize(f, call, live, baseOf, DefaultConfig())
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if sp.Op != ir.OpStatepoint {
		t.Fatalf("Materialize returned op %v, want OpStatepoint", sp.Op)
	}
	if len(sp.Statepoint.Live) != 1 || sp.Statepoint.Live[0] != p0 {
		t.Errorf("live table = %v, want [%v]", sp.Statepoint.Live, p0)
	}
	if len(sp.Statepoint.Relocates) != 1 {
		t.Fatalf("got %d relocates, want 1", len(sp.Statepoint.Relocates))
	}
	reloc := sp.Statepoint.Relocates[0]
	if reloc.Op != ir.OpRelocate || reloc.AuxInt != 0 {
		t.Errorf("relocate = %v (AuxInt %d), want op gc.relocate, base index 0", reloc, reloc.AuxInt)
	}
	if reloc.Args[0] != sp {
		t.Errorf("relocate's statepoint operand = %v, want %v", reloc.Args[0], sp)
	}

	result := sp.Statepoint.Result
	if result == nil {
		t.Fatal("call's result was used; expected a gc.result projection")
	}
	if result.Op != ir.OpResult || !result.Typ.Equal(ptrType) {
		t.Errorf("result = %v, want op gc.result of type %v", result, ptrType)
	}
	if ret.Args[0] != result {
		t.Errorf("return operand = %v, want the gc.result projection %v", ret.Args[0], result)
	}

	for _, instr := range f.AllInstructions() {
		if instr == call {
			t.Error("original call is still present after Materialize")
		}
	}

	// Contiguity: statepoint, then its relocates, then its result, with
	// nothing else spliced in between.
	instrs := f.Entry.Instrs
	idx := -1
	for i, instr := range instrs {
		if instr == sp {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.Fatal("statepoint not found in block")
	}
	want := []*ir.Value{sp, reloc, result}
	if len(instrs) < idx+len(want) {
		t.Fatalf("not enough instructions after statepoint: have %d, want at least %d", len(instrs)-idx, len(want))
	}
	for i, w := range want {
		if instrs[idx+i] != w {
			t.Errorf("instruction at statepoint+%d = %v, want %v", i, instrs[idx+i], w)
		}
	}
}

func TestMaterializeNoResultWhenCallUnused(t *testing.T) {
	ptrType := ir.GCPointerTo(ir.VoidType)
	f := ir.NewFunction("f", ptrType)
	bd := ir.NewBuilder(f, f.Entry)
	call := bd.Call("", ptrType, "other")
	bd.Return(nil)

	p0 := f.Params[0]
	sp, err := Materialize(f, call, []*ir.Value{p0}, map[*ir.Value]*ir.Value{p0: p0}, DefaultConfig())
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if sp.Statepoint.Result != nil {
		t.Errorf("unused call result should not get a gc.result projection, got %v", sp.Statepoint.Result)
	}
}

func TestMaterializeAppendsMissingBase(t *testing.T) {
	ptrType := ir.GCPointerTo(ir.VoidType)
	f := ir.NewFunction("f", ptrType)
	bd := ir.NewBuilder(f, f.Entry)
	p0 := f.Params[0]
	derived := bd.Index("derived", ptrType, p0, 8)
	call := bd.Call("", ir.VoidType, "other")
	bd.Return(nil)

	// Only the derived pointer is reported live; its base (p0) is not in
	// the live set and must be pulled in by Materialize.
	live := []*ir.Value{derived}
	baseOf := map[*ir.Value]*ir.Value{derived: p0}

	sp, err := Materialize(f, call, live, baseOf, DefaultConfig())
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(sp.Statepoint.Live) != 2 {
		t.Fatalf("live table = %v, want 2 entries (derived value plus its appended base)", sp.Statepoint.Live)
	}
	foundBase, foundDerived := false, false
	for _, v := range sp.Statepoint.Live {
		if v == p0 {
			foundBase = true
		}
		if v == derived {
			foundDerived = true
		}
	}
	if !foundBase || !foundDerived {
		t.Errorf("live table %v missing base or derived entry", sp.Statepoint.Live)
	}
	if len(sp.Statepoint.Relocates) != 2 {
		t.Fatalf("got %d relocates, want 2", len(sp.Statepoint.Relocates))
	}
	// Every relocate's base index must point at an entry that is itself
	// in the live table (the base-inclusion invariant).
	for _, reloc := range sp.Statepoint.Relocates {
		if int(reloc.AuxInt) < 0 || int(reloc.AuxInt) >= len(sp.Statepoint.Live) {
			t.Errorf("relocate %v has out-of-range base index %d", reloc, reloc.AuxInt)
		}
	}
}

func TestMaterializeMissingBaseIsAnError(t *testing.T) {
	ptrType := ir.GCPointerTo(ir.VoidType)
	f := ir.NewFunction("f", ptrType)
	bd := ir.NewBuilder(f, f.Entry)
	call := bd.Call("", ir.VoidType, "other")
	bd.Return(nil)

	p0 := f.Params[0]
	if _, err := Materialize(f, call, []*ir.Value{p0}, map[*ir.Value]*ir.Value{}, DefaultConfig()); err == nil {
		t.Error("Materialize should reject a live value with no resolved base")
	}
}
