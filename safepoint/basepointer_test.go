// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safepoint

import (
	"testing"

	"github.com/aclements/go-safepoint/ir"
)

// TestMeetCommutativeIdempotent is the exhaustive check basepointer.go's
// meet doc comment promises: over every pair drawn from the four
// representative lattice states (Unknown, two distinct Base(b)s, and
// Conflict), meet must be commutative and, over every single state,
// idempotent.
func TestMeetCommutativeIdempotent(t *testing.T) {
	b1 := &ir.Value{Name: "b1"}
	b2 := &ir.Value{Name: "b2"}
	states := []latticeVal{
		{state: latticeUnknown},
		{state: latticeBase, base: b1},
		{state: latticeBase, base: b2},
		{state: latticeConflict},
	}
	for _, a := range states {
		for _, b := range states {
			if meet(a, b) != meet(b, a) {
				t.Errorf("meet(%+v, %+v) = %+v, meet(%+v, %+v) = %+v: not commutative",
					a, b, meet(a, b), b, a, meet(b, a))
			}
		}
		if meet(a, a) != a {
			t.Errorf("meet(%+v, %+v) = %+v, want %+v (idempotent)", a, a, meet(a, a), a)
		}
	}
}

func TestBaseOfNonMergeIsItself(t *testing.T) {
	ptrType := ir.GCPointerTo(ir.VoidType)
	f := ir.NewFunction("f")
	bd := ir.NewBuilder(f, f.Entry)
	call := bd.Call("x", ptrType, "make")
	bd.Return(nil)

	r := NewResolver(f, DefaultConfig(), NewBDVCache())
	base, err := r.BaseOf(call)
	if err != nil {
		t.Fatalf("BaseOf: %v", err)
	}
	if base != call {
		t.Errorf("BaseOf(call result) = %v, want the call itself", base)
	}
}

func TestBaseOfCastChainFollowsToCall(t *testing.T) {
	ptrType := ir.GCPointerTo(ir.VoidType)
	f := ir.NewFunction("f")
	bd := ir.NewBuilder(f, f.Entry)
	call := bd.Call("x", ptrType, "make")
	cast := bd.Cast("y", ptrType, call)
	idx := bd.Index("z", ptrType, cast, 8)
	bd.Return(nil)

	r := NewResolver(f, DefaultConfig(), NewBDVCache())
	base, err := r.BaseOf(idx)
	if err != nil {
		t.Fatalf("BaseOf: %v", err)
	}
	if base != call {
		t.Errorf("BaseOf(index of cast of call) = %v, want the original call %v", base, call)
	}
}

// diamondBases builds entry -branch-> {left, right} -> join, where left
// and right each derive a pointer (via OpIndex) from a call, and join
// merges the two derived pointers with a phi. sameBase controls whether
// both arms index off the *same* call (resolvable base) or two different
// calls (conflicting base, forcing a skeleton merge).
func diamondBases(sameBase bool) (r *Resolver, phi, call1, call2 *ir.Value, left, right *ir.BasicBlock) {
	ptrType := ir.GCPointerTo(ir.VoidType)
	f := ir.NewFunction("f", ir.BoolType)
	left = f.NewBlock("left")
	right = f.NewBlock("right")
	join := f.NewBlock("join")

	entryBd := ir.NewBuilder(f, f.Entry)
	call1 = entryBd.Call("call1", ptrType, "make1")
	entryBd.Branch(f.Params[0], left, right)

	leftBd := ir.NewBuilder(f, left)
	idx1 := leftBd.Index("idx1", ptrType, call1, 8)
	leftBd.Jump(join)

	rightBd := ir.NewBuilder(f, right)
	call2 = call1
	var idx2 *ir.Value
	if sameBase {
		idx2 = rightBd.Index("idx2", ptrType, call1, 16)
	} else {
		call2 = rightBd.Call("call2", ptrType, "make2")
		idx2 = rightBd.Index("idx2", ptrType, call2, 16)
	}
	rightBd.Jump(join)

	joinBd := ir.NewBuilder(f, join)
	phi = joinBd.Phi("merged", ptrType)
	phi.AddIncoming(idx1, left)
	phi.AddIncoming(idx2, right)
	joinBd.Return(phi)

	r = NewResolver(f, DefaultConfig(), NewBDVCache())
	return
}

func TestBaseOfPhiSameBaseNoSkeleton(t *testing.T) {
	r, phi, call1, _, _, _ := diamondBases(true)
	base, err := r.BaseOf(phi)
	if err != nil {
		t.Fatalf("BaseOf: %v", err)
	}
	if base != call1 {
		t.Errorf("BaseOf(phi of same-based indices) = %v, want %v", base, call1)
	}
	if len(r.NewlyInserted()) != 0 {
		t.Errorf("expected no skeleton merges, got %v", r.NewlyInserted())
	}
}

func TestBaseOfPhiConflictInsertsSkeleton(t *testing.T) {
	r, phi, call1, call2, left, right := diamondBases(false)
	base, err := r.BaseOf(phi)
	if err != nil {
		t.Fatalf("BaseOf: %v", err)
	}
	if base == phi {
		t.Fatal("BaseOf should not return the derived phi itself as a base")
	}
	if base.Op != ir.OpPhi {
		t.Fatalf("skeleton base op = %v, want OpPhi", base.Op)
	}
	if base.AuxStr != "is_base_value" {
		t.Errorf("skeleton base AuxStr = %q, want %q", base.AuxStr, "is_base_value")
	}
	if len(base.Edges) != 2 || base.Edges[0] != left || base.Edges[1] != right {
		t.Errorf("skeleton edges = %v, want [%v %v] (shares the derived phi's incoming edges)", base.Edges, left, right)
	}
	if len(base.Args) != 2 || base.Args[0] != call1 || base.Args[1] != call2 {
		t.Errorf("skeleton args = %v, want [%v %v]", base.Args, call1, call2)
	}
	inserted := r.NewlyInserted()
	if len(inserted) != 1 || inserted[0] != base {
		t.Errorf("NewlyInserted() = %v, want [%v]", inserted, base)
	}
}

func TestBaseOfRejectsIntToPtrWithoutMarking(t *testing.T) {
	ptrType := ir.GCPointerTo(ir.VoidType)
	f := ir.NewFunction("f", ir.Int64Type)
	bd := ir.NewBuilder(f, f.Entry)
	ptr := bd.IntToPtr("p", ptrType, f.Params[0], false)
	bd.Return(nil)

	r := NewResolver(f, DefaultConfig(), NewBDVCache())
	if _, err := r.BaseOf(ptr); err == nil {
		t.Error("BaseOf should reject an unmarked int-to-pointer cast")
	}
}

func TestBaseOfAllowsIntToPtrWhenMarked(t *testing.T) {
	ptrType := ir.GCPointerTo(ir.VoidType)
	f := ir.NewFunction("f", ir.Int64Type)
	bd := ir.NewBuilder(f, f.Entry)
	ptr := bd.IntToPtr("p", ptrType, f.Params[0], true)
	bd.Return(nil)

	r := NewResolver(f, DefaultConfig(), NewBDVCache())
	base, err := r.BaseOf(ptr)
	if err != nil {
		t.Fatalf("BaseOf: %v", err)
	}
	if base != ptr {
		t.Errorf("BaseOf(marked inttoptr) = %v, want itself", base)
	}
}
