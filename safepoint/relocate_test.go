// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safepoint

import (
	"testing"

	"github.com/aclements/go-safepoint/ir"
)

func TestRewriteStraightLineUsesRelocatedValue(t *testing.T) {
	ptrType := ir.GCPointerTo(ir.VoidType)
	f := ir.NewFunction("f", ptrType)
	bd := ir.NewBuilder(f, f.Entry)
	call := bd.Call("", ir.VoidType, "other")
	consume := bd.Call("", ir.VoidType, "consume", f.Params[0])
	bd.Return(nil)

	p0 := f.Params[0]
	sp, err := Materialize(f, call, []*ir.Value{p0}, map[*ir.Value]*ir.Value{p0: p0}, DefaultConfig())
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if err := Rewrite(f, []*ir.Value{p0}, []*ir.Value{sp}); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if err := ir.Verify(f); err != nil {
		t.Fatalf("Verify after Rewrite: %v", err)
	}

	if len(consume.CallArgs()) != 1 || consume.CallArgs()[0] != sp.Statepoint.Relocates[0] {
		t.Errorf("consume's operand = %v, want the relocated pointer %v", consume.CallArgs(), sp.Statepoint.Relocates[0])
	}
	for _, instr := range f.AllInstructions() {
		if instr.Op == ir.OpAlloca || instr.Op == ir.OpLoad {
			t.Errorf("leftover %v instruction %v after Rewrite's Mem2Reg cleanup", instr.Op, instr)
		}
	}
}

func TestRewriteNoLiveValuesIsNoOp(t *testing.T) {
	f := ir.NewFunction("f")
	bd := ir.NewBuilder(f, f.Entry)
	bd.Return(nil)
	before := len(f.AllInstructions())

	if err := Rewrite(f, nil, nil); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got := len(f.AllInstructions()); got != before {
		t.Errorf("Rewrite with no live values changed instruction count: %d -> %d", before, got)
	}
}

// TestRewritePhiOperandUsesItsOwnEdgeRelocate builds a diamond where each
// arm has its own statepoint relocating the same live pointer, merged by a
// phi. Rewrite must thread each incoming edge to *that edge's* relocate,
// not the other arm's.
func TestRewritePhiOperandUsesItsOwnEdgeRelocate(t *testing.T) {
	ptrType := ir.GCPointerTo(ir.VoidType)
	f := ir.NewFunction("f", ir.BoolType, ptrType)
	left := f.NewBlock("left")
	right := f.NewBlock("right")
	join := f.NewBlock("join")

	cond, p := f.Params[0], f.Params[1]
	ir.NewBuilder(f, f.Entry).Branch(cond, left, right)
	call1 := ir.NewBuilder(f, left).Call("", ir.VoidType, "other1")
	ir.NewBuilder(f, left).Jump(join)
	call2 := ir.NewBuilder(f, right).Call("", ir.VoidType, "other2")
	ir.NewBuilder(f, right).Jump(join)

	joinBd := ir.NewBuilder(f, join)
	phi := joinBd.Phi("m", ptrType)
	phi.AddIncoming(p, left)
	phi.AddIncoming(p, right)
	joinBd.Return(phi)

	sp1, err := Materialize(f, call1, []*ir.Value{p}, map[*ir.Value]*ir.Value{p: p}, DefaultConfig())
	if err != nil {
		t.Fatalf("Materialize(call1): %v", err)
	}
	sp2, err := Materialize(f, call2, []*ir.Value{p}, map[*ir.Value]*ir.Value{p: p}, DefaultConfig())
	if err != nil {
		t.Fatalf("Materialize(call2): %v", err)
	}

	if err := Rewrite(f, []*ir.Value{p}, []*ir.Value{sp1, sp2}); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if err := ir.Verify(f); err != nil {
		t.Fatalf("Verify after Rewrite: %v", err)
	}

	if phi.Args[0] != sp1.Statepoint.Relocates[0] {
		t.Errorf("phi's left-edge operand = %v, want left's own relocate %v", phi.Args[0], sp1.Statepoint.Relocates[0])
	}
	if phi.Args[1] != sp2.Statepoint.Relocates[0] {
		t.Errorf("phi's right-edge operand = %v, want right's own relocate %v", phi.Args[1], sp2.Statepoint.Relocates[0])
	}
}
