// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "testing"

func TestVerifyWellFormed(t *testing.T) {
	f, _, _, _, _ := diamond()
	if err := Verify(f); err != nil {
		t.Errorf("Verify(diamond) = %v, want nil", err)
	}
}

func TestVerifyCatchesEmptyBlock(t *testing.T) {
	f, _, _, _, _ := diamond()
	f.NewBlock("dangling") // never given a terminator
	if err := Verify(f); err == nil {
		t.Error("Verify should reject an empty block")
	}
}

func TestVerifyCatchesPhiArity(t *testing.T) {
	f, left, _, join, _ := diamond()
	phi := NewBuilder(f, join).Phi("bad", Int64Type)
	// Only wire one incoming edge though join has two preds.
	phi.AddIncoming(NewBuilder(f, nil).ConstInt(Int64Type, 0), left)
	if err := Verify(f); err == nil {
		t.Error("Verify should reject a phi whose edge count doesn't match its block's preds")
	}
}

func TestVerifyCatchesNonDominatingUse(t *testing.T) {
	f, left, right, _, _ := diamond()
	// Define a value in left and try to use it in right, which left does
	// not dominate. Insert both before their blocks' terminators so
	// neither trips the "terminator must be last" check.
	v := f.InsertBefore(left.Terminator(), &Value{Op: OpAlloca, Typ: PointerTo(Int64Type, 0), Name: "x"})
	f.InsertBefore(right.Terminator(), &Value{Op: OpLoad, Typ: Int64Type, Name: "y", Args: []*Value{v}})
	if err := Verify(f); err == nil {
		t.Error("Verify should reject a use not dominated by its definition")
	}
}

func TestVerifyCatchesMissingTerminator(t *testing.T) {
	f := NewFunction("untermed")
	// Give the (otherwise empty) entry block a single non-terminator
	// instruction so the block ends without one.
	f.Entry.Instrs = []*Value{{Op: OpConstInt, Typ: Int64Type}}
	if err := Verify(f); err == nil {
		t.Error("Verify should reject a block that doesn't end in a terminator")
	}
}
