// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// Verify checks the structural invariants the pass depends on: every
// block ends in exactly one terminator, every phi has one incoming value
// per predecessor, and every non-phi operand is either a root value or
// dominates its use. This IR has no invoke or indirect-branch
// instructions, so Verify does not check for them.
//
// spec.md treats IR verification itself as an out-of-scope external
// collaborator; SPEC_FULL.md keeps it in-tree because nothing in the
// corpus verifies a bespoke IR like this one (see DESIGN.md).
func Verify(f *Function) error {
	if f.Entry == nil {
		return InternalErrorf("function %q has no entry block", f.Name)
	}
	blockSet := map[*BasicBlock]bool{}
	for _, b := range f.Blocks {
		blockSet[b] = true
	}
	for _, b := range f.Blocks {
		if len(b.Instrs) == 0 {
			return InternalErrorf("block %v in %q is empty", b, f.Name)
		}
		term := b.Terminator()
		if !term.IsTerminator() {
			return InternalErrorf("block %v in %q does not end in a terminator: %v", b, f.Name, term)
		}
		for i, instr := range b.Instrs {
			if instr.IsTerminator() && i != len(b.Instrs)-1 {
				return InternalErrorf("block %v in %q has a terminator before its end: %v", b, f.Name, instr)
			}
			if instr.Op == OpPhi && i > 0 && b.Instrs[i-1].Op != OpPhi {
				return InternalErrorf("block %v in %q has a phi after a non-phi instruction", b, f.Name)
			}
		}
		if phis := b.Phis(); len(phis) > 0 {
			for _, phi := range phis {
				if len(phi.Edges) != len(b.Preds) {
					return InternalErrorf("phi %v in %v has %d incoming edges, block has %d preds",
						phi, b, len(phi.Edges), len(b.Preds))
				}
				for _, e := range phi.Edges {
					if !blockSet[e] {
						return InternalErrorf("phi %v in %v names a block %v not in the function", phi, b, e)
					}
				}
			}
		}
		switch term.Op {
		case OpJump:
			if len(term.Edges) != 1 {
				return InternalErrorf("jump %v has %d edges, want 1", term, len(term.Edges))
			}
		case OpBranch:
			if len(term.Edges) != 2 {
				return InternalErrorf("branch %v has %d edges, want 2", term, len(term.Edges))
			}
		}
	}
	for _, instr := range f.AllInstructions() {
		for _, a := range instr.Args {
			if a.Block() != nil && !blockSet[a.Block()] {
				return InternalErrorf("instruction %v in %q uses a value from a foreign block: %v", instr, f.Name, a)
			}
			if instr.Op != OpPhi && a.Block() != nil && !f.ValueDominates(a, instr.Block()) {
				return InternalErrorf("in %q: %v does not dominate its use %v", f.Name, a, instr)
			}
		}
	}
	return nil
}
