// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safepoint

import "github.com/aclements/go-safepoint/ir"

// LivenessMap holds the per-block live-in/live-out GC-pointer sets
// computed by global liveness (spec.md §4.C). It's built once per
// liveness phase and discarded after — callers that need liveness at
// many sites across one function should build it once and reuse it
// (Global mode), rather than call LiveAt per site (Local mode).
type LivenessMap struct {
	liveIn  map[*ir.BasicBlock]map[*ir.Value]bool
	liveOut map[*ir.BasicBlock]map[*ir.Value]bool
}

// isTrackedGCValue reports whether v is the kind of value LivenessEngine
// tracks: any GC-pointer-typed value (instruction results and root values
// such as parameters) except null constants and undef, which are excluded
// by policy (spec.md §4.C).
func isTrackedGCValue(v *ir.Value) bool {
	if !v.IsGCPointer() {
		return false
	}
	if v.Op == ir.OpConstNull || v.Op == ir.OpConstUndef {
		return false
	}
	return true
}

// gen returns the GC-pointer operands instr uses directly (not through a
// phi edge — those are handled specially in the backward walk, mirroring
// rtcheck/live.go's doVal special-casing of *ssa.Phi).
func gen(instr *ir.Value) []*ir.Value {
	var out []*ir.Value
	if instr.Op == ir.OpPhi {
		return nil // phi operands are per-predecessor, handled by the caller
	}
	for _, a := range instr.Args {
		if isTrackedGCValue(a) {
			out = append(out, a)
		}
	}
	return out
}

// ComputeLiveness runs LivenessEngine in global mode: classic backward
// dataflow to a fixed point over a worklist seeded with every block.
// Mirrors the LiveOut/LiveIn recurrences of spec.md §4.C and the
// block-indexed backward-walk shape of rtcheck/live.go's livenessFor,
// generalized from "values of interest reachable from specific uses" to
// "every GC-pointer value live at each point."
func ComputeLiveness(f *ir.Function) *LivenessMap {
	lm := &LivenessMap{
		liveIn:  map[*ir.BasicBlock]map[*ir.Value]bool{},
		liveOut: map[*ir.BasicBlock]map[*ir.Value]bool{},
	}
	for _, b := range f.Blocks {
		lm.liveIn[b] = map[*ir.Value]bool{}
		lm.liveOut[b] = map[*ir.Value]bool{}
	}

	worklist := append([]*ir.BasicBlock(nil), f.Blocks...)
	onWorklist := make(map[*ir.BasicBlock]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		onWorklist[b] = true
	}

	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		onWorklist[b] = false

		liveOut := map[*ir.Value]bool{}
		for _, s := range b.Succs {
			for v := range lm.liveIn[s] {
				liveOut[v] = true
			}
			// Phi operands: v is live-out of b only along the edge from
			// b, so add exactly the operand corresponding to b.
			for _, phi := range s.Phis() {
				for i, e := range phi.Edges {
					if e == b && isTrackedGCValue(phi.Args[i]) {
						liveOut[phi.Args[i]] = true
					}
				}
			}
		}

		liveIn := map[*ir.Value]bool{}
		for v := range liveOut {
			liveIn[v] = true
		}
		for i := len(b.Instrs) - 1; i >= 0; i-- {
			instr := b.Instrs[i]
			delete(liveIn, instr)
			for _, v := range gen(instr) {
				liveIn[v] = true
			}
		}

		if !equalValueSets(liveIn, lm.liveIn[b]) || !equalValueSets(liveOut, lm.liveOut[b]) {
			lm.liveIn[b] = liveIn
			lm.liveOut[b] = liveOut
			for _, p := range b.Preds {
				if !onWorklist[p] {
					worklist = append(worklist, p)
					onWorklist[p] = true
				}
			}
		}
	}

	return lm
}

func equalValueSets(a, b map[*ir.Value]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b[v] {
			return false
		}
	}
	return true
}

// LiveOut returns the GC pointers live out of b.
func (lm *LivenessMap) LiveOut(b *ir.BasicBlock) map[*ir.Value]bool { return lm.liveOut[b] }

// LiveIn returns the GC pointers live into b.
func (lm *LivenessMap) LiveIn(b *ir.BasicBlock) map[*ir.Value]bool { return lm.liveIn[b] }

// LiveAt returns the GC pointers live immediately before at (spec.md
// §4.C's definition: a value v is live at instruction I iff some use of v
// is reachable from I without passing through v's definition). If lm is
// non-nil, the result is computed from lm.LiveOut(at.Block()) by walking
// backward to at within the block (Global mode, reusing cached per-block
// results). If lm is nil, at.Block()'s live-out is recomputed from scratch
// by walking its successors (Local mode, spec.md §4.C).
func LiveAt(f *ir.Function, at *ir.Value, lm *LivenessMap) map[*ir.Value]bool {
	b := at.Block()
	var live map[*ir.Value]bool
	if lm != nil {
		live = cloneValueSet(lm.LiveOut(b))
	} else {
		live = liveOutLocal(b, map[*ir.BasicBlock]bool{})
	}
	for i := len(b.Instrs) - 1; i >= 0 && b.Instrs[i] != at; i-- {
		instr := b.Instrs[i]
		delete(live, instr)
		for _, v := range gen(instr) {
			live[v] = true
		}
	}
	// at's own result is not live at its own entry (spec.md §4.C, Local
	// mode note).
	delete(live, at)
	return live
}

// liveOutLocal computes live-out of b from scratch by walking every
// successor path forward to its uses, without a cached LivenessMap —
// spec.md §4.C's "Local mode... starting from scratch." visiting guards
// against infinite recursion around loops.
func liveOutLocal(b *ir.BasicBlock, visiting map[*ir.BasicBlock]bool) map[*ir.Value]bool {
	if visiting[b] {
		return map[*ir.Value]bool{}
	}
	visiting[b] = true
	defer delete(visiting, b)

	out := map[*ir.Value]bool{}
	for _, s := range b.Succs {
		in := liveInLocal(s, visiting)
		for v := range in {
			out[v] = true
		}
		for _, phi := range s.Phis() {
			for i, e := range phi.Edges {
				if e == b && isTrackedGCValue(phi.Args[i]) {
					out[phi.Args[i]] = true
				}
			}
		}
	}
	return out
}

func liveInLocal(b *ir.BasicBlock, visiting map[*ir.BasicBlock]bool) map[*ir.Value]bool {
	live := liveOutLocal(b, visiting)
	for i := len(b.Instrs) - 1; i >= 0; i-- {
		instr := b.Instrs[i]
		delete(live, instr)
		for _, v := range gen(instr) {
			live[v] = true
		}
	}
	return live
}

func cloneValueSet(s map[*ir.Value]bool) map[*ir.Value]bool {
	out := make(map[*ir.Value]bool, len(s))
	for v := range s {
		out[v] = true
	}
	return out
}
