// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safepoint

import (
	"github.com/aclements/go-safepoint/ir"
)

// intrinsicsNeedingSafepoint is the explicit allowlist spec.md §4.A calls
// for: these three intrinsics do transition to the runtime (they may call
// into the memmove-style write barrier path) even though most intrinsics
// don't. Modeled as a lookup table the same way
// rtcheck/handlers.go dispatches special-cased callees by name.
var intrinsicsNeedingSafepoint = map[string]bool{
	"memset":  true,
	"memcpy":  true,
	"memmove": true,
}

// PollSites is PollSiteSelector's output: the three kinds of poll
// location spec.md §4.A nominates.
type PollSites struct {
	Entry     *ir.Value   // terminator before which to insert an entry poll, or nil
	Backedges []*ir.Value // latch terminators needing a backedge poll
	Calls     []*ir.Value // call sites needing the full statepoint treatment directly
}

// SelectPollSites implements PollSiteSelector (spec.md §4.A).
func SelectPollSites(mod *ir.Module, f *ir.Function, cfg Config) (*PollSites, error) {
	if mod.SafepointPoll != nil && f == mod.SafepointPoll {
		// The poll implementation itself is always exempt.
		return &PollSites{}, nil
	}
	for _, b := range f.Blocks {
		if len(b.Preds) == 0 && b != f.Entry {
			return nil, ConfigErrorf("function %q has an unreachable block %v; remove it before selection", f.Name, b)
		}
	}

	ps := &PollSites{}

	wantEntry := !cfg.NoEntry && (cfg.AllFunctions || f.Attrs["gc-add-entry-safepoints"])
	if wantEntry {
		ps.Entry = entryPollLocation(f)
	}

	wantBackedge := !cfg.NoBackedge && (cfg.AllFunctions || f.Attrs["gc-add-backedge-safepoints"])
	if wantBackedge {
		for _, l := range f.Loops() {
			if !cfg.AllBackedges {
				if n, ok := ir.TripCount(l); ok && n > 0 {
					continue // provably finite: no starvation risk
				}
			}
			for _, latch := range l.Latches {
				ps.Backedges = append(ps.Backedges, latch.Terminator())
			}
		}
	}

	wantCall := !cfg.NoCall && (cfg.AllFunctions || f.Attrs["gc-add-call-safepoints"])
	if wantCall {
		for _, instr := range f.AllInstructions() {
			if needsCallSafepoint(mod, instr) {
				ps.Calls = append(ps.Calls, instr)
			}
		}
	}

	return ps, nil
}

// needsCallSafepoint implements the call-site filter spec.md §4.A lists:
// skip invokes (this IR has none), already-materialized statepoint
// machinery, intrinsics outside the allowlist, and gc-leaf callees.
func needsCallSafepoint(mod *ir.Module, instr *ir.Value) bool {
	switch instr.Op {
	case ir.OpCall:
		// fall through to the leaf check below
	case ir.OpIntrinsic:
		return intrinsicsNeedingSafepoint[instr.AuxStr]
	default:
		return false // not a call at all, or already-inserted statepoint machinery
	}
	callee := mod.Functions[instr.AuxStr]
	if callee != nil && callee.Attrs["gc-leaf-function"] {
		return false
	}
	return true
}

// entryPollLocation walks the unique-successor/unique-predecessor chain
// from f's entry block and returns the terminator of the last block
// before the first split or merge (spec.md §4.A).
func entryPollLocation(f *ir.Function) *ir.Value {
	b := f.Entry
	for {
		if len(b.Succs) != 1 {
			break // b is a split (or has no successor at all)
		}
		next := b.Succs[0]
		if len(next.Preds) != 1 {
			break // next is a merge point
		}
		b = next
	}
	return b.Terminator()
}
