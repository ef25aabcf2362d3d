// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safepoint

import "github.com/aclements/go-safepoint/ir"

// Run implements the end-to-end pipeline spec.md §2 describes: select
// poll sites (A), inline the poll at entry/backedge sites (B), compute
// liveness (C) and base pointers (D) at every resulting parse point,
// materialize a statepoint at each one (E), then spill-and-promote every
// live value across the whole function in one pass (F).
//
// Run mutates f (and, transitively, mod.SafepointPoll's call sites don't
// move, but f gains its inlined copies) in place and returns the
// statepoint tokens it inserted, in materialization order.
func Run(mod *ir.Module, f *ir.Function, cfg Config) ([]*ir.Value, error) {
	if cfg.VerifyLevel >= 1 {
		if err := ir.Verify(f); err != nil {
			return nil, err
		}
	}

	sites, err := SelectPollSites(mod, f, cfg)
	if err != nil {
		return nil, err
	}

	var parsePoints []*ir.Value
	if sites.Entry != nil {
		inlined, err := InlinePoll(mod, f, sites.Entry)
		if err != nil {
			return nil, err
		}
		parsePoints = append(parsePoints, inlined...)
	}
	for _, latch := range sites.Backedges {
		inlined, err := InlinePoll(mod, f, latch)
		if err != nil {
			return nil, err
		}
		parsePoints = append(parsePoints, inlined...)
	}
	parsePoints = append(parsePoints, sites.Calls...)

	if cfg.VerifyLevel >= 2 {
		if err := ir.Verify(f); err != nil {
			return nil, err
		}
	}

	if len(parsePoints) == 0 {
		return nil, nil
	}

	var lm *LivenessMap
	if cfg.DataflowLiveness {
		lm = ComputeLiveness(f)
	}

	cache := NewBDVCache()
	resolver := NewResolver(f, cfg, cache)

	// Phase 1 (spec.md §5, §9 "Merge vs rewrite ordering"): resolve every
	// site's base pointers before materializing any of them. A
	// conflicting merge's skeleton wires the real underlying base
	// objects (e.g. two distinct calls down each arm) in as its own phi
	// operands — real Args, not just bookkeeping — which is exactly what
	// lets the liveness recompute below discover that those base objects
	// must survive every statepoint between their own definition and the
	// merge. The liveness snapshot taken before any skeleton existed
	// could never know that: nothing referenced those base objects at
	// the merge point until the skeleton did.
	for _, call := range parsePoints {
		for v := range LiveAt(f, call, lm) {
			if _, err := resolver.BaseOf(v); err != nil {
				return nil, err
			}
		}
	}

	if cfg.VerifyLevel >= 2 {
		if err := ir.Verify(f); err != nil {
			return nil, err
		}
	}

	if cfg.BaseRewriteOnly {
		return nil, nil
	}

	// Recompute liveness now that every skeleton this function needs
	// exists, so a base object newly shown live across an earlier site
	// lands directly in that site's own live table during materialization,
	// instead of being patched in afterward with nowhere to be relocated.
	if cfg.DataflowLiveness {
		lm = ComputeLiveness(f)
	}

	// Phase 2: materialize every site against the now-stable base mapping
	// and post-skeleton liveness.
	statepoints := make([]*ir.Value, 0, len(parsePoints))
	liveUnion := map[*ir.Value]bool{}
	var liveValues []*ir.Value

	for _, call := range parsePoints {
		live := LiveAt(f, call, lm)
		baseOf := make(map[*ir.Value]*ir.Value, len(live))
		liveSlice := make([]*ir.Value, 0, len(live))
		for v := range live {
			b, err := resolver.BaseOf(v)
			if err != nil {
				return nil, err
			}
			baseOf[v] = b
			liveSlice = append(liveSlice, v)
		}

		sp, err := Materialize(f, call, liveSlice, baseOf, cfg)
		if err != nil {
			return nil, err
		}
		statepoints = append(statepoints, sp)
		for v := range live {
			if !liveUnion[v] {
				liveUnion[v] = true
				liveValues = append(liveValues, v)
			}
		}

		if cfg.VerifyLevel >= 3 {
			if err := ir.Verify(f); err != nil {
				return nil, err
			}
		}
	}

	if cfg.VerifyLevel >= 2 {
		if err := ir.Verify(f); err != nil {
			return nil, err
		}
	}

	if err := Rewrite(f, liveValues, statepoints); err != nil {
		return nil, err
	}

	if cfg.VerifyLevel >= 1 {
		if err := ir.Verify(f); err != nil {
			return nil, err
		}
	}

	return statepoints, nil
}
