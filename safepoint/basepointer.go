// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safepoint

import "github.com/aclements/go-safepoint/ir"

// BDVCache is the BaseDefiningValueCache of spec.md §3: it carries two
// relations over its lifetime — value -> base-defining-value, then
// upgraded in place to value -> base — accumulating across every parse
// point in a function to avoid inserting duplicate merges. Its shape (an
// append-only map consulted before recomputing anything) mirrors the
// persistent-map discipline of rtcheck/val.go's frameValState, adapted
// from "cache an ssa.Value's dynamic value" to "cache an ir.Value's base."
type BDVCache struct {
	bdv  map[*ir.Value]*ir.Value
	base map[*ir.Value]*ir.Value
}

func NewBDVCache() *BDVCache {
	return &BDVCache{bdv: map[*ir.Value]*ir.Value{}, base: map[*ir.Value]*ir.Value{}}
}

// latticeState is the three-valued PhiLattice of spec.md §4.D.
type latticeState int

const (
	latticeUnknown latticeState = iota
	latticeBase
	latticeConflict
)

type latticeVal struct {
	state latticeState
	base  *ir.Value
}

// meet implements the lattice's meet rule. It is commutative and
// idempotent by construction (Unknown ⊑ Base(b) ⊑ Conflict); see
// TestMeetCommutativeIdempotent in basepointer_test.go for the exhaustive
// check spec.md §8 item 8 asks for.
func meet(a, b latticeVal) latticeVal {
	if a.state == latticeUnknown {
		return b
	}
	if b.state == latticeUnknown {
		return a
	}
	if a.state == latticeBase && b.state == latticeBase && a.base == b.base {
		return a
	}
	return latticeVal{state: latticeConflict}
}

// Resolver implements BasePointerResolver (spec.md §4.D). One Resolver is
// reused across every parse point in a function so BDVCache accumulates
// as the spec requires.
type Resolver struct {
	f           *ir.Function
	cfg         Config
	cache       *BDVCache
	newInserted []*ir.Value // skeleton merges inserted so far, across all sites
}

func NewResolver(f *ir.Function, cfg Config, cache *BDVCache) *Resolver {
	return &Resolver{f: f, cfg: cfg, cache: cache}
}

// NewlyInserted returns every skeleton merge this Resolver has inserted so
// far (spec.md §4.D "Integrating inserted defs").
func (r *Resolver) NewlyInserted() []*ir.Value { return r.newInserted }

// bdvOf implements the base-defining-value classification (spec.md §4.D
// "Base-defining-value function"), a direct generalization of
// rtcheck/val.go's ValState.Get type switch from "classify an ssa.Value
// into a DynValue" to "classify an ir.Value into its BDV."
func (r *Resolver) bdvOf(v *ir.Value) (*ir.Value, error) {
	if b, ok := r.cache.base[v]; ok {
		return b, nil
	}
	if b, ok := r.cache.bdv[v]; ok {
		return b, nil
	}

	var result *ir.Value
	var err error
	switch v.Op {
	case ir.OpCast:
		result, err = r.bdvOf(v.Args[0])
	case ir.OpIndex:
		result, err = r.bdvOf(v.Args[0])
	case ir.OpIntToPtr:
		if v.AuxStr != "frontend-marked" && !r.cfg.AllFunctions {
			return nil, PreconditionErrorf("GC pointer %v is cast from an integer without frontend marking", v)
		}
		result = v
	case ir.OpGlobal, ir.OpAlloca:
		if !r.cfg.AllFunctions {
			return nil, PreconditionErrorf("GC pointer %v is sourced from a global/stack slot outside test mode", v)
		}
		result = v
	case ir.OpParam, ir.OpConstNull, ir.OpConstUndef, ir.OpIntrinsic, ir.OpCall,
		ir.OpAtomic, ir.OpExtract, ir.OpLoad:
		result = v
	case ir.OpPhi, ir.OpSelect:
		result = v // merges are their own BDV; BaseOf does the further work
	default:
		return nil, InternalErrorf("bdvOf: value %v has an op (%v) the resolver cannot classify", v, v.Op)
	}
	if err != nil {
		return nil, err
	}
	r.cache.bdv[v] = result
	return result, nil
}

// mergeOperands returns the value operands of a merge that matter to base
// resolution: all incoming values for a phi, or the two selected values
// (not the condition) for a select.
func mergeOperands(m *ir.Value) []*ir.Value {
	if m.Op == ir.OpPhi {
		return m.Args
	}
	return m.Args[1:3]
}

// BaseOf implements spec.md §4.D's algorithm end to end for a single live
// derived pointer, inserting whatever skeleton merges the lattice
// resolution requires.
func (r *Resolver) BaseOf(v *ir.Value) (*ir.Value, error) {
	if b, ok := r.cache.base[v]; ok {
		return b, nil
	}
	bdv, err := r.bdvOf(v)
	if err != nil {
		return nil, err
	}
	if !bdv.IsMerge() {
		r.cache.base[v] = bdv
		r.cache.base[bdv] = bdv
		return bdv, nil
	}

	workset := map[*ir.Value]bool{}
	if err := r.collectWorkset(bdv, workset); err != nil {
		return nil, err
	}

	lattice := make(map[*ir.Value]latticeVal, len(workset))
	for m := range workset {
		lattice[m] = latticeVal{state: latticeUnknown}
	}

	for changed := true; changed; {
		changed = false
		for m := range workset {
			acc := latticeVal{state: latticeUnknown}
			for _, in := range mergeOperands(m) {
				bdvIn, err := r.bdvOf(in)
				if err != nil {
					return nil, err
				}
				var lv latticeVal
				if workset[bdvIn] {
					lv = lattice[bdvIn]
				} else {
					lv = latticeVal{state: latticeBase, base: bdvIn}
				}
				next := meet(acc, lv)
				if meet(lv, acc) != next {
					return nil, InternalErrorf("meet is not commutative for %v and %v", acc, lv)
				}
				acc = next
			}
			if acc != lattice[m] {
				lattice[m] = acc
				changed = true
			}
		}
	}

	baseOfMerge := make(map[*ir.Value]*ir.Value, len(workset))
	for m := range workset {
		switch lattice[m].state {
		case latticeBase:
			baseOfMerge[m] = lattice[m].base
		case latticeConflict:
			skeleton := r.insertSkeleton(m)
			baseOfMerge[m] = skeleton
			r.cache.base[skeleton] = skeleton
			r.newInserted = append(r.newInserted, skeleton)
		default:
			return nil, InternalErrorf("base lattice for %v failed to converge", m)
		}
	}
	for m := range workset {
		if lattice[m].state != latticeConflict {
			continue
		}
		if err := r.fillSkeleton(m, baseOfMerge[m], baseOfMerge); err != nil {
			return nil, err
		}
	}

	base := baseOfMerge[bdv]
	r.cache.base[v] = base
	r.cache.base[bdv] = base
	return base, nil
}

// collectWorkset gathers m and every merge transitively reachable through
// incoming BDVs that are themselves merges (spec.md §4.D step 2).
func (r *Resolver) collectWorkset(m *ir.Value, workset map[*ir.Value]bool) error {
	if workset[m] {
		return nil
	}
	workset[m] = true
	for _, in := range mergeOperands(m) {
		bdvIn, err := r.bdvOf(in)
		if err != nil {
			return err
		}
		if bdvIn.IsMerge() {
			if err := r.collectWorkset(bdvIn, workset); err != nil {
				return err
			}
		}
	}
	return nil
}

// insertSkeleton creates a new merge of the same shape as m, at the same
// location, sharing its incoming edges — spec.md §4.D step 4. Because it
// shares m's incoming edges exactly, it dominates everything m's own
// derived value dominated (spec.md §4.D "Dominance").
func (r *Resolver) insertSkeleton(m *ir.Value) *ir.Value {
	if m.Op == ir.OpPhi {
		skeleton := ir.NewBuilder(r.f, m.Block()).Phi(m.Name+".base", m.Typ)
		skeleton.AuxStr = "is_base_value"
		skeleton.Edges = append([]*ir.BasicBlock(nil), m.Edges...)
		skeleton.Args = make([]*ir.Value, len(m.Edges))
		return skeleton
	}
	skeleton := &ir.Value{Op: ir.OpSelect, Typ: m.Typ, Name: m.Name + ".base", AuxStr: "is_base_value",
		Args: []*ir.Value{m.Args[0], nil, nil}}
	r.f.InsertBefore(m, skeleton)
	return skeleton
}

// fillSkeleton wires each operand of m's skeleton to the base of the
// corresponding operand of m, inserting a bitcast if the GC-pointer
// subtypes differ (spec.md §4.D step 5).
func (r *Resolver) fillSkeleton(m, skeleton *ir.Value, baseOfMerge map[*ir.Value]*ir.Value) error {
	operands := mergeOperands(m)
	for i, opnd := range operands {
		base, err := r.operandBase(opnd, baseOfMerge)
		if err != nil {
			return err
		}
		if !base.Typ.Equal(skeleton.Typ) {
			base = r.castForSkeleton(m, skeleton, i, base)
		}
		if m.Op == ir.OpPhi {
			skeleton.Args[i] = base
		} else {
			skeleton.Args[i+1] = base
		}
	}
	return nil
}

func (r *Resolver) operandBase(opnd *ir.Value, baseOfMerge map[*ir.Value]*ir.Value) (*ir.Value, error) {
	bdv, err := r.bdvOf(opnd)
	if err != nil {
		return nil, err
	}
	if bdv.IsMerge() {
		if b, ok := baseOfMerge[bdv]; ok {
			return b, nil
		}
		if b, ok := r.cache.base[bdv]; ok {
			return b, nil
		}
		return nil, InternalErrorf("merge %v missing from resolved workset", bdv)
	}
	return bdv, nil
}

// castForSkeleton emits the bitcast spec.md §4.D's edge-case note
// requires: "emitted at the end of the incoming predecessor (for phi) or
// just before the select."
func (r *Resolver) castForSkeleton(m, skeleton *ir.Value, i int, base *ir.Value) *ir.Value {
	name := base.Name + ".basecast"
	cast := &ir.Value{Op: ir.OpCast, Typ: skeleton.Typ, Name: name, Args: []*ir.Value{base}}
	if m.Op == ir.OpPhi {
		pred := m.Edges[i]
		r.f.InsertBefore(pred.Terminator(), cast)
		return cast
	}
	r.f.InsertBefore(skeleton, cast)
	return cast
}
