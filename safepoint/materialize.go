// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safepoint

import (
	"sort"

	"github.com/aclements/go-safepoint/ir"
)

// Materialize implements StatepointMaterializer (spec.md §4.E): it
// replaces call with a statepoint token, one relocate per live value, and
// a result projection if call's result is used.
//
// live is the live set computed by LivenessEngine; baseOf maps every live
// value to the base BasePointerResolver found or synthesized for it. The
// live-value table this builds (sorted base/live pairs, missing bases
// tail-appended) is the same shape as the PC-to-value tables
// aclements-go-misc/pcvaluetab reads out of compiled Go binaries — prior
// art for safepoint/encoding.go's debug serialization of this table, not
// for this in-memory construction (which spec.md specifies directly).
func Materialize(f *ir.Function, call *ir.Value, live []*ir.Value, baseOf map[*ir.Value]*ir.Value, cfg Config) (*ir.Value, error) {
	if call.Block() == nil {
		return nil, InternalErrorf("materialize: call %v is not attached to a block", call)
	}

	// Step 1: ensure every base is itself present in the live vector.
	liveSet := make(map[*ir.Value]bool, len(live))
	for _, v := range live {
		liveSet[v] = true
	}
	full := append([]*ir.Value(nil), live...)
	for _, v := range live {
		b := baseOf[v]
		if b == nil {
			return nil, InternalErrorf("materialize: live value %v has no resolved base", v)
		}
		if !liveSet[b] {
			liveSet[b] = true
			full = append(full, b)
		}
	}

	// Step 2: stable-sort by value name "for diffs" — see spec.md §9's
	// own caveat about this ordering, reaffirmed in DESIGN.md's Open
	// Question log: it is a diff-stability convenience only.
	sort.SliceStable(full, func(i, j int) bool { return full[i].String() < full[j].String() })

	index := make(map[*ir.Value]int, len(full))
	for i, v := range full {
		index[v] = i
	}
	for _, v := range full {
		if _, ok := index[baseOf[v]]; !ok {
			return nil, InternalErrorf("materialize: base %v of %v did not make it into the live table", baseOf[v], v)
		}
	}

	bd := ir.NewBuilder(f, call.Block())
	args := []*ir.Value{call.Callee()}
	args = append(args, bd.ConstInt(ir.Int64Type, int64(len(call.CallArgs()))))
	args = append(args, bd.ConstInt(ir.Int64Type, 0)) // reserved flag word

	if cfg.UseAbstractState {
		// No language-level deopt state reaches Materialize (nothing on
		// the call carries it), so every one of the five fields is
		// emitted as zero.
		for i := 0; i < 5; i++ {
			args = append(args, bd.ConstInt(ir.Int64Type, 0))
		}
	} else {
		args = append(args, bd.ConstInt(ir.Int64Type, -1)) // caller depth
		args = append(args, bd.ConstInt(ir.Int64Type, -1)) // bytecode index
		args = append(args, bd.ConstInt(ir.Int64Type, 0))  // #stack
		args = append(args, bd.ConstInt(ir.Int64Type, 0))  // #locals
		args = append(args, bd.ConstInt(ir.Int64Type, 0))  // #monitors
	}
	args = append(args, call.CallArgs()...)
	// No stack/local/monitor typed entries: this implementation never
	// plumbs a language-level deopt frame, so #stack=#locals=#monitors=0
	// above and there is nothing to encode here.
	liveStart := len(args)
	args = append(args, full...)

	statepoint := f.InsertBefore(call, &ir.Value{
		Op:     ir.OpStatepoint,
		Typ:    ir.VoidType,
		Args:   args,
		AuxStr: call.AuxStr,
		AuxInt: int64(liveStart),
	})
	statepoint.Statepoint = &ir.StatepointAux{Live: full, OrigCall: call}

	// Relocates and the result projection are emitted contiguously right
	// after the token, in that order: the result comes last so that the
	// statepoint's output range (token through its last-emitted
	// relocate-or-result) never has the result's own def-store wedged
	// between the token and a relocate — see relocate.go.
	insertAfter := statepoint
	relocates := make([]*ir.Value, len(full))
	for i, v := range full {
		baseIdx := index[baseOf[v]]
		reloc := f.InsertAfter(insertAfter, &ir.Value{
			Op: ir.OpRelocate, Typ: v.Typ, Name: v.Name + ".relocated",
			Args:   []*ir.Value{statepoint},
			AuxInt: int64(baseIdx),
		})
		insertAfter = reloc
		relocates[i] = reloc
	}
	statepoint.Statepoint.Relocates = relocates

	var result *ir.Value
	if !call.Typ.Equal(ir.VoidType) && len(f.Uses(call)) > 0 {
		result = f.InsertAfter(insertAfter, &ir.Value{
			Op: ir.OpResult, Typ: call.Typ, Name: "result", Args: []*ir.Value{statepoint},
		})
		statepoint.Statepoint.Result = result
	}

	if result != nil {
		f.ReplaceAllUses(call, result)
	}
	f.Remove(call)

	return statepoint, nil
}
