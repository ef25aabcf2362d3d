// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safepoint

import "github.com/aclements/go-safepoint/ir"

// InlinePoll implements PollInliner (spec.md §4.B): it inserts a symbolic
// call to mod.SafepointPoll immediately before at, inlines the callee's
// body in its place, and returns the non-leaf calls that inlining
// introduced — the new parse points.
func InlinePoll(mod *ir.Module, f *ir.Function, at *ir.Value) ([]*ir.Value, error) {
	if mod.SafepointPoll == nil {
		return nil, ConfigErrorf("no safepoint_poll function registered")
	}
	if len(mod.SafepointPoll.Blocks) == 0 {
		return nil, ConfigErrorf("safepoint_poll is empty")
	}

	bd := ir.NewBuilder(f, at.Block())
	calleeGlobal := bd.Global(mod.SafepointPoll.Name, ir.PointerTo(ir.VoidType, 0))
	call := f.InsertBefore(at, &ir.Value{Op: ir.OpCall, Typ: ir.VoidType, AuxStr: mod.SafepointPoll.Name, Args: []*ir.Value{calleeGlobal}})

	newBlocks, err := ir.Inline(f, call, mod.SafepointPoll)
	if err != nil {
		return nil, err
	}

	var parsePoints []*ir.Value
	for _, b := range newBlocks {
		for _, instr := range b.Instrs {
			if needsCallSafepoint(mod, instr) {
				parsePoints = append(parsePoints, instr)
			}
		}
	}
	return parsePoints, nil
}
