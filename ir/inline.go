// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// Inline splices a fresh copy of callee's body in place of call, which
// must be a void OpCall instruction with no arguments naming callee
// (PollInliner's only use: inlining safepoint_poll at a poll location).
// This is narrower than a general-purpose inliner — spec.md lists
// "function inlining" as an out-of-scope external collaborator, but the
// pass can't run at all without *some* implementation of "clone
// safepoint_poll's body in place," so this single-call-site form is
// in-tree.
//
// It returns the blocks newly introduced by the clone, in the same order
// as callee.Blocks, so PollInliner can scan exactly that range for new
// parse points (spec.md §4.B: "the newly introduced basic blocks are
// scanned... to collect call instructions").
func Inline(f *Function, call *Value, callee *Function) ([]*BasicBlock, error) {
	if call.Op != OpCall {
		return nil, InternalErrorf("Inline: call site is not OpCall: %v", call)
	}
	if callee.Entry == nil || len(callee.Blocks) == 0 {
		return nil, ConfigErrorf("Inline: callee %q is empty", callee.Name)
	}
	for _, b := range callee.Blocks {
		if len(b.Preds) == 0 && b != callee.Entry {
			return nil, ConfigErrorf("Inline: callee %q has an unreachable block %v", callee.Name, b)
		}
	}

	callBlock := call.Block()
	idx := indexOf(callBlock.Instrs, call)

	// Split callBlock at call: everything from call onward moves to a
	// fresh continuation block.
	cont := f.NewBlock(callBlock.Name + ".cont")
	cont.Instrs = append(cont.Instrs, callBlock.Instrs[idx+1:]...)
	for _, instr := range cont.Instrs {
		instr.block = cont
	}
	callBlock.Instrs = callBlock.Instrs[:idx]

	// Re-home callBlock's successors onto cont (the continuation keeps
	// the original control flow; callBlock will instead jump into the
	// cloned callee).
	for _, s := range callBlock.Succs {
		f.RemoveEdge(callBlock, s)
		f.AddEdge(cont, s)
		retargetPhiEdges(s, callBlock, cont)
	}

	// Clone callee's blocks into f.
	blockMap := map[*BasicBlock]*BasicBlock{}
	valueMap := map[*Value]*Value{}
	var newBlocks []*BasicBlock
	for _, b := range callee.Blocks {
		nb := f.NewBlock("poll." + b.Name)
		blockMap[b] = nb
		newBlocks = append(newBlocks, nb)
	}
	for i, pv := range callee.Params {
		if i < len(call.CallArgs()) {
			valueMap[pv] = call.CallArgs()[i]
		}
	}
	for _, b := range callee.Blocks {
		nb := blockMap[b]
		for _, instr := range b.Instrs {
			nv := cloneValue(f, nb, instr)
			valueMap[instr] = nv
		}
	}
	// Second pass: fix up operand/edge references now that every value
	// and block has a clone.
	for _, b := range callee.Blocks {
		nb := blockMap[b]
		for i, instr := range b.Instrs {
			ninstr := nb.Instrs[i]
			for j, a := range instr.Args {
				if repl, ok := valueMap[a]; ok {
					ninstr.Args[j] = repl
				}
			}
			for j, eb := range instr.Edges {
				if repl, ok := blockMap[eb]; ok {
					ninstr.Edges[j] = repl
				}
			}
		}
		for _, p := range b.Preds {
			f.AddEdge(blockMap[p], nb)
		}
	}

	// callBlock jumps into the cloned entry.
	NewBuilder(f, callBlock).Jump(blockMap[callee.Entry])

	// Every cloned return becomes a jump to cont.
	for _, b := range newBlocks {
		term := b.Terminator()
		if term != nil && term.Op == OpReturn {
			idx := indexOf(b.Instrs, term)
			b.Instrs = b.Instrs[:idx]
			NewBuilder(f, b).Jump(cont)
		}
	}

	return newBlocks, nil
}

func cloneValue(f *Function, nb *BasicBlock, v *Value) *Value {
	cp := *v
	cp.Args = append([]*Value(nil), v.Args...)
	cp.Edges = append([]*BasicBlock(nil), v.Edges...)
	if v.Op == OpPhi {
		return f.emitFront(nb, &cp)
	}
	return f.emit(nb, &cp)
}

func indexOf(s []*Value, v *Value) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// retargetPhiEdges rewrites any phi in block succ whose Edges reference
// old to instead reference repl (used when splitting a block: successors'
// phis must now see the new predecessor).
func retargetPhiEdges(succ *BasicBlock, old, repl *BasicBlock) {
	for _, phi := range succ.Phis() {
		for i, e := range phi.Edges {
			if e == old {
				phi.Edges[i] = repl
			}
		}
	}
}
