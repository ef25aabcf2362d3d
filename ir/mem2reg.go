// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// Mem2Reg promotes the given alloca slots to SSA registers: iterated
// dominance-frontier phi placement followed by dominator-tree-order
// renaming (Cytron, Ferrante, Rosen, Wegman & Zadeck). spec.md's
// RelocationRewriter (§4.F) is the only caller: it allocates one slot per
// live value, spills every def and relocate into it, reads every use back
// out of it, then calls this to eliminate the slots again. spec.md lists
// "SSA promotion of memory slots (mem2reg)" as an out-of-scope external
// collaborator in the general case (arbitrary source-level allocas), but
// the narrow promotion of the slots RelocationRewriter itself introduces
// is core §4.F machinery — see SPEC_FULL.md §D.
func Mem2Reg(f *Function, slots []*Value) error {
	if len(slots) == 0 {
		return nil
	}
	slotSet := make(map[*Value]bool, len(slots))
	for _, s := range slots {
		slotSet[s] = true
	}

	defBlocks := map[*Value]map[*BasicBlock]bool{}
	for _, s := range slots {
		defBlocks[s] = map[*BasicBlock]bool{}
	}
	for _, instr := range f.AllInstructions() {
		if instr.Op == OpStore && slotSet[instr.Args[0]] {
			defBlocks[instr.Args[0]][instr.Block()] = true
		}
	}

	df := dominanceFrontier(f)

	phiSlot := map[*Value]*Value{}     // inserted phi -> slot
	blockPhi := map[*Value]map[*BasicBlock]*Value{} // slot -> block -> its phi
	for _, s := range slots {
		hasPhi := map[*BasicBlock]bool{}
		blockPhi[s] = map[*BasicBlock]*Value{}
		var worklist []*BasicBlock
		onWorklist := map[*BasicBlock]bool{}
		for b := range defBlocks[s] {
			worklist = append(worklist, b)
			onWorklist[b] = true
		}
		for len(worklist) > 0 {
			b := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for y := range df[b] {
				if hasPhi[y] {
					continue
				}
				phi := NewBuilder(f, y).Phi(s.Name+".phi", s.Typ.Elem)
				hasPhi[y] = true
				phiSlot[phi] = s
				blockPhi[s][y] = phi
				if !onWorklist[y] {
					worklist = append(worklist, y)
					onWorklist[y] = true
				}
			}
		}
	}

	idom := f.Idom()
	domChildren := map[*BasicBlock][]*BasicBlock{}
	for _, b := range f.Blocks {
		if p := idom[b]; p != nil && p != b {
			domChildren[p] = append(domChildren[p], b)
		}
	}

	stacks := map[*Value][]*Value{}
	for _, s := range slots {
		stacks[s] = []*Value{undefFor(f, s)}
	}

	var rename func(b *BasicBlock)
	rename = func(b *BasicBlock) {
		pushed := map[*Value]int{}
		for _, phi := range b.Phis() {
			if s, ok := phiSlot[phi]; ok {
				stacks[s] = append(stacks[s], phi)
				pushed[s]++
			}
		}
		var toRemove []*Value
		for _, instr := range b.Instrs {
			switch {
			case instr.Op == OpLoad && slotSet[instr.Args[0]]:
				s := instr.Args[0]
				cur := stacks[s][len(stacks[s])-1]
				f.ReplaceAllUses(instr, cur)
				toRemove = append(toRemove, instr)
			case instr.Op == OpStore && slotSet[instr.Args[0]]:
				s := instr.Args[0]
				stacks[s] = append(stacks[s], instr.Args[1])
				pushed[s]++
				toRemove = append(toRemove, instr)
			}
		}
		for _, succ := range b.Succs {
			for _, phi := range succ.Phis() {
				if s, ok := phiSlot[phi]; ok {
					phi.AddIncoming(stacks[s][len(stacks[s])-1], b)
				}
			}
		}
		for _, c := range domChildren[b] {
			rename(c)
		}
		for s, n := range pushed {
			stacks[s] = stacks[s][:len(stacks[s])-n]
		}
		removeInstrs(b, toRemove)
	}
	rename(f.Entry)

	// Every slot's alloca is now dead; remove it.
	for _, s := range slots {
		removeInstrs(s.Block(), []*Value{s})
	}
	f.invalidateCFG()
	return nil
}

func undefFor(f *Function, slot *Value) *Value {
	bd := NewBuilder(f, f.Entry)
	return bd.ConstUndef(slot.Typ.Elem)
}

// removeInstrs deletes the named instructions from b.Instrs in place.
func removeInstrs(b *BasicBlock, dead []*Value) {
	if len(dead) == 0 {
		return
	}
	deadSet := make(map[*Value]bool, len(dead))
	for _, d := range dead {
		deadSet[d] = true
	}
	kept := b.Instrs[:0]
	for _, instr := range b.Instrs {
		if !deadSet[instr] {
			kept = append(kept, instr)
		}
	}
	b.Instrs = kept
}

// dominanceFrontier computes DF(b) for every block, per Cooper, Harvey &
// Kennedy's "A Simple, Fast Dominance Algorithm."
func dominanceFrontier(f *Function) map[*BasicBlock]map[*BasicBlock]bool {
	idom := f.Idom()
	df := make(map[*BasicBlock]map[*BasicBlock]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		df[b] = map[*BasicBlock]bool{}
	}
	for _, b := range f.Blocks {
		if len(b.Preds) < 2 {
			continue
		}
		for _, p := range b.Preds {
			runner := p
			for runner != idom[b] {
				df[runner][b] = true
				if runner == f.Entry {
					break
				}
				runner = idom[runner]
			}
		}
	}
	return df
}
