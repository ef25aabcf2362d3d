// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// This file implements natural-loop detection via strongly connected
// components, adapted from fkuehnel-golang-cfg/go-code/scc.go's
// Kosaraju-Sharir implementation (reused here for the same reason that
// file gives: the first DFS pass is the postorder we already compute for
// dominance, so the second pass is effectively free).
package ir

// Loop is a natural loop: a single-entry strongly connected component of
// the CFG. Header is the loop's unique entry block (the SCC member with a
// predecessor outside the SCC). Latches are the blocks inside the loop
// with an edge back to Header (the backedges spec.md §4.A wants).
type Loop struct {
	Header  *BasicBlock
	Blocks  []*BasicBlock
	Latches []*BasicBlock
}

func blockSet(blocks []*BasicBlock) map[*BasicBlock]bool {
	m := make(map[*BasicBlock]bool, len(blocks))
	for _, b := range blocks {
		m[b] = true
	}
	return m
}

// sccs returns the strongly connected components of f's reachable CFG,
// each as a slice of blocks, via Kosaraju-Sharir: postorder DFS on
// forward edges, then BFS on reverse edges in reverse postorder.
func sccs(f *Function) [][]*BasicBlock {
	po := postorder(f)
	reachable := blockSet(po)

	seen := make(map[*BasicBlock]bool, len(po))
	var result [][]*BasicBlock
	for i := len(po) - 1; i >= 0; i-- {
		leader := po[i]
		if seen[leader] {
			continue
		}
		var scc []*BasicBlock
		queue := []*BasicBlock{leader}
		seen[leader] = true
		for len(queue) > 0 {
			b := queue[0]
			queue = queue[1:]
			scc = append(scc, b)
			for _, pred := range b.Preds {
				if reachable[pred] && !seen[pred] {
					seen[pred] = true
					queue = append(queue, pred)
				}
			}
		}
		result = append(result, scc)
	}
	return result
}

// Loops returns every natural loop in f. A multi-block SCC is a loop with
// header = the block that has a predecessor outside the SCC (there is
// exactly one, since the pass does not support computed indirect
// branches, so every SCC arising from structured control flow is
// reducible). A single-block SCC with a self-edge is also a loop.
func (f *Function) Loops() []*Loop {
	if f.cachedLoops != nil {
		return f.cachedLoops
	}
	var loops []*Loop
	for _, scc := range sccs(f) {
		members := blockSet(scc)
		var header *BasicBlock
		for _, b := range scc {
			for _, p := range b.Preds {
				if !members[p] {
					header = b
					break
				}
			}
			if header != nil {
				break
			}
		}
		isLoop := len(scc) > 1
		if !isLoop && len(scc) == 1 {
			for _, p := range scc[0].Preds {
				if p == scc[0] {
					isLoop = true
				}
			}
		}
		if !isLoop {
			continue
		}
		if header == nil {
			header = scc[0] // entry-of-function SCC: every block is "header" of the whole function
		}
		var latches []*BasicBlock
		for _, b := range scc {
			for _, s := range b.Succs {
				if s == header {
					latches = append(latches, b)
					break
				}
			}
		}
		loops = append(loops, &Loop{Header: header, Blocks: scc, Latches: latches})
	}
	f.cachedLoops = loops
	return loops
}
