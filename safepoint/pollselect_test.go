// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safepoint

import (
	"testing"

	"github.com/aclements/go-safepoint/ir"
)

func TestSelectPollSitesEntry(t *testing.T) {
	mod := ir.NewModule()
	f := ir.NewFunction("f")
	f.Attrs["gc-add-entry-safepoints"] = true
	ir.NewBuilder(f, f.Entry).Return(nil)

	sites, err := SelectPollSites(mod, f, DefaultConfig())
	if err != nil {
		t.Fatalf("SelectPollSites: %v", err)
	}
	if sites.Entry == nil {
		t.Error("expected an entry poll site")
	}
	if sites.Entry != f.Entry.Terminator() {
		t.Errorf("entry poll site = %v, want entry's own terminator", sites.Entry)
	}
}

func TestSelectPollSitesNoEntryWithoutAttr(t *testing.T) {
	mod := ir.NewModule()
	f := ir.NewFunction("f")
	ir.NewBuilder(f, f.Entry).Return(nil)

	sites, err := SelectPollSites(mod, f, DefaultConfig())
	if err != nil {
		t.Fatalf("SelectPollSites: %v", err)
	}
	if sites.Entry != nil {
		t.Error("function without gc-add-entry-safepoints should get no entry poll")
	}
}

func TestSelectPollSitesCallFiltersLeaf(t *testing.T) {
	mod := ir.NewModule()
	leaf := ir.NewFunction("leaf")
	leaf.Attrs["gc-leaf-function"] = true
	mod.AddFunction(leaf)
	nonLeaf := ir.NewFunction("nonleaf")
	mod.AddFunction(nonLeaf)

	f := ir.NewFunction("f")
	f.Attrs["gc-add-call-safepoints"] = true
	bd := ir.NewBuilder(f, f.Entry)
	bd.Call("", ir.VoidType, "leaf")
	bd.Call("", ir.VoidType, "nonleaf")
	bd.Return(nil)

	sites, err := SelectPollSites(mod, f, DefaultConfig())
	if err != nil {
		t.Fatalf("SelectPollSites: %v", err)
	}
	if len(sites.Calls) != 1 {
		t.Fatalf("got %d call sites, want 1 (leaf call filtered out)", len(sites.Calls))
	}
	if sites.Calls[0].AuxStr != "nonleaf" {
		t.Errorf("surviving call site callee = %q, want %q", sites.Calls[0].AuxStr, "nonleaf")
	}
}

func TestSelectPollSitesIntrinsicAllowlist(t *testing.T) {
	mod := ir.NewModule()
	f := ir.NewFunction("f")
	f.Attrs["gc-add-call-safepoints"] = true
	bd := ir.NewBuilder(f, f.Entry)
	bd.Intrinsic("", ir.VoidType, "memmove")
	bd.Intrinsic("", ir.VoidType, "strlen")
	bd.Return(nil)

	sites, err := SelectPollSites(mod, f, DefaultConfig())
	if err != nil {
		t.Fatalf("SelectPollSites: %v", err)
	}
	if len(sites.Calls) != 1 || sites.Calls[0].AuxStr != "memmove" {
		t.Errorf("sites.Calls = %v, want only the memmove intrinsic", sites.Calls)
	}
}

func TestSelectPollSitesBackedgeFinitePruned(t *testing.T) {
	mod := ir.NewModule()
	f := ir.NewFunction("f", ir.Int64Type)
	f.Attrs["gc-add-backedge-safepoints"] = true
	header := f.NewBlock("header")
	body := f.NewBlock("body")
	exit := f.NewBlock("exit")

	ir.NewBuilder(f, f.Entry).Jump(header)
	headerBd := ir.NewBuilder(f, header)
	phi := headerBd.Phi("i", ir.Int64Type)
	bound := headerBd.ConstInt(ir.Int64Type, 10)
	// TripCount's cond recognizer accepts any OpAtomic value regardless
	// of AuxStr (see ir/tripcount.go); Atomic is the nearest Builder
	// constructor for a bare comparison, so it stands in for "icmp.slt"
	// here.
	cond := headerBd.Atomic("lt", ir.BoolType, phi, bound)
	headerBd.Branch(cond, body, exit)
	bodyBd := ir.NewBuilder(f, body)
	next := bodyBd.Index("i.next", ir.Int64Type, phi, 1)
	bodyBd.Jump(header)
	start := ir.NewBuilder(f, nil).ConstInt(ir.Int64Type, 0)
	phi.AddIncoming(start, f.Entry)
	phi.AddIncoming(next, body)
	ir.NewBuilder(f, exit).Return(nil)

	cfg := DefaultConfig()
	sites, err := SelectPollSites(mod, f, cfg)
	if err != nil {
		t.Fatalf("SelectPollSites: %v", err)
	}
	if len(sites.Backedges) != 0 {
		t.Errorf("a provably-finite loop's backedge should be pruned, got %v", sites.Backedges)
	}

	cfg.AllBackedges = true
	sites, err = SelectPollSites(mod, f, cfg)
	if err != nil {
		t.Fatalf("SelectPollSites (AllBackedges): %v", err)
	}
	if len(sites.Backedges) != 1 {
		t.Errorf("AllBackedges=true should poll every backedge regardless of trip count, got %v", sites.Backedges)
	}
}
