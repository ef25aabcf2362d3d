// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package safepoint implements the GC-safepoint-insertion transformation
// described in spec.md: it finds the program points where a function must
// yield to the garbage collector (A, pollselect.go; B, pollinline.go),
// computes which GC pointers are live there (C, liveness.go) and their
// base objects (D, basepointer.go), and rewrites each such point into a
// statepoint/relocate sequence (E, materialize.go) whose relocated values
// replace every reachable original use (F, relocate.go).
package safepoint

// Config mirrors spec.md §6's configuration table. It is passed
// explicitly through every phase — spec.md §9's "Global state" design
// note rules out process-wide statics or a module-scoped mutable config.
type Config struct {
	// VerifyLevel selects how aggressively ir.Verify is run between
	// phases: 0 none, 1 pre/post only, 2 after each major phase, 3
	// fine-grained (additionally after each statepoint is materialized).
	VerifyLevel int

	// AllBackedges disables the finite-loop pruning in PollSiteSelector:
	// every backedge gets a poll regardless of ir.TripCount.
	AllBackedges bool

	// BaseRewriteOnly stops the pipeline after BasePointerResolver, for
	// isolating base-pointer bugs.
	BaseRewriteOnly bool

	// AllFunctions treats every function as opted into every safepoint
	// kind, and relaxes BaseDefiningValue to additionally accept globals
	// and stack slots as base sources (spec.md §4.D "in test mode").
	AllFunctions bool

	// UseAbstractState sets the five language-level deopt-state operands
	// of each statepoint (spec.md §4.E step 3) to zero; otherwise caller
	// depth and bytecode index are the placeholder -1 and the three
	// counts are 0. No actual deopt state is read from the call in
	// either case.
	UseAbstractState bool

	// NoEntry, NoBackedge, NoCall each disable one class of safepoint
	// regardless of the function's attributes.
	NoEntry     bool
	NoBackedge  bool
	NoCall      bool

	// DataflowLiveness selects LivenessEngine's global (true) vs.
	// on-demand per-site (false) mode.
	DataflowLiveness bool
}

// DefaultConfig returns the configuration a normal compilation uses: full
// verification is off (VerifyLevel 0), finite loops are pruned, and
// global dataflow liveness is used (the common case: many parse points
// per function makes the amortized global pass cheaper than recomputing
// liveness per site).
func DefaultConfig() Config {
	return Config{DataflowLiveness: true}
}
