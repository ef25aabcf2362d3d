// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package main wires the transformation into a go/analysis driver, the
// same shape rtanalysis/systemstack uses: a single Analyzer that declares
// buildssa.Analyzer as a dependency, runs over every source function in
// the loaded packages, and reports what it found through pass.Reportf.
//
// Unlike rtanalysis, this pass doesn't just report: it mutates an
// in-memory copy of each function's IR and, with -dump-tables, shells
// out to an external command with the serialized live tables on stdin —
// useful for diffing a run's output against a golden file without
// hand-rolling a second comparison tool.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"reflect"

	"github.com/kballard/go-shellquote"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/buildssa"
	"golang.org/x/tools/go/ssa"

	"github.com/aclements/go-safepoint/ir"
	"github.com/aclements/go-safepoint/safepoint"
	"github.com/aclements/go-safepoint/ssalower"
)

// Result reports, per analyzed source function, how many statepoints the
// pass inserted (or the error that kept it from running).
type Result struct {
	Inserted map[string]int
	Skipped  map[string]string
}

var Analyzer = &analysis.Analyzer{
	Name:       "safepoint",
	Doc:        "inserts GC safepoints (statepoints and relocates) into a lowered copy of each function's IR",
	Run:        run,
	ResultType: reflect.TypeOf((*Result)(nil)),
	Requires:   []*analysis.Analyzer{buildssa.Analyzer},
	Flags:      flags(),
}

var (
	fVerify           int
	fAllBackedges     bool
	fBaseRewriteOnly  bool
	fAllFunctions     bool
	fUseAbstractState bool
	fNoEntry          bool
	fNoBackedge       bool
	fNoCall           bool
	fDumpTables       bool
	fCheckCmd         string
)

// flags builds the Analyzer's flag set, one flag per safepoint.Config
// field except DataflowLiveness (always on, see configFromFlags), plus
// -dump-tables/-check-cmd for the live-table diffing path.
func flags() flag.FlagSet {
	fs := flag.NewFlagSet("safepoint", flag.ExitOnError)
	fs.IntVar(&fVerify, "verify", 0, "IR verification level (0-3)")
	fs.BoolVar(&fAllBackedges, "all-backedges", false, "poll every loop backedge, ignoring trip-count pruning")
	fs.BoolVar(&fBaseRewriteOnly, "base-rewrite-only", false, "stop after base-pointer resolution")
	fs.BoolVar(&fAllFunctions, "all-functions", false, "opt every function into every safepoint kind")
	fs.BoolVar(&fUseAbstractState, "abstract-state", false, "emit each statepoint's five deopt-state operands as zeros instead of -1 placeholders")
	fs.BoolVar(&fNoEntry, "no-entry", false, "disable entry safepoints")
	fs.BoolVar(&fNoBackedge, "no-backedge", false, "disable backedge safepoints")
	fs.BoolVar(&fNoCall, "no-call", false, "disable call safepoints")
	fs.BoolVar(&fDumpTables, "dump-tables", false, "serialize each statepoint's live table and pipe it to -check-cmd")
	fs.StringVar(&fCheckCmd, "check-cmd", "", "shell command (see shellquote) to run with the dumped live tables on stdin")
	return *fs
}

func configFromFlags() safepoint.Config {
	return safepoint.Config{
		VerifyLevel:      fVerify,
		AllBackedges:     fAllBackedges,
		BaseRewriteOnly:  fBaseRewriteOnly,
		AllFunctions:     fAllFunctions,
		UseAbstractState: fUseAbstractState,
		NoEntry:          fNoEntry,
		NoBackedge:       fNoBackedge,
		NoCall:           fNoCall,
		DataflowLiveness: true,
	}
}

func run(pass *analysis.Pass) (interface{}, error) {
	ssaInput := pass.ResultOf[buildssa.Analyzer].(*buildssa.SSA)
	cfg := configFromFlags()

	res := &Result{Inserted: map[string]int{}, Skipped: map[string]string{}}
	mod := ir.NewModule()

	// Lower and register every source function before running the pass
	// over any of them: SelectPollSites' call-site gc-leaf filter looks
	// callees up in mod.Functions by name, and entry/backedge safepoints
	// need mod.SafepointPoll set, so both have to be populated up front
	// rather than discovered function-by-function as the loop below runs.
	lowered := make(map[*ssa.Function]*ir.Function, len(ssaInput.SrcFuncs))
	for _, fn := range ssaInput.SrcFuncs {
		f, err := ssalower.Lower(fn)
		if err != nil {
			res.Skipped[fn.String()] = err.Error()
			continue
		}
		lowered[fn] = f
		mod.AddFunction(f)
		if fn.Name() == "safepoint_poll" {
			mod.SafepointPoll = f
		}
	}

	var tables bytes.Buffer
	for _, fn := range ssaInput.SrcFuncs {
		f, ok := lowered[fn]
		if !ok {
			continue
		}
		statepoints, err := safepoint.Run(mod, f, cfg)
		if err != nil {
			pass.Reportf(fn.Pos(), "safepoint: %v", err)
			res.Skipped[fn.String()] = err.Error()
			continue
		}
		res.Inserted[fn.String()] = len(statepoints)

		if fDumpTables {
			for _, sp := range statepoints {
				table, err := safepoint.DumpLiveTable(sp)
				if err != nil {
					return res, err
				}
				tables.Write(table)
			}
		}
	}

	if fDumpTables && fCheckCmd != "" {
		if err := pipeToCheckCmd(fCheckCmd, tables.Bytes()); err != nil {
			return res, err
		}
	}

	return res, nil
}

// pipeToCheckCmd runs the user-supplied shell command, splitting it into
// argv with shellquote the way git-p's shell helper turns a single
// configured command string into something os/exec can run directly,
// and feeds it the dumped live tables on stdin.
func pipeToCheckCmd(command string, tables []byte) error {
	argv, err := shellquote.Split(command)
	if err != nil {
		return fmt.Errorf("safepoint: -check-cmd: %v", err)
	}
	if len(argv) == 0 {
		return fmt.Errorf("safepoint: -check-cmd: empty command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(tables)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
