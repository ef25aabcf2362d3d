// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// Builder emits instructions at the end of a single basic block. It is a
// thin convenience layer over Function.emit; safepoint's own
// transformation passes also splice instructions directly when a Builder
// doesn't fit (e.g. inserting before an existing instruction).
type Builder struct {
	F *Function
	B *BasicBlock
}

func NewBuilder(f *Function, b *BasicBlock) *Builder { return &Builder{F: f, B: b} }

func (bd *Builder) emit(v *Value) *Value { return bd.F.emit(bd.B, v) }

func (bd *Builder) ConstNull(typ *Type) *Value {
	return bd.emitRoot(&Value{Op: OpConstNull, Typ: typ})
}

func (bd *Builder) ConstInt(typ *Type, val int64) *Value {
	return bd.emitRoot(&Value{Op: OpConstInt, Typ: typ, AuxInt: val})
}

func (bd *Builder) ConstUndef(typ *Type) *Value {
	return bd.emitRoot(&Value{Op: OpConstUndef, Typ: typ})
}

// emitRoot allocates an id for a root-style value (const) without
// attaching it to any block's instruction list, since constants may be
// shared freely and aren't positioned in the CFG.
func (bd *Builder) emitRoot(v *Value) *Value {
	v.id = bd.F.allocValueID()
	return v
}

func (bd *Builder) Global(name string, typ *Type) *Value {
	return bd.emitRoot(&Value{Op: OpGlobal, Typ: typ, Name: name})
}

func (bd *Builder) Alloca(name string, elem *Type) *Value {
	return bd.emit(&Value{Op: OpAlloca, Typ: PointerTo(elem, 0), Name: name})
}

func (bd *Builder) Load(name string, typ *Type, addr *Value) *Value {
	return bd.emit(&Value{Op: OpLoad, Typ: typ, Name: name, Args: []*Value{addr}})
}

func (bd *Builder) Store(addr, val *Value) *Value {
	return bd.emit(&Value{Op: OpStore, Typ: VoidType, Args: []*Value{addr, val}})
}

func (bd *Builder) Cast(name string, typ *Type, src *Value) *Value {
	return bd.emit(&Value{Op: OpCast, Typ: typ, Name: name, Args: []*Value{src}})
}

func (bd *Builder) IntToPtr(name string, typ *Type, src *Value, frontendMarked bool) *Value {
	v := &Value{Op: OpIntToPtr, Typ: typ, Name: name, Args: []*Value{src}}
	if frontendMarked {
		v.AuxStr = "frontend-marked"
	}
	return bd.emit(v)
}

func (bd *Builder) Index(name string, typ *Type, base *Value, offset int64) *Value {
	return bd.emit(&Value{Op: OpIndex, Typ: typ, Name: name, Args: []*Value{base}, AuxInt: offset})
}

func (bd *Builder) Extract(name string, typ *Type, agg *Value, field int64) *Value {
	return bd.emit(&Value{Op: OpExtract, Typ: typ, Name: name, Args: []*Value{agg}, AuxInt: field})
}

// Opaque emits a value standing in for some non-pointer computation
// (arithmetic, comparisons, string/slice operations on non-GC-typed
// data, ...) that the pass does not need to reason about beyond
// tracking its operands' dominance. It is never a GC pointer.
func (bd *Builder) Opaque(name string, typ *Type, args ...*Value) *Value {
	return bd.emit(&Value{Op: OpOpaque, Typ: typ, Name: name, Args: args})
}

func (bd *Builder) Atomic(name string, typ *Type, args ...*Value) *Value {
	return bd.emit(&Value{Op: OpAtomic, Typ: typ, Name: name, Args: args})
}

// Call emits a direct call. Whether the callee is a GC leaf is not
// recorded here: PollSiteSelector looks the callee up by name and checks
// its "gc-leaf-function" attribute.
func (bd *Builder) Call(name string, typ *Type, callee string, args ...*Value) *Value {
	calleeVal := bd.Global(callee, PointerTo(VoidType, 0))
	full := append([]*Value{calleeVal}, args...)
	return bd.emit(&Value{Op: OpCall, Typ: typ, Name: name, Args: full, AuxStr: callee})
}

// Intrinsic emits a call recognized as a named intrinsic (memset and
// friends need safepoints; most others don't — see safepoint/pollselect.go).
func (bd *Builder) Intrinsic(name string, typ *Type, intrinsic string, args ...*Value) *Value {
	calleeVal := bd.Global(intrinsic, PointerTo(VoidType, 0))
	full := append([]*Value{calleeVal}, args...)
	return bd.emit(&Value{Op: OpIntrinsic, Typ: typ, Name: name, Args: full, AuxStr: intrinsic})
}

func (bd *Builder) Phi(name string, typ *Type) *Value {
	return bd.F.emitFront(bd.B, &Value{Op: OpPhi, Typ: typ, Name: name})
}

// AddIncoming appends one incoming (value, block) pair to a phi.
func (phi *Value) AddIncoming(val *Value, from *BasicBlock) {
	phi.Args = append(phi.Args, val)
	phi.Edges = append(phi.Edges, from)
}

func (bd *Builder) Select(name string, typ *Type, cond, ifTrue, ifFalse *Value) *Value {
	return bd.emit(&Value{Op: OpSelect, Typ: typ, Name: name, Args: []*Value{cond, ifTrue, ifFalse}})
}

// Jump terminates bd.B with an unconditional jump, wiring the CFG edge.
func (bd *Builder) Jump(target *BasicBlock) *Value {
	v := bd.emit(&Value{Op: OpJump, Typ: VoidType, Edges: []*BasicBlock{target}})
	bd.F.AddEdge(bd.B, target)
	return v
}

// Branch terminates bd.B with a conditional branch, wiring both edges.
func (bd *Builder) Branch(cond *Value, thenB, elseB *BasicBlock) *Value {
	v := bd.emit(&Value{Op: OpBranch, Typ: VoidType, Args: []*Value{cond}, Edges: []*BasicBlock{thenB, elseB}})
	bd.F.AddEdge(bd.B, thenB)
	bd.F.AddEdge(bd.B, elseB)
	return v
}

func (bd *Builder) Return(val *Value) *Value {
	var args []*Value
	if val != nil {
		args = []*Value{val}
	}
	return bd.emit(&Value{Op: OpReturn, Typ: VoidType, Args: args})
}

func (bd *Builder) Unreachable() *Value {
	return bd.emit(&Value{Op: OpUnreachable, Typ: VoidType})
}
