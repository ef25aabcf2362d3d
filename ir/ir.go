// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ir defines the minimal typed SSA intermediate representation
// that the safepoint-insertion pass in package safepoint operates over.
//
// This is deliberately small: spec.md treats the IR itself, dominator-tree
// construction, loop detection, inlining, mem2reg and verification as
// pre-existing external collaborators. Nothing in the corpus provides an
// IR shaped like the one the pass needs, so this package plays that role.
// Its Value type follows the same "tagged variant over a small opcode set"
// shape as cmd/compile/internal/ssa's Value (Op + Args + AuxInt + Aux),
// rather than a class hierarchy per instruction kind — see the "Deep
// inheritance" design note in spec.md §9.
package ir

import "fmt"

// AddressSpace tags a pointer type. GCAddressSpace is the only address
// space the pass treats specially: a pointer in this address space is a
// GC pointer and must be tracked across safepoints.
type AddressSpace int

const GCAddressSpace AddressSpace = 1

// Kind is the small set of type kinds the pass distinguishes.
type Kind int

const (
	KindInvalid Kind = iota
	KindVoid
	KindBool
	KindInt
	KindFloat
	KindPointer
	KindAggregate
	KindFunc
)

// Type is a small value type. The basic types (VoidType, Int64Type, ...)
// are shared package variables, while PointerTo builds a fresh instance on
// every call; equality is structural (see Equal), so sharing is not
// required for correctness.
type Type struct {
	Kind      Kind
	AddrSpace AddressSpace // meaningful only when Kind == KindPointer
	Elem      *Type        // pointer element type
	Fields    []Type       // aggregate field types
	Name      string       // printable name, e.g. "i64", "%MyStruct"
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KindPointer:
		return fmt.Sprintf("ptr(%d) %s", t.AddrSpace, t.Elem)
	case KindAggregate:
		return "{" + t.Name + "}"
	default:
		if t.Name != "" {
			return t.Name
		}
		return fmt.Sprintf("kind%d", t.Kind)
	}
}

// Equal reports whether t and u describe the same type.
func (t *Type) Equal(u *Type) bool {
	if t == u {
		return true
	}
	if t == nil || u == nil || t.Kind != u.Kind {
		return false
	}
	switch t.Kind {
	case KindPointer:
		return t.AddrSpace == u.AddrSpace && t.Elem.Equal(u.Elem)
	case KindAggregate:
		if len(t.Fields) != len(u.Fields) {
			return false
		}
		for i := range t.Fields {
			if !t.Fields[i].Equal(&u.Fields[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// IsGCPointer reports whether t is a pointer in the GC address space.
func (t *Type) IsGCPointer() bool {
	return t != nil && t.Kind == KindPointer && t.AddrSpace == GCAddressSpace
}

// IsPointer reports whether t is any pointer type.
func (t *Type) IsPointer() bool { return t != nil && t.Kind == KindPointer }

var (
	VoidType  = &Type{Kind: KindVoid, Name: "void"}
	BoolType  = &Type{Kind: KindBool, Name: "bool"}
	Int64Type = &Type{Kind: KindInt, Name: "i64"}
	Int32Type = &Type{Kind: KindInt, Name: "i32"}
	Float64Type = &Type{Kind: KindFloat, Name: "f64"}
)

// PointerTo returns a pointer type to elem in the given address space.
func PointerTo(elem *Type, space AddressSpace) *Type {
	return &Type{Kind: KindPointer, AddrSpace: space, Elem: elem}
}

// GCPointerTo returns a GC-pointer type (address space 1) to elem.
func GCPointerTo(elem *Type) *Type {
	return PointerTo(elem, GCAddressSpace)
}

// Op is the opcode of a Value. The same set of opcodes covers every kind
// of instruction (and merge) the pass needs to distinguish; non-struct
// data that varies per opcode lives in AuxInt/AuxStr/Edges.
type Op int

const (
	OpInvalid Op = iota

	// Root values — not part of any block's instruction list.
	OpParam
	OpConstInt
	OpConstNull
	OpConstUndef
	OpGlobal

	// Memory.
	OpAlloca
	OpLoad
	OpStore

	// Derivation.
	OpCast     // bitcast between pointer types, possibly changing GC-pointer subtype
	OpIntToPtr // int -> ptr; rejected unless marked or in permissive test mode
	OpIndex    // GEP-like: index a pointer, producing a derived pointer
	OpExtract  // extract a field from an aggregate result (e.g. of a call)
	OpAtomic   // cmpxchg or RMW; result is its own BDV
	OpOpaque   // some non-pointer computation (arithmetic, comparisons, ...);
	           // never a GC pointer, never classified as a BDV

	// Calls.
	OpCall
	OpIntrinsic // a call recognized as a named intrinsic (memset, memcpy, ...)

	// Merges.
	OpPhi
	OpSelect

	// Terminators.
	OpJump
	OpBranch
	OpReturn
	OpUnreachable

	// Safepoint machinery, introduced by StatepointMaterializer.
	OpStatepoint
	OpRelocate
	OpResult
)

func (op Op) String() string {
	names := map[Op]string{
		OpParam: "param", OpConstInt: "const.int", OpConstNull: "const.null",
		OpConstUndef: "undef", OpGlobal: "global", OpAlloca: "alloca",
		OpLoad: "load", OpStore: "store", OpCast: "cast", OpIntToPtr: "inttoptr",
		OpIndex: "index", OpExtract: "extract", OpAtomic: "atomic", OpOpaque: "opaque", OpCall: "call",
		OpIntrinsic: "intrinsic", OpPhi: "phi", OpSelect: "select", OpJump: "jump",
		OpBranch: "branch", OpReturn: "return", OpUnreachable: "unreachable",
		OpStatepoint: "statepoint", OpRelocate: "gc.relocate", OpResult: "gc.result",
	}
	if s, ok := names[op]; ok {
		return s
	}
	return "op?"
}

// Value is a single SSA value: either an instruction (if Block is non-nil)
// or a root value (parameter, constant, global).
type Value struct {
	id   int
	Op   Op
	Typ  *Type
	Name string

	block *BasicBlock // nil for params/consts/globals

	// Args are the operand values, in opcode-specific order. For OpCall
	// and OpStatepoint, Args[0] is the callee and Args[1:] are the
	// original call arguments (see CallArgs).
	Args []*Value

	// Edges holds the incoming block for each Args[i] of an OpPhi, or
	// the jump targets of a terminator (OpJump: [target]; OpBranch:
	// [then, else]).
	Edges []*BasicBlock

	AuxInt int64  // constant value / GEP index / statepoint field
	AuxStr string // callee name / intrinsic name / frontend attribute

	// Statepoint carries the extra bookkeeping StatepointMaterializer
	// needs once a call has been turned into a parse point. Nil for
	// every other opcode.
	Statepoint *StatepointAux
}

// StatepointAux is attached to an OpStatepoint value: the ordered live
// table it was materialized from, kept so RelocationRewriter and tests can
// find "the Nth live value of this statepoint" without re-deriving it.
type StatepointAux struct {
	Live       []*Value // the live (base+derived) table, in final emitted order
	Result     *Value   // the OpResult projection, or nil if the call was void/unused
	Relocates  []*Value // one OpRelocate per entry in Live, same order
	OrigCall   *Value   // the original (now-detached) call instruction, kept for debugging
}

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	if v.Name != "" {
		return "%" + v.Name
	}
	return fmt.Sprintf("%%v%d", v.id)
}

// IsGCPointer reports whether v has GC-pointer type.
func (v *Value) IsGCPointer() bool { return v.Typ.IsGCPointer() }

// IsMerge reports whether v is a phi or select.
func (v *Value) IsMerge() bool { return v.Op == OpPhi || v.Op == OpSelect }

// IsTerminator reports whether v is a block terminator.
func (v *Value) IsTerminator() bool {
	switch v.Op {
	case OpJump, OpBranch, OpReturn, OpUnreachable:
		return true
	}
	return false
}

// Block returns the basic block v is defined in, or nil for a root value.
func (v *Value) Block() *BasicBlock { return v.block }

// CallArgs returns the original call arguments of a call/statepoint value
// (i.e. Args without the leading callee).
func (v *Value) CallArgs() []*Value {
	if len(v.Args) == 0 {
		return nil
	}
	return v.Args[1:]
}

// Callee returns the callee operand of a call/statepoint value.
func (v *Value) Callee() *Value {
	if len(v.Args) == 0 {
		return nil
	}
	return v.Args[0]
}

// BasicBlock is an ordered sequence of instructions ending in a terminator.
type BasicBlock struct {
	id     int
	Name   string
	Func   *Function
	Instrs []*Value // phis (if any) first, terminator last
	Preds  []*BasicBlock
	Succs  []*BasicBlock
}

func (b *BasicBlock) String() string {
	if b.Name != "" {
		return b.Name
	}
	return fmt.Sprintf("bb%d", b.id)
}

// Index returns b's position in its function's reachable block numbering,
// used by dominance/liveness to index parallel slices. Function.Idom
// renumbers blocks by postorder position when it computes the dominator
// tree, so the index is meaningful only after that call and until the CFG
// changes again.
func (b *BasicBlock) Index() int { return b.id }

// Terminator returns the last instruction of b, or nil if b is empty
// (which never happens for a well-formed function, but Verify checks it).
func (b *BasicBlock) Terminator() *Value {
	if len(b.Instrs) == 0 {
		return nil
	}
	return b.Instrs[len(b.Instrs)-1]
}

// Phis returns the leading phi instructions of b.
func (b *BasicBlock) Phis() []*Value {
	var out []*Value
	for _, instr := range b.Instrs {
		if instr.Op != OpPhi {
			break
		}
		out = append(out, instr)
	}
	return out
}

// Function owns a CFG of basic blocks and a set of string attributes
// (spec.md §6: "gc-add-entry-safepoints" and friends).
type Function struct {
	Name   string
	Params []*Value
	Blocks []*BasicBlock
	Entry  *BasicBlock
	Attrs  map[string]bool

	nextValueID int
	nextBlockID int

	cachedPostorder []*BasicBlock
	cachedIdom      []*BasicBlock
	cachedLoops     []*Loop
}

// NewFunction creates an empty function with the given name and
// parameter types. The entry block is created automatically.
func NewFunction(name string, paramTypes ...*Type) *Function {
	f := &Function{Name: name, Attrs: map[string]bool{}}
	for i, t := range paramTypes {
		f.Params = append(f.Params, &Value{id: f.allocValueID(), Op: OpParam, Typ: t, Name: fmt.Sprintf("arg%d", i)})
	}
	f.Entry = f.NewBlock("entry")
	return f
}

func (f *Function) allocValueID() int { id := f.nextValueID; f.nextValueID++; return id }

// NewBlock creates a new, detached basic block owned by f.
func (f *Function) NewBlock(name string) *BasicBlock {
	b := &BasicBlock{id: f.nextBlockID, Name: name, Func: f}
	f.nextBlockID++
	f.Blocks = append(f.Blocks, b)
	f.invalidateCFG()
	return b
}

// invalidateCFG drops every cache keyed by block identity/numbering;
// called whenever the CFG shape changes. Mirrors
// fkuehnel-golang-cfg/go-code/func.go's invalidateCFG.
func (f *Function) invalidateCFG() {
	f.cachedPostorder = nil
	f.cachedIdom = nil
	f.cachedLoops = nil
}

// AddEdge records a CFG edge from -> to. Callers are responsible for
// keeping this consistent with the terminator's Edges field.
func (f *Function) AddEdge(from, to *BasicBlock) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
	f.invalidateCFG()
}

// RemoveEdge removes one instance of the from -> to edge.
func (f *Function) RemoveEdge(from, to *BasicBlock) {
	from.Succs = removeOneBlock(from.Succs, to)
	to.Preds = removeOneBlock(to.Preds, from)
	f.invalidateCFG()
}

func removeOneBlock(s []*BasicBlock, v *BasicBlock) []*BasicBlock {
	for i, b := range s {
		if b == v {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}

// emit appends a new instruction value to b and returns it.
func (f *Function) emit(b *BasicBlock, v *Value) *Value {
	v.id = f.allocValueID()
	v.block = b
	b.Instrs = append(b.Instrs, v)
	return v
}

// emitFront prepends v (used for phis, which must precede other
// instructions in a block).
func (f *Function) emitFront(b *BasicBlock, v *Value) *Value {
	v.id = f.allocValueID()
	v.block = b
	b.Instrs = append([]*Value{v}, b.Instrs...)
	return v
}

// InsertBefore splices v into before's block immediately prior to before.
func (f *Function) InsertBefore(before, v *Value) *Value {
	b := before.Block()
	idx := indexOf(b.Instrs, before)
	if idx < 0 {
		panic("ir: InsertBefore: before is not in its own block's instruction list")
	}
	v.id = f.allocValueID()
	v.block = b
	tail := append([]*Value{v}, b.Instrs[idx:]...)
	b.Instrs = append(b.Instrs[:idx:idx], tail...)
	return v
}

// InsertAfter splices v into after's block immediately following after.
func (f *Function) InsertAfter(after, v *Value) *Value {
	b := after.Block()
	idx := indexOf(b.Instrs, after)
	if idx < 0 {
		panic("ir: InsertAfter: after is not in its own block's instruction list")
	}
	v.id = f.allocValueID()
	v.block = b
	tail := append([]*Value{v}, b.Instrs[idx+1:]...)
	b.Instrs = append(b.Instrs[:idx+1:idx+1], tail...)
	return v
}

// Remove detaches v from its block's instruction list. It does not rewrite
// uses of v; callers that need that must call ReplaceAllUses first.
func (f *Function) Remove(v *Value) {
	b := v.Block()
	if b == nil {
		return
	}
	idx := indexOf(b.Instrs, v)
	if idx < 0 {
		return
	}
	b.Instrs = append(b.Instrs[:idx:idx], b.Instrs[idx+1:]...)
	v.block = nil
}

// Uses returns every instruction in f with an operand (direct argument or
// statepoint live-table entry) equal to v.
func (f *Function) Uses(v *Value) []*Value {
	var out []*Value
	for _, instr := range f.AllInstructions() {
		for _, a := range instr.Args {
			if a == v {
				out = append(out, instr)
				break
			}
		}
	}
	return out
}

// ReplaceAllUses rewrites every operand reference to old (anywhere in f)
// to refer to repl instead. It does not touch phi Edges (those name
// blocks, not values).
func (f *Function) ReplaceAllUses(old, repl *Value) {
	for _, b := range f.Blocks {
		for _, instr := range b.Instrs {
			for i, a := range instr.Args {
				if a == old {
					instr.Args[i] = repl
				}
			}
			if instr.Statepoint != nil {
				for i, lv := range instr.Statepoint.Live {
					if lv == old {
						instr.Statepoint.Live[i] = repl
					}
				}
			}
		}
	}
}

// AllInstructions returns every instruction in f, in block order.
func (f *Function) AllInstructions() []*Value {
	var out []*Value
	for _, b := range f.Blocks {
		out = append(out, b.Instrs...)
	}
	return out
}

// RemoveUnreachableBlocks deletes every block not reachable from Entry
// (spec.md §4.A: "Unreachable blocks are removed before selection").
func (f *Function) RemoveUnreachableBlocks() {
	reachable := map[*BasicBlock]bool{f.Entry: true}
	work := []*BasicBlock{f.Entry}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range b.Succs {
			if !reachable[s] {
				reachable[s] = true
				work = append(work, s)
			}
		}
	}
	kept := f.Blocks[:0]
	for _, b := range f.Blocks {
		if reachable[b] {
			kept = append(kept, b)
			continue
		}
		for _, p := range b.Preds {
			p.Succs = removeOneBlock(p.Succs, b)
		}
		for _, s := range b.Succs {
			s.Preds = removeOneBlock(s.Preds, b)
		}
	}
	f.Blocks = kept
	f.invalidateCFG()
}

// Module is a collection of functions plus the frontend-supplied
// safepoint_poll implementation that PollInliner clones from.
type Module struct {
	Functions     map[string]*Function
	SafepointPoll *Function
}

func NewModule() *Module {
	return &Module{Functions: map[string]*Function{}}
}

func (m *Module) AddFunction(f *Function) { m.Functions[f.Name] = f }
