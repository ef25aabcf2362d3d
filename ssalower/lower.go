// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ssalower is a supplemental frontend: it lowers a single
// golang.org/x/tools/go/ssa function into this module's own ir.Function,
// so the pass can run over real Go source instead of only hand-built IR
// fixtures. It follows the same import set rtcheck builds its points-to
// analysis on (go/ssa, go/types, go/token), but the lowering itself is
// new: nothing in the corpus translates one IR into another.
//
// Every Go pointer-shaped value (pointers, interfaces, strings, maps,
// channels, slices, funcs — anything the runtime represents as a heap
// reference) lowers to a GC pointer, since that is true of every heap
// reference in a Go program. Lower is intentionally narrow: it supports
// the subset of go/ssa instructions a straight-line or simply-branching
// function built from pointers, structs, and direct calls produces, and
// fails fast (rather than emit silently-wrong IR) on anything involving
// goroutines, defers, channels, or interface method dispatch.
package ssalower

import (
	"fmt"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/aclements/go-safepoint/ir"
)

// Lower translates fn into an ir.Function.
func Lower(fn *ssa.Function) (*ir.Function, error) {
	if len(fn.Blocks) == 0 {
		return nil, fmt.Errorf("ssalower: %s has no body (external or intrinsic)", fn)
	}
	if len(fn.FreeVars) > 0 {
		return nil, fmt.Errorf("ssalower: %s is a closure (has free variables); not supported", fn)
	}
	if err := checkSupported(fn); err != nil {
		return nil, err
	}

	sig := fn.Signature
	paramTypes := make([]*ir.Type, sig.Params().Len())
	for i := 0; i < sig.Params().Len(); i++ {
		paramTypes[i] = lowerType(sig.Params().At(i).Type())
	}
	f := ir.NewFunction(fn.String(), paramTypes...)

	l := &lowerer{f: f, blocks: make(map[*ssa.BasicBlock]*ir.BasicBlock, len(fn.Blocks)), values: make(map[ssa.Value]*ir.Value)}
	for i, p := range fn.Params {
		l.values[p] = f.Params[i]
	}
	for i, b := range fn.Blocks {
		if i == 0 {
			l.blocks[b] = f.Entry
		} else {
			l.blocks[b] = f.NewBlock(fmt.Sprintf("bb%d", b.Index))
		}
	}

	// First pass: lower every instruction in program order, so an
	// instruction can always resolve its operands (everything but a phi
	// incoming value is defined before its use in go/ssa). Phis are
	// created here (so later instructions can reference them) but their
	// incoming edges are wired in the second pass, once every block's
	// values exist.
	for _, b := range fn.Blocks {
		bd := ir.NewBuilder(f, l.blocks[b])
		for _, instr := range b.Instrs {
			if err := l.lowerInstr(bd, instr); err != nil {
				return nil, err
			}
		}
	}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			phi, ok := instr.(*ssa.Phi)
			if !ok {
				continue
			}
			irPhi := l.values[phi]
			for i, edge := range phi.Edges {
				irPhi.AddIncoming(l.operand(edge), l.blocks[b.Preds[i]])
			}
		}
	}

	return f, nil
}

// checkSupported rejects the go/ssa instruction shapes this frontend
// does not model: goroutines, defers, channel operations, interface
// dispatch by way of Select/Range, and anything else non-goal. Checking
// up front means Lower never has to unwind a half-built ir.Function.
func checkSupported(fn *ssa.Function) error {
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			switch instr := instr.(type) {
			case *ssa.Go, *ssa.Defer, *ssa.RunDefers, *ssa.Select, *ssa.Send,
				*ssa.MakeChan, *ssa.Range, *ssa.Next, *ssa.MakeClosure,
				*ssa.Panic, *ssa.MakeMap, *ssa.MakeSlice, *ssa.Slice,
				*ssa.Lookup, *ssa.MapUpdate, *ssa.TypeAssert:
				return fmt.Errorf("ssalower: %s: %T not supported (non-goal)", fn, instr)
			case *ssa.UnOp:
				if instr.Op == token.ARROW {
					return fmt.Errorf("ssalower: %s: channel receive not supported (non-goal)", fn)
				}
			case *ssa.Call:
				if instr.Common().IsInvoke() {
					return fmt.Errorf("ssalower: %s: interface method calls not supported", fn)
				}
			}
		}
	}
	return nil
}

type lowerer struct {
	f      *ir.Function
	blocks map[*ssa.BasicBlock]*ir.BasicBlock
	values map[ssa.Value]*ir.Value
}

func (l *lowerer) lowerInstr(bd *ir.Builder, instr ssa.Instruction) error {
	switch instr := instr.(type) {
	case *ssa.Alloc:
		elem := lowerType(instr.Type().Underlying().(*types.Pointer).Elem())
		l.values[instr] = bd.Alloca(instr.Name(), elem)
	case *ssa.Store:
		bd.Store(l.operand(instr.Addr), l.operand(instr.Val))
	case *ssa.UnOp:
		if instr.Op == token.MUL {
			l.values[instr] = bd.Load(instr.Name(), lowerType(instr.Type()), l.operand(instr.X))
		} else {
			l.values[instr] = bd.Opaque(instr.Name(), lowerType(instr.Type()), l.operand(instr.X))
		}
	case *ssa.BinOp:
		l.values[instr] = bd.Opaque(instr.Name(), lowerType(instr.Type()), l.operand(instr.X), l.operand(instr.Y))
	case *ssa.FieldAddr:
		l.values[instr] = bd.Index(instr.Name(), lowerType(instr.Type()), l.operand(instr.X), int64(instr.Field))
	case *ssa.IndexAddr:
		l.values[instr] = bd.Index(instr.Name(), lowerType(instr.Type()), l.operand(instr.X), 0)
	case *ssa.Field:
		l.values[instr] = bd.Extract(instr.Name(), lowerType(instr.Type()), l.operand(instr.X), int64(instr.Field))
	case *ssa.Extract:
		l.values[instr] = bd.Extract(instr.Name(), lowerType(instr.Type()), l.operand(instr.Tuple), int64(instr.Index))
	case *ssa.Convert:
		l.values[instr] = l.lowerCastLike(bd, instr, instr.X)
	case *ssa.ChangeType:
		l.values[instr] = l.lowerCastLike(bd, instr, instr.X)
	case *ssa.ChangeInterface:
		l.values[instr] = l.lowerCastLike(bd, instr, instr.X)
	case *ssa.MakeInterface:
		l.values[instr] = l.lowerCastLike(bd, instr, instr.X)
	case *ssa.Call:
		return l.lowerCall(bd, instr)
	case *ssa.Phi:
		l.values[instr] = bd.Phi(instr.Name(), lowerType(instr.Type()))
	case *ssa.If:
		succs := instr.Block().Succs
		bd.Branch(l.operand(instr.Cond), l.blocks[succs[0]], l.blocks[succs[1]])
	case *ssa.Jump:
		bd.Jump(l.blocks[instr.Block().Succs[0]])
	case *ssa.Return:
		switch len(instr.Results) {
		case 0:
			bd.Return(nil)
		case 1:
			bd.Return(l.operand(instr.Results[0]))
		default:
			return fmt.Errorf("ssalower: %s: multi-value return not supported", instr.Parent())
		}
	case *ssa.DebugRef:
		// Debug-only; carries no value and has no runtime effect.
	default:
		return fmt.Errorf("ssalower: %s: unsupported instruction %T", instr.Parent(), instr)
	}
	return nil
}

func (l *lowerer) lowerCastLike(bd *ir.Builder, instr ssa.Instruction, x ssa.Value) *ir.Value {
	v := instr.(ssa.Value)
	typ := lowerType(v.Type())
	src := l.operand(x)
	if typ.IsPointer() {
		return bd.Cast(v.Name(), typ, src)
	}
	return bd.Opaque(v.Name(), typ, src)
}

func (l *lowerer) lowerCall(bd *ir.Builder, instr *ssa.Call) error {
	common := instr.Common()
	args := make([]*ir.Value, len(common.Args))
	for i, a := range common.Args {
		args[i] = l.operand(a)
	}
	name := "$indirect"
	if fn := common.StaticCallee(); fn != nil {
		name = fn.String()
	}
	l.values[instr] = bd.Call(instr.Name(), lowerType(instr.Type()), name, args...)
	return nil
}

// operand resolves v to its already-lowered ir.Value, lazily lowering
// the root values (constants, globals, function references) go/ssa
// shares across many instructions rather than redefining per use.
func (l *lowerer) operand(v ssa.Value) *ir.Value {
	if iv, ok := l.values[v]; ok {
		return iv
	}
	bd := ir.NewBuilder(l.f, nil) // root values ignore the builder's block
	switch v := v.(type) {
	case *ssa.Const:
		iv := lowerConst(bd, v)
		l.values[v] = iv
		return iv
	case *ssa.Global:
		iv := bd.Global(v.Name(), lowerType(v.Type()))
		l.values[v] = iv
		return iv
	case *ssa.Function:
		iv := bd.Global(v.Name(), lowerType(v.Type()))
		l.values[v] = iv
		return iv
	}
	panic(fmt.Sprintf("ssalower: unresolved operand %v (%T)", v, v))
}

func lowerConst(bd *ir.Builder, c *ssa.Const) *ir.Value {
	typ := lowerType(c.Type())
	if c.IsNil() {
		return bd.ConstNull(typ)
	}
	if typ.Kind == ir.KindInt {
		return bd.ConstInt(typ, c.Int64())
	}
	return bd.ConstUndef(typ)
}

// lowerType maps a go/types.Type to this module's small ir.Type set.
// Every pointer-shaped type (including the ones Go doesn't spell with a
// '*' — interfaces, maps, channels, slices, strings, funcs) becomes a GC
// pointer; the element type is left opaque (void) since the pass only
// needs to know a value is a pointer, not what it points to.
func lowerType(t types.Type) *ir.Type {
	switch u := t.Underlying().(type) {
	case *types.Basic:
		info := u.Info()
		switch {
		case info&types.IsBoolean != 0:
			return ir.BoolType
		case info&types.IsInteger != 0:
			return ir.Int64Type
		case info&types.IsFloat != 0:
			return ir.Float64Type
		default:
			// Strings, unsafe.Pointer, complex: modeled as opaque GC
			// pointers (a Go string header itself holds a pointer).
			return ir.GCPointerTo(ir.VoidType)
		}
	case *types.Pointer, *types.Slice, *types.Map, *types.Chan, *types.Interface, *types.Signature:
		return ir.GCPointerTo(ir.VoidType)
	default:
		// Structs, arrays, tuples: not modeled precisely. Values of
		// these types only ever appear as call/Extract results in the
		// supported instruction subset, never spilled directly.
		return ir.VoidType
	}
}
