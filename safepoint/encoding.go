// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safepoint

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/aclements/go-safepoint/ir"
)

// DumpLiveTable serializes a statepoint's live table the way
// aclements-go-misc/pcvaluetab reads PC-to-value tables back out of
// compiled binaries: an entry count, followed by one base-index entry per
// live value (entry i's base is live entry Relocates[i].AuxInt), all
// varint-encoded with encoding/binary rather than a hand-rolled codec —
// -dump-tables is a debugging aid, not a hot path, so there's no case for
// aclements-go-misc/varint's BMI2/assembly fast paths here, and the
// pure-Go path they fall back to is exactly what the standard library
// already provides. It exists purely for -dump-tables diffing between
// pass runs; nothing in the pass itself reads this format back.
func DumpLiveTable(sp *ir.Value) ([]byte, error) {
	if sp.Statepoint == nil {
		return nil, InternalErrorf("DumpLiveTable: %v is not a statepoint", sp)
	}
	full := sp.Statepoint.Live
	relocates := sp.Statepoint.Relocates
	if len(relocates) != len(full) {
		return nil, InternalErrorf("DumpLiveTable: %v has %d live entries but %d relocates", sp, len(full), len(relocates))
	}

	var buf bytes.Buffer
	var scratch [binary.MaxVarintLen64]byte
	putUvarint := func(x uint64) {
		n := binary.PutUvarint(scratch[:], x)
		buf.Write(scratch[:n])
	}
	putUvarint(uint64(len(full)))
	for _, reloc := range relocates {
		putUvarint(uint64(reloc.AuxInt))
	}
	return buf.Bytes(), nil
}

// liveTableEntry is one decoded live entry's base index from
// DumpLiveTable's output, as returned by ParseLiveTable.
type liveTableEntry struct {
	BaseIndex int
}

// ParseLiveTable decodes the format DumpLiveTable produces.
func ParseLiveTable(data []byte) ([]liveTableEntry, error) {
	r := bytes.NewReader(data)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("malformed live table: missing entry count: %v", err)
	}
	out := make([]liveTableEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("malformed live table: truncated entry %d: %v", i, err)
		}
		out = append(out, liveTableEntry{BaseIndex: int(v)})
	}
	return out, nil
}
