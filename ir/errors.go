// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import (
	"fmt"

	"golang.org/x/xerrors"
)

// The pass's error taxonomy (spec.md §7) is rooted here, since both ir and
// safepoint need to raise these. safepoint/errors.go re-exports these
// constructors under the same names for callers that only import
// safepoint.

// PreconditionError reports IR that violates a stated precondition (a GC
// pointer round-tripped through an integer, an invoke site, a computed
// indirect branch). Fatal for the function being compiled, but not a
// compiler bug.
type PreconditionError struct{ msg string }

func (e *PreconditionError) Error() string { return "precondition violation: " + e.msg }

func PreconditionErrorf(format string, args ...interface{}) error {
	return &PreconditionError{fmt.Sprintf(format, args...)}
}

// ConfigError reports a configuration fault: a missing or empty
// safepoint_poll, an unreachable terminator inside it, and so on. It is
// returned to the caller and the pass aborts.
type ConfigError struct{ msg string }

func (e *ConfigError) Error() string { return "configuration fault: " + e.msg }

func ConfigErrorf(format string, args ...interface{}) error {
	return &ConfigError{fmt.Sprintf(format, args...)}
}

// InternalError reports a violated internal invariant (base not
// dominating derived, lattice non-commutativity, livemap size mismatch).
// Always a compiler bug, never something a caller can route around; it
// carries a captured stack frame via golang.org/x/xerrors (the teacher's
// own indirect dependency, pulled in transitively through
// golang.org/x/tools) since these are reported, not handled.
type InternalError struct {
	err error
}

func (e *InternalError) Error() string { return "internal invariant failure: " + e.err.Error() }
func (e *InternalError) Unwrap() error { return e.err }

func InternalErrorf(format string, args ...interface{}) error {
	return &InternalError{xerrors.Errorf(format, args...)}
}
