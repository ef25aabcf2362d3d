// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safepoint

import "github.com/aclements/go-safepoint/ir"

// The error taxonomy (spec.md §7) is defined once, in package ir (since ir
// itself needs to raise these), and re-exported here under the same
// names so callers that only import safepoint don't need to know that.
type (
	PreconditionError = ir.PreconditionError
	ConfigError       = ir.ConfigError
	InternalError      = ir.InternalError
)

var (
	PreconditionErrorf = ir.PreconditionErrorf
	ConfigErrorf        = ir.ConfigErrorf
	InternalErrorf       = ir.InternalErrorf
)
