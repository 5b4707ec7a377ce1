// Package ir provides the lowered intermediate representation of a
// workflow.
//
// This package contains type definitions and their encodings only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Every collection that reaches the output is a slice, never a map
//   - Units keep insertion order, in Go and in JSON
//   - Digests are computed over RFC 8785 canonical JSON, never encoding/json
package ir
