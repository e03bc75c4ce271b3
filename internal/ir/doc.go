// Package ir provides the value types shared by every txsim package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - WorkItem is immutable once constructed; lifecycle status lives outside it
//   - Priority is strictly positive, enforced by NewWorkItem
//   - Status values are the exact strings stored by persistence backends
//   - Trace serialization goes through MarshalCanonical for byte-stable output
package ir
