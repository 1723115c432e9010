// Package filesystem provides the OS-backed implementation of the
// types.FS interface. Tests use the in-memory implementation from
// pkg/testutil instead.
package filesystem
