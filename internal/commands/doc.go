// Package commands maps command ids announced to the host onto typed Go
// callbacks.
//
// Ownership boundary:
// - command metadata validation and registration
// - announcing each command to the host as an addon package
// - argument arity/type checks before invocation
//
// Does not own:
// - transport or package handshakes (internal/pipe)
package commands
