// Package pipe owns the extension side of the host pipe.
//
// Ownership boundary:
// - transport dial (named pipe on Windows, unix socket elsewhere)
// - session lifecycle: initialize -> ready barrier -> teardown
// - serialized sends and the outbound package handshake
// - the listener loop: sole transport reader, line routing, inbound package
//   handshake
// - FIFO message and package queues
//
// Lifecycle order:
// - disconnected -> connecting -> connected -> closed
//
// - closed is terminal; a client is not reused after teardown.
package pipe
