// Package session owns the extension pipe control channel.
//
// Ownership boundary:
// - newline-delimited line reader/writer over the transport
// - control keywords and line classification
// - package header parse/format
// - timing, limits and connect backoff configuration
package session
