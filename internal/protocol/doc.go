// Package protocol owns the extension pipe wire contract.
//
// Ownership boundary:
// - error taxonomy shared by the control channel and package exchange
// - session: newline-delimited control lines, keywords, package headers
// - frame: JSON package envelopes and exact-length payload reads
// - schema: package kinds and the payloads carried inside envelopes
package protocol
