package protocol

import "errors"

// Connection errors are fatal and end the session.
var (
	ErrConnect  = errors.New("protocol: connect failed")
	ErrNotReady = errors.New("protocol: host not ready")
)

// Protocol violations fail the current operation only.
var (
	ErrMalformedHeader = errors.New("protocol: malformed package header")
	ErrInvalidSize     = errors.New("protocol: invalid package size")
	ErrUntrustedSender = errors.New("protocol: untrusted package sender")
	ErrUnexpectedReply = errors.New("protocol: unexpected reply")
	ErrLineTooLarge    = errors.New("protocol: control line too large")
)

var (
	// ErrTransport marks read/write failures and peer-closed streams.
	ErrTransport = errors.New("protocol: transport failure")
	// ErrIncompleteTransfer marks a payload shorter than its declared size.
	ErrIncompleteTransfer = errors.New("protocol: incomplete transfer")
)
