// Package auth decides which senders may push packages to an extension.
//
// It holds no transport state; internal/pipe consults it once per inbound
// package header.
package auth

import (
	"crypto/subtle"
	"fmt"

	"github.com/danmuck/extpipe/internal/protocol"
)

// SenderValidator accepts or rejects the sender id of an inbound package.
type SenderValidator interface {
	ValidateSender(senderID string) error
}

// StaticSender trusts exactly one sender id.
type StaticSender struct {
	ID string
}

func (s StaticSender) ValidateSender(senderID string) error {
	if s.ID == "" || subtle.ConstantTimeCompare([]byte(s.ID), []byte(senderID)) != 1 {
		return fmt.Errorf("%w: %q", protocol.ErrUntrustedSender, senderID)
	}
	return nil
}

// SenderFunc adapts a function into a SenderValidator.
type SenderFunc func(senderID string) error

func (f SenderFunc) ValidateSender(senderID string) error {
	return f(senderID)
}

// AnySender trusts a sender accepted by at least one validator.
type AnySender []SenderValidator

func (a AnySender) ValidateSender(senderID string) error {
	for _, v := range a {
		if v != nil && v.ValidateSender(senderID) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", protocol.ErrUntrustedSender, senderID)
}
