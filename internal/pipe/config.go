package pipe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/extpipe/internal/auth"
	"github.com/danmuck/extpipe/internal/protocol/frame"
	"github.com/danmuck/extpipe/internal/protocol/session"
	"github.com/rs/zerolog"
)

var (
	ErrPipeNameRequired = errors.New("pipe: pipe name required")
	ErrClientIDRequired = errors.New("pipe: client id required")
	ErrInvalidClientID  = errors.New("pipe: invalid client id")
)

// Config configures one client session.
type Config struct {
	PipeName string
	ClientID string
	Session  session.Config
	// Logger receives structured session logs. The zero value discards.
	Logger zerolog.Logger
	// Dial overrides the platform pipe dialer.
	Dial Dialer
	// Senders decides which inbound package senders are trusted. Nil trusts
	// only Session.TrustedSender.
	Senders auth.SenderValidator
}

func DefaultConfig() Config {
	return Config{
		Session: session.DefaultConfig(),
		Logger:  zerolog.Nop(),
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.PipeName) == "" {
		return ErrPipeNameRequired
	}
	id := c.ClientID
	if strings.TrimSpace(id) == "" {
		return ErrClientIDRequired
	}
	if strings.ContainsAny(id, ",\r\n") || strings.TrimSpace(id) != id {
		return fmt.Errorf("%w: %q", ErrInvalidClientID, id)
	}
	return nil
}

func (c Config) limits() frame.Limits {
	return frame.Limits{MaxPayloadBytes: c.Session.MaxPackageBytes}
}
