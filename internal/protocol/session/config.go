package session

import "time"

const (
	DefaultMaxLineBytes    = 128 * 1024
	DefaultMaxPackageBytes = 8 * 1024 * 1024
)

// BackoffConfig defines connect retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines control channel timing and limits.
type Config struct {
	// ConnectTimeout bounds the whole dial-with-retry phase.
	ConnectTimeout time.Duration
	// SettleDelay is waited after connecting and before the first line.
	SettleDelay time.Duration
	// ReceiveTimeout bounds the elapsed time of one raw payload read.
	ReceiveTimeout time.Duration
	// ReplyTimeout bounds each ack/confirmation wait. Zero waits forever.
	ReplyTimeout time.Duration
	// StopWriteTimeout bounds the best-effort STOP line on teardown.
	StopWriteTimeout time.Duration
	MaxLineBytes     int
	MaxPackageBytes  int
	TrustedSender    string
	Backoff          BackoffConfig
}

// DefaultConfig returns the host's expected timings.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   10 * time.Second,
		SettleDelay:      600 * time.Millisecond,
		ReceiveTimeout:   time.Second,
		ReplyTimeout:     0,
		StopWriteTimeout: 500 * time.Millisecond,
		MaxLineBytes:     DefaultMaxLineBytes,
		MaxPackageBytes:  DefaultMaxPackageBytes,
		TrustedSender:    TrustedSender,
		Backoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero values from DefaultConfig. SettleDelay and
// ReplyTimeout keep explicit zeros.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = def.ReceiveTimeout
	}
	if c.ReplyTimeout < 0 {
		c.ReplyTimeout = 0
	}
	if c.StopWriteTimeout <= 0 {
		c.StopWriteTimeout = def.StopWriteTimeout
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = def.MaxLineBytes
	}
	if c.MaxPackageBytes <= 0 {
		c.MaxPackageBytes = def.MaxPackageBytes
	}
	if c.TrustedSender == "" {
		c.TrustedSender = def.TrustedSender
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
