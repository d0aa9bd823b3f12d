package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrShortPayload     = errors.New("frame: short payload")
	ErrPayloadTooLarge  = errors.New("frame: payload too large")
	ErrSizeMismatch     = errors.New("frame: declared size does not match payload")
	ErrMissingPackageID = errors.New("frame: missing package id")
)

// Envelope is the JSON form of one package on the wire.
type Envelope struct {
	PackageID   string `json:"PackageId"`
	ClientID    string `json:"ClientId"`
	PackageSize int    `json:"PackageSize"`
	PackageData []byte `json:"PackageData"`
}

// Limits constrains envelope encode/decode memory use.
type Limits struct {
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

// NewEnvelope wraps data and records its length as the declared size.
func NewEnvelope(packageID, clientID string, data []byte) Envelope {
	return Envelope{
		PackageID:   packageID,
		ClientID:    clientID,
		PackageSize: len(data),
		PackageData: data,
	}
}

func (e Envelope) Validate() error {
	if strings.TrimSpace(e.PackageID) == "" {
		return ErrMissingPackageID
	}
	if e.PackageSize != len(e.PackageData) {
		return fmt.Errorf("%w: declared=%d actual=%d", ErrSizeMismatch, e.PackageSize, len(e.PackageData))
	}
	return nil
}

// Encode validates env and returns its JSON bytes.
func Encode(env Envelope, limits Limits) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	if limits.MaxPayloadBytes > 0 && len(out) > limits.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}
	return out, nil
}

// Decode parses envelope JSON and checks the declared size against the data.
func Decode(b []byte, limits Limits) (Envelope, error) {
	if limits.MaxPayloadBytes > 0 && len(b) > limits.MaxPayloadBytes {
		return Envelope{}, ErrPayloadTooLarge
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, err
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// ReadPayload reads exactly size bytes. On a short read it returns the bytes
// received so far, their count and ErrShortPayload or the underlying error.
func ReadPayload(r io.Reader, size int, limits Limits) ([]byte, int, error) {
	if size <= 0 {
		return nil, 0, fmt.Errorf("frame: invalid payload size %d", size)
	}
	if limits.MaxPayloadBytes > 0 && size > limits.MaxPayloadBytes {
		return nil, 0, ErrPayloadTooLarge
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return buf[:n], n, ErrShortPayload
		}
		return buf[:n], n, err
	}
	return buf, n, nil
}
