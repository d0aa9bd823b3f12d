//go:build windows

package pipe

import (
	"context"
	"net"
	"strings"

	"github.com/Microsoft/go-winio"
)

const pipePrefix = `\\.\pipe\`

// PipePath maps a pipe name onto its Windows pipe path.
func PipePath(name string) string {
	if strings.HasPrefix(name, pipePrefix) {
		return name
	}
	return pipePrefix + name
}

// DialPipe connects to a local named pipe.
func DialPipe(ctx context.Context, name string) (Transport, error) {
	conn, err := winio.DialPipeContext(ctx, PipePath(name))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Listen opens the host side of a named pipe.
func Listen(name string) (net.Listener, error) {
	return winio.ListenPipe(PipePath(name), nil)
}
