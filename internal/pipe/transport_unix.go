//go:build !windows

package pipe

import (
	"context"
	"net"
	"os"
	"path/filepath"
)

// pipePrefix matches the socket naming .NET uses for named pipes on unix.
const pipePrefix = "CoreFxPipe_"

// PipePath maps a pipe name onto its unix socket path. Absolute paths are
// used as-is.
func PipePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(os.TempDir(), pipePrefix+name)
}

// DialPipe connects to the named pipe's unix socket.
func DialPipe(ctx context.Context, name string) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", PipePath(name))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Listen opens the host side of a named pipe.
func Listen(name string) (net.Listener, error) {
	return net.Listen("unix", PipePath(name))
}
