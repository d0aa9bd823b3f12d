package pipe

// State is the session connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// Exit codes reported on teardown.
const (
	ExitOK        = 0
	ExitTransport = 1
	ExitNotReady  = -1
)
