package server

// State is the lifecycle stage of one client connection.
type State int32

const (
	// StateConnected answers requests.
	StateConnected State = iota
	// StateSubscribed receives notifications and sends nothing else.
	StateSubscribed
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
