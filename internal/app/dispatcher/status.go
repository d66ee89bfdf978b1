package dispatcher

// Status represents the connection state machine.
type Status int

const (
	StatusDisconnected Status = iota // No transport; supervisor may be backing off
	StatusConnecting                 // Transport dial in progress
	StatusConnected                  // Transport up, room not yet joined
	StatusSubscribed                 // Room joined; events are accepted
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}
