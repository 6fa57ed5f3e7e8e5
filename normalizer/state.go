package normalizer

// State is the connection state of the single tracked controller.
type State uint8

const (
	StateDisconnected State = iota
	StateDiscovered
	StateConnected
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateDiscovered:
		return "discovered"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}
