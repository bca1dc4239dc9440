package conn

// State is the connection lifecycle state. Exactly one State exists per
// Manager; every transition is published on the state stream in order.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

func (s State) String() string { return string(s) }

// FSM event names. Kept as constants so the transition table and the call
// sites cannot drift apart.
const (
	eventConnect   = "event_connect"
	eventOpened    = "event_opened"
	eventLost      = "event_lost"
	eventFailed    = "event_failed"
	eventRetry     = "event_retry"
	eventExhausted = "event_exhausted"
	eventStop      = "event_stop"
)
