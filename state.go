package eventflit

import "fmt"

// ConnectionState is the lifecycle state of a Client's connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnecting
)

var stateNames = [...]string{
	StateDisconnected:  "disconnected",
	StateConnecting:    "connecting",
	StateConnected:     "connected",
	StateReconnecting:  "reconnecting",
	StateDisconnecting: "disconnecting",
}

func (s ConnectionState) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("ConnectionState(%d)", s)
}

// StateChangeHandler observes connection state transitions.
type StateChangeHandler func(old, new ConnectionState)
