package client

import "fmt"

// ConnectivityState is the observer's view of its link to the server.
type ConnectivityState uint8

const (
	// Connecting covers both the first connection attempt and the grace
	// period after a disconnect.
	Connecting ConnectivityState = iota

	// Live means the server is the source of truth for every update.
	Live

	// OfflineSimulated means the server is unreachable and the observer
	// simulates fill locally.
	OfflineSimulated
)

func (s ConnectivityState) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Live:
		return "LIVE"
	case OfflineSimulated:
		return "OFFLINE_SIMULATED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Event drives Transition.
type Event uint8

const (
	EventConnected Event = iota
	EventDisconnected
	EventConnectError
	EventGraceElapsed
	EventBootstrapFailed
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventConnectError:
		return "connect_error"
	case EventGraceElapsed:
		return "grace_elapsed"
	case EventBootstrapFailed:
		return "bootstrap_failed"
	default:
		return fmt.Sprintf("event(%d)", e)
	}
}

// Transition is the connectivity state machine. It has no side effects;
// timers are armed by the Agent based on the result.
//
// A failed connection attempt is treated like a disconnect: the observer
// waits out the grace period before simulating, so a flaky link does not
// flap between live and simulated data. A failed bootstrap goes offline at
// once since there is nothing to show otherwise.
func Transition(s ConnectivityState, ev Event) ConnectivityState {
	switch ev {
	case EventConnected:
		return Live
	case EventDisconnected, EventConnectError:
		if s == Live {
			return Connecting
		}
		return s
	case EventGraceElapsed:
		if s == Connecting {
			return OfflineSimulated
		}
		return s
	case EventBootstrapFailed:
		if s == Connecting {
			return OfflineSimulated
		}
		return s
	default:
		return s
	}
}

func (s ConnectivityState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
