package session

// State is the connection state of a Session.
//
//	Disconnected -> Connected -> AppletSelected -> StatusRetrieved -> ChannelEstablished -> Authenticated
//
// Any failed handshake step moves to Failed (protocol or data errors) or back to
// Disconnected (link errors). Only Connect leaves Failed.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAppletSelected
	StateStatusRetrieved
	StateChannelEstablished
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateAppletSelected:
		return "APPLET_SELECTED"
	case StateStatusRetrieved:
		return "STATUS_RETRIEVED"
	case StateChannelEstablished:
		return "CHANNEL_ESTABLISHED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// StateFunc observes transitions. It runs synchronously with the session lock held
// and must not call back into the Session.
type StateFunc func(old, new State)
