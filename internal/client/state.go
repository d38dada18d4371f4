package client

// State is one of the states the client engine can occupy. Error is
// transient: it is entered only for an unrecoverable ConfigError raised
// out of Config.Normalize, never for a recoverable TransportError (those
// stay in Disconnected and schedule a reconnect).
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	LoggingIn
	Online
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case LoggingIn:
		return "LoggingIn"
	case Online:
		return "Online"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}
