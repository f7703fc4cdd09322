package lb

// state enumerates the five states a holder's state machine can be in.
type state int

const (
	stateIdle state = iota
	stateConnecting
	stateConnected
	stateQuarantined
	stateRemoved
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "IDLE"
	case stateConnecting:
		return "CONNECTING"
	case stateConnected:
		return "CONNECTED"
	case stateQuarantined:
		return "QUARANTINED"
	case stateRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// event enumerates the events a Holder's state machine reacts to.
type event int

const (
	evConnect event = iota
	evConnected
	evFailed
	evRemove
	evStop
	evUnquarantine
)

func (e event) String() string {
	switch e {
	case evConnect:
		return "CONNECT"
	case evConnected:
		return "CONNECTED"
	case evFailed:
		return "FAILED"
	case evRemove:
		return "REMOVE"
	case evStop:
		return "STOP"
	case evUnquarantine:
		return "UNQUARANTINE"
	default:
		return "UNKNOWN"
	}
}
