package companion

// State is the phase of one turn.
type State int

const (
	StateIdle State = iota
	StateAwaitingPersona
	StateAwaitingTools
	StateAwaitingReply
	StatePersisted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPersona:
		return "awaiting_persona"
	case StateAwaitingTools:
		return "awaiting_tools"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StatePersisted:
		return "persisted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether a turn ends in s.
func (s State) Terminal() bool { return s == StatePersisted || s == StateFailed }
