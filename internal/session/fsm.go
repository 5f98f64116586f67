package session

// State of the /convert dialogue for one (user, chat) pair
type State int

const (
	StateIdle State = iota
	StateAwaitingVoice
)

func (s State) String() string {
	switch s {
	case StateAwaitingVoice:
		return "awaiting_voice"
	default:
		return "idle"
	}
}

// Event is what the controller sees of an inbound message
type Event int

const (
	EventConvert Event = iota
	EventCancel
	EventVoice
	EventOther
	EventExpire
)

func (e Event) String() string {
	switch e {
	case EventConvert:
		return "convert"
	case EventCancel:
		return "cancel"
	case EventVoice:
		return "voice"
	case EventExpire:
		return "expire"
	default:
		return "other"
	}
}

// Action tells the caller which effect to perform after a transition
type Action int

const (
	// ActionPass hands the message to the stateless handlers
	ActionPass Action = iota
	ActionPromptVoice
	ActionReprompt
	ActionTranscode
	ActionAckCancel
	ActionNothingToCancel
	ActionExpired
)

func (a Action) String() string {
	switch a {
	case ActionPromptVoice:
		return "prompt_voice"
	case ActionReprompt:
		return "reprompt"
	case ActionTranscode:
		return "transcode"
	case ActionAckCancel:
		return "ack_cancel"
	case ActionNothingToCancel:
		return "nothing_to_cancel"
	case ActionExpired:
		return "expired"
	default:
		return "pass"
	}
}

// Transition is the dialogue's transition function. It has no side effects.
func Transition(from State, ev Event) (State, Action) {
	switch from {
	case StateAwaitingVoice:
		switch ev {
		case EventVoice:
			return StateIdle, ActionTranscode
		case EventCancel:
			return StateIdle, ActionAckCancel
		case EventExpire:
			return StateIdle, ActionExpired
		default:
			return StateAwaitingVoice, ActionReprompt
		}
	default:
		switch ev {
		case EventConvert:
			return StateAwaitingVoice, ActionPromptVoice
		case EventCancel:
			return StateIdle, ActionNothingToCancel
		default:
			return StateIdle, ActionPass
		}
	}
}
