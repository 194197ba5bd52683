package session

// State is the recognition state of a session.
type State int

const (
	// StateIdle has no open stream and an empty buffer.
	StateIdle State = iota
	// StateStreaming has an open recognition stream accepting chunks.
	StateStreaming
	// StateBuffering accumulates chunks for one batch recognition.
	StateBuffering
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateBuffering:
		return "buffering"
	default:
		return "unknown"
	}
}

// Mode selects how audio reaches the recognizer.
type Mode string

const (
	ModeStreaming Mode = "streaming"
	ModeBatch     Mode = "batch"
)

// TurnBoundary decides what ends a streaming turn.
type TurnBoundary string

const (
	// BoundaryStop merges every final transcript of one stream into a single
	// turn, run once the stream finishes after stop.
	BoundaryStop TurnBoundary = "stop"
	// BoundaryFinal runs a turn for each final transcript as it arrives.
	BoundaryFinal TurnBoundary = "final"
)
