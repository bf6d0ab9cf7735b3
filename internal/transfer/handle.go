package transfer

// Direction tags the two session variants held by a Context.
type Direction uint8

const (
	DirSend Direction = iota
	DirRecv
)

func (d Direction) String() string {
	if d == DirSend {
		return "send"
	}
	return "recv"
}

// Handle names one session by pool slot and generation. The generation
// increments every time the slot is recycled, so a handle (or a timer
// armed under it) that outlives its session is detected instead of
// mutating the slot's next occupant.
type Handle struct {
	dir   Direction
	index int
	gen   uint32
}

func (h Handle) Direction() Direction { return h.dir }

// Status is the session lifecycle state.
type Status uint8

const (
	StatusInit Status = iota
	StatusInProgress
	StatusComplete
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusInit:
		return "init"
	case StatusInProgress:
		return "in_progress"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

func (s Status) terminal() bool { return s == StatusComplete || s == StatusFailed }

// Event reports a session state transition to the application.
type Event struct {
	Handle    Handle
	SessionID uint16
	Status    Status
	Code      ErrorCode
}
