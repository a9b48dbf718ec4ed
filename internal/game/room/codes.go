package room

// State is the phase a room is in. Exactly one is active at a time.
type State string

const (
	// StateWaitingToStart is the initial lobby phase.
	StateWaitingToStart State = "WAITING_TO_START"
	// StateCollectingAnswers accepts one answer per player for the current prompt.
	StateCollectingAnswers State = "COLLECTING_ANSWERS"
	// StateVoting accepts one vote per player among the other answers.
	StateVoting State = "VOTING"
	// StateShowingResults displays cumulative scores until the driver advances the round.
	StateShowingResults State = "SHOWING_RESULTS"
	// StateDone is terminal.
	StateDone State = "DONE"
	// StateUnknown is reported when the room or player could not be resolved.
	StateUnknown State = "UNKNOWN"
)

// Code is the outcome of a registry or room operation. Every Code is an
// expected result; none of them indicate a server fault.
type Code int

const (
	Success Code = iota
	RoomNotFound
	PlayerNotFound
	NameInUse
	TooFewPlayers
	AlreadyStarted
	InvalidData
	WrongState
)

var codeNames = map[Code]string{
	Success:        "SUCCESS",
	RoomNotFound:   "ROOM_NOT_FOUND",
	PlayerNotFound: "PLAYER_NOT_FOUND",
	NameInUse:      "NAME_IN_USE",
	TooFewPlayers:  "TOO_FEW_PLAYERS",
	AlreadyStarted: "ALREADY_STARTED",
	InvalidData:    "INVALID_DATA",
	WrongState:     "WRONG_STATE",
}

// String returns the upper snake case name sent to clients in error messages.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// OK reports whether c is Success.
func (c Code) OK() bool {
	return c == Success
}
