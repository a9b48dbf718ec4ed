// Package room implements the per-session game engine and the registry that
// owns every live session.
package room

// Anonymous is passed to QueryState when no specific player is asking.
const Anonymous = ""

// Room is one isolated game session. Implementations must be safe for
// concurrent use; every method is atomic with respect to the others.
type Room interface {
	// AddPlayer adds name to the room.
	//
	// Postcondition: Returns true if name was added, false if already present.
	AddPlayer(name string) bool
	// HasPlayer reports whether name has joined the room.
	HasPlayer(name string) bool
	// Players returns the current players in sorted order.
	Players() []string
	// Start leaves the lobby.
	//
	// Postcondition: Returns Success, AlreadyStarted or TooFewPlayers; state is
	// unchanged on failure.
	Start() Code
	// Submit applies a player's input for the current phase and reports the
	// phase the room is in immediately afterwards, observed atomically with
	// the submission.
	//
	// Postcondition: Returns Success, InvalidData or WrongState. The room stays
	// usable after any result.
	Submit(user string, p Payload) (Code, State)
	// QueryState returns the phase view for user, or the room-wide view when
	// user is Anonymous. QueryState never mutates state, round or scores.
	QueryState(user string) (Code, State, View)
	// State returns the current phase.
	State() State
	// Round returns the zero-based round counter.
	Round() int
}

// Factory constructs a fresh Room.
type Factory func() (Room, error)

// Payload carries the phase-specific fields of a submission. An empty Payload
// is the round-advance pulse sent by the progression driver.
type Payload struct {
	// Answer is the text submitted while collecting answers.
	Answer *string
	// VoteID is the id of an ask_vote option submitted while voting.
	VoteID *string
}

// AnswerPayload builds a Payload for submit_answer.
func AnswerPayload(answer string) Payload {
	return Payload{Answer: &answer}
}

// VotePayload builds a Payload for submit_vote.
func VotePayload(id string) Payload {
	return Payload{VoteID: &id}
}

// IsEmpty reports whether no field is set.
func (p Payload) IsEmpty() bool {
	return p.Answer == nil && p.VoteID == nil
}

// View is the phase-dependent payload returned by QueryState. It is one of
// PromptView, VoteView or ResultsView, or nil when the phase has nothing to show.
type View interface {
	view()
}

// PromptView is shown while collecting answers.
type PromptView struct {
	Prompt          string
	AlreadyAnswered bool
}

// AnswerOption is one votable entry in a VoteView.
type AnswerOption struct {
	ID   string
	Text string
}

// VoteView is the personalised list of answers a player may vote for.
type VoteView struct {
	Prompt  string
	Answers []AnswerOption
}

// Result is one player's cumulative score.
type Result struct {
	User  string
	Score int
}

// ResultsView lists every scored player.
type ResultsView struct {
	Results []Result
}

func (PromptView) view()  {}
func (VoteView) view()    {}
func (ResultsView) view() {}
