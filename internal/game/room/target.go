package room

type targetKind uint8

const (
	targetPlayer targetKind = iota + 1
	targetCorrect
)

// VoteTarget is something a player can vote for: either another player's
// answer or the true answer. The zero value is not a valid target.
//
// Invariant: a VoteTarget is constructed only by PlayerAnswer or CorrectAnswer.
type VoteTarget struct {
	kind targetKind
	user string
}

// PlayerAnswer returns the target for the answer submitted by user.
func PlayerAnswer(user string) VoteTarget {
	return VoteTarget{kind: targetPlayer, user: user}
}

// CorrectAnswer returns the target for the prompt's true answer.
func CorrectAnswer() VoteTarget {
	return VoteTarget{kind: targetCorrect}
}

// Player returns the answer's author when t is a PlayerAnswer.
func (t VoteTarget) Player() (string, bool) {
	return t.user, t.kind == targetPlayer
}

// IsCorrect reports whether t is the true answer.
func (t VoteTarget) IsCorrect() bool {
	return t.kind == targetCorrect
}

// Valid reports whether t was built by one of the constructors.
func (t VoteTarget) Valid() bool {
	return t.kind == targetPlayer || t.kind == targetCorrect
}

func (t VoteTarget) String() string {
	switch t.kind {
	case targetPlayer:
		return "player:" + t.user
	case targetCorrect:
		return "correct"
	default:
		return "invalid"
	}
}
