package room

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cory-johannsen/splash/internal/game/prompt"
	"github.com/cory-johannsen/splash/internal/game/random"
)

// Rules holds the tunable parameters of a PromptRoom.
type Rules struct {
	// Rounds is the number of prompts played before the game is done.
	Rounds int
	// MinPlayers is the lobby size required by Start.
	MinPlayers int
}

// DefaultRules returns three rounds with a minimum of three players.
func DefaultRules() Rules {
	return Rules{Rounds: 3, MinPlayers: 3}
}

// PromptRoom is the trivia bluffing game: players write a fake answer to a
// prompt, then vote for the answer they believe is true. Each vote for a
// player's fake answer scores a point for its author.
//
// Invariant: all fields are guarded by mu.
type PromptRoom struct {
	mu    sync.Mutex
	src   random.Source
	rules Rules

	players map[string]struct{}
	state   State
	round   int
	prompts []prompt.Prompt

	answers    map[VoteTarget]string
	voteOrders map[string][]VoteTarget
	votes      map[string]VoteTarget
	scores     map[string]int
}

// NewPromptRoom creates a room in the lobby that will play the given prompts.
//
// Precondition: len(prompts) == rules.Rounds; rules.Rounds >= 1; src non-nil.
// Postcondition: Returns a room in StateWaitingToStart at round 0, or an error.
func NewPromptRoom(prompts []prompt.Prompt, src random.Source, rules Rules) (*PromptRoom, error) {
	if rules.Rounds < 1 {
		return nil, fmt.Errorf("rounds must be >= 1, got %d", rules.Rounds)
	}
	if len(prompts) != rules.Rounds {
		return nil, fmt.Errorf("need %d prompts, got %d", rules.Rounds, len(prompts))
	}
	return &PromptRoom{
		src:        src,
		rules:      rules,
		players:    make(map[string]struct{}),
		state:      StateWaitingToStart,
		prompts:    append([]prompt.Prompt(nil), prompts...),
		answers:    make(map[VoteTarget]string),
		voteOrders: make(map[string][]VoteTarget),
		votes:      make(map[string]VoteTarget),
		scores:     make(map[string]int),
	}, nil
}

// NewPromptRoomFactory returns a Factory drawing a fresh set of prompts from
// cat for every room.
//
// Precondition: cat and src must be non-nil.
func NewPromptRoomFactory(cat *prompt.Catalogue, src random.Source, rules Rules) Factory {
	return func() (Room, error) {
		prompts, err := cat.Draw(src, rules.Rounds)
		if err != nil {
			return nil, fmt.Errorf("drawing prompts: %w", err)
		}
		return NewPromptRoom(prompts, src, rules)
	}
}

// AddPlayer adds name to the room. Players may join in any phase; a player
// joining after Start has no score entry.
func (r *PromptRoom) AddPlayer(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[name]; ok {
		return false
	}
	r.players[name] = struct{}{}
	return true
}

// HasPlayer reports whether name has joined the room.
func (r *PromptRoom) HasPlayer(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.players[name]
	return ok
}

// Players returns the joined players in sorted order.
func (r *PromptRoom) Players() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.players)
}

// State returns the current phase.
func (r *PromptRoom) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Round returns the zero-based round counter.
func (r *PromptRoom) Round() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.round
}

// Start moves the lobby into the first round and gives every current player
// a zero score.
func (r *PromptRoom) Start() Code {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateWaitingToStart {
		return AlreadyStarted
	}
	if len(r.players) < r.rules.MinPlayers {
		return TooFewPlayers
	}
	r.state = StateCollectingAnswers
	for p := range r.players {
		r.scores[p] = 0
	}
	return Success
}

// Submit applies user's input for the current phase.
//
// Precondition: user is a member of the room (checked by the Registry).
// Postcondition: the returned State is the phase right after this submission.
func (r *PromptRoom) Submit(user string, p Payload) (Code, State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submit(user, p), r.state
}

func (r *PromptRoom) submit(user string, p Payload) Code {
	switch r.state {
	case StateCollectingAnswers:
		if p.Answer == nil {
			return InvalidData
		}
		r.answers[PlayerAnswer(user)] = strings.ToUpper(*p.Answer)
		if len(r.answers) >= len(r.players) {
			r.startVoting()
		}
	case StateVoting:
		if p.VoteID == nil {
			return InvalidData
		}
		target, ok := r.resolveVote(user, *p.VoteID)
		if !ok {
			return InvalidData
		}
		r.votes[user] = target
		if len(r.votes) >= len(r.players) {
			r.tally()
			r.state = StateShowingResults
		}
	case StateShowingResults:
		// Only the progression driver's empty pulse may advance a round.
		if !p.IsEmpty() {
			return WrongState
		}
		r.nextRound()
	default:
		return WrongState
	}
	return Success
}

// QueryState returns the phase view. Only the voting view depends on user.
func (r *PromptRoom) QueryState(user string) (Code, State, View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.round >= r.rules.Rounds {
		return Success, r.state, nil
	}
	switch r.state {
	case StateCollectingAnswers:
		_, answered := r.answers[PlayerAnswer(user)]
		return Success, r.state, PromptView{
			Prompt:          r.prompts[r.round].Question,
			AlreadyAnswered: user != Anonymous && answered,
		}
	case StateVoting:
		if user == Anonymous {
			return PlayerNotFound, r.state, nil
		}
		order := r.voteOrder(user)
		options := make([]AnswerOption, len(order))
		for i, t := range order {
			options[i] = AnswerOption{ID: strconv.Itoa(i), Text: r.answers[t]}
		}
		return Success, r.state, VoteView{Prompt: r.prompts[r.round].Question, Answers: options}
	case StateShowingResults:
		return Success, r.state, ResultsView{Results: r.results()}
	default:
		return WrongState, r.state, nil
	}
}

// startVoting injects the true answer and deals every player a fresh,
// independently shuffled vote order that excludes their own answer.
func (r *PromptRoom) startVoting() {
	r.state = StateVoting
	r.answers[CorrectAnswer()] = strings.ToUpper(r.prompts[r.round].Answer)
	for p := range r.players {
		r.voteOrders[p] = r.dealVoteOrder(p)
	}
}

func (r *PromptRoom) dealVoteOrder(player string) []VoteTarget {
	own := PlayerAnswer(player)
	targets := make([]VoteTarget, 0, len(r.answers))
	for t := range r.answers {
		if t != own {
			targets = append(targets, t)
		}
	}
	// Map iteration order is not a shuffle; sort first so the permutation
	// alone decides the order.
	sort.Slice(targets, func(i, j int) bool { return targets[i].String() < targets[j].String() })
	return random.Shuffled(r.src, targets)
}

// voteOrder returns user's vote order, dealing one for a player who joined
// after voting opened so the round can still complete.
func (r *PromptRoom) voteOrder(user string) []VoteTarget {
	order, ok := r.voteOrders[user]
	if !ok {
		order = r.dealVoteOrder(user)
		r.voteOrders[user] = order
	}
	return order
}

func (r *PromptRoom) resolveVote(user, id string) (VoteTarget, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return VoteTarget{}, false
	}
	order := r.voteOrder(user)
	if idx < 0 || idx >= len(order) {
		return VoteTarget{}, false
	}
	return order[idx], true
}

// tally awards one point per vote to the author of the chosen answer. Votes
// for the true answer, and votes for players without a score entry, score
// nothing.
func (r *PromptRoom) tally() {
	for _, target := range r.votes {
		author, ok := target.Player()
		if !ok {
			continue
		}
		if _, scored := r.scores[author]; scored {
			r.scores[author]++
		}
	}
}

func (r *PromptRoom) nextRound() {
	r.round++
	r.answers = make(map[VoteTarget]string)
	r.votes = make(map[string]VoteTarget)
	r.voteOrders = make(map[string][]VoteTarget)
	if r.round >= r.rules.Rounds {
		r.state = StateDone
		return
	}
	r.state = StateCollectingAnswers
}

// results lists scored players by descending score, ties broken by name.
func (r *PromptRoom) results() []Result {
	out := make([]Result, 0, len(r.scores))
	for u, s := range r.scores {
		out = append(out, Result{User: u, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].User < out[j].User
	})
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
