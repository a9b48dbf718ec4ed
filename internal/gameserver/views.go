package gameserver

import (
	"fmt"

	"github.com/cory-johannsen/splash/internal/game/room"
	"github.com/cory-johannsen/splash/internal/protocol"
)

// phaseMessage converts a room view into the outbound message that shows
// that phase to a client: ask_prompt, ask_vote, show_results or game_done.
//
// Postcondition: Returns (nil, nil) for phases with nothing to show (the
// lobby), or an error when the view does not match the state.
func phaseMessage(state room.State, v room.View) (any, error) {
	switch state {
	case room.StateWaitingToStart:
		return nil, nil
	case room.StateDone:
		return protocol.NewGameDone(), nil
	}

	switch view := v.(type) {
	case room.PromptView:
		return protocol.NewAskPrompt(view.Prompt, view.AlreadyAnswered), nil
	case room.VoteView:
		opts := make([]protocol.AnswerOption, len(view.Answers))
		for i, a := range view.Answers {
			opts[i] = protocol.AnswerOption{ID: a.ID, Text: a.Text}
		}
		return protocol.NewAskVote(view.Prompt, opts), nil
	case room.ResultsView:
		results := make([]protocol.ResultDetail, len(view.Results))
		for i, r := range view.Results {
			results[i] = protocol.ResultDetail{User: r.User, Score: r.Score}
		}
		return protocol.NewShowResults(results), nil
	default:
		return nil, fmt.Errorf("no view for state %s (got %T)", state, v)
	}
}
