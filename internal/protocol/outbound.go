package protocol

import (
	"encoding/json"
	"fmt"
)

// Outbound message type tags.
const (
	TypeError        = "error"
	TypeRoomNotFound = "room_not_found"
	TypeJoinRoomOK   = "join_room_ok"
	TypeRejoinRoomOK = "rejoin_room_ok"
	TypeUserUpdate   = "user_update"
	TypeAskPrompt    = "ask_prompt"
	TypeAskVote      = "ask_vote"
	TypeShowResults  = "show_results"
	TypeGameDone     = "game_done"
)

// GameDoneText is the farewell sent when a game ends.
const GameDoneText = "The game has ended. Thanks for playing!"

// Header is embedded in every outbound message.
type Header struct {
	Type       string `json:"type"`
	ResponseTo string `json:"response_to_request_id,omitempty"`
}

// Error reports a failed request.
type Error struct {
	Header
	Message string `json:"message"`
}

// RoomNotFound answers a rejoin for a room that no longer exists.
type RoomNotFound struct {
	Header
}

// JoinOK confirms create_room, join_room and rejoin_room.
type JoinOK struct {
	Header
	Room string `json:"room"`
	User string `json:"user"`
}

// UserUpdate lists the users connected to a room.
type UserUpdate struct {
	Header
	Users []string `json:"users"`
}

// AskPrompt asks players for a fake answer.
type AskPrompt struct {
	Header
	Prompt          string `json:"prompt"`
	AlreadyAnswered bool   `json:"already_answered,omitempty"`
}

// AnswerOption is one votable answer.
type AnswerOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// AskVote offers a player the answers they may vote for.
type AskVote struct {
	Header
	Prompt  string         `json:"prompt"`
	Answers []AnswerOption `json:"answers"`
}

// ResultDetail is one player's cumulative score.
type ResultDetail struct {
	User  string `json:"user"`
	Score int    `json:"score"`
}

// ShowResults lists the scoreboard after a round's votes are in.
type ShowResults struct {
	Header
	Results []ResultDetail `json:"results"`
}

// GameDone announces the end of the game.
type GameDone struct {
	Header
	Message string `json:"message"`
}

// NewError builds an error message answering requestID.
func NewError(message, requestID string) Error {
	return Error{Header: Header{Type: TypeError, ResponseTo: requestID}, Message: message}
}

// NewRoomNotFound builds a room_not_found message answering requestID.
func NewRoomNotFound(requestID string) RoomNotFound {
	return RoomNotFound{Header: Header{Type: TypeRoomNotFound, ResponseTo: requestID}}
}

// NewJoinRoomOK builds a join_room_ok message.
func NewJoinRoomOK(room, user, requestID string) JoinOK {
	return JoinOK{Header: Header{Type: TypeJoinRoomOK, ResponseTo: requestID}, Room: room, User: user}
}

// NewRejoinRoomOK builds a rejoin_room_ok message.
func NewRejoinRoomOK(room, user, requestID string) JoinOK {
	return JoinOK{Header: Header{Type: TypeRejoinRoomOK, ResponseTo: requestID}, Room: room, User: user}
}

// NewUserUpdate builds a user_update message.
func NewUserUpdate(users []string) UserUpdate {
	if users == nil {
		users = []string{}
	}
	return UserUpdate{Header: Header{Type: TypeUserUpdate}, Users: users}
}

// NewAskPrompt builds an ask_prompt message.
func NewAskPrompt(prompt string, alreadyAnswered bool) AskPrompt {
	return AskPrompt{Header: Header{Type: TypeAskPrompt}, Prompt: prompt, AlreadyAnswered: alreadyAnswered}
}

// NewAskVote builds an ask_vote message.
func NewAskVote(prompt string, answers []AnswerOption) AskVote {
	if answers == nil {
		answers = []AnswerOption{}
	}
	return AskVote{Header: Header{Type: TypeAskVote}, Prompt: prompt, Answers: answers}
}

// NewShowResults builds a show_results message.
func NewShowResults(results []ResultDetail) ShowResults {
	if results == nil {
		results = []ResultDetail{}
	}
	return ShowResults{Header: Header{Type: TypeShowResults}, Results: results}
}

// NewGameDone builds the game_done message.
func NewGameDone() GameDone {
	return GameDone{Header: Header{Type: TypeGameDone}, Message: GameDoneText}
}

// Encode serialises an outbound message.
//
// Postcondition: Returns the JSON encoding or a non-nil error.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", msg, err)
	}
	return data, nil
}
