// Package protocol defines the JSON messages exchanged with browser clients
// and validates inbound frames before they reach the game core.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound message type tags.
const (
	TypeCreateRoom   = "create_room"
	TypeJoinRoom     = "join_room"
	TypeRejoinRoom   = "rejoin_room"
	TypeStartRoom    = "start_room"
	TypeSubmitAnswer = "submit_answer"
	TypeSubmitVote   = "submit_vote"
)

// MaxNameLength bounds user names.
const MaxNameLength = 32

var (
	// ErrMalformed is returned when a frame is not a JSON object.
	ErrMalformed = errors.New("malformed message")
	// ErrMissingType is returned when a frame has no type tag.
	ErrMissingType = errors.New("missing message type")
	// ErrMissingField is returned when a required field is absent or empty.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidField is returned when a field is present but unusable.
	ErrInvalidField = errors.New("invalid field")
)

// Text is a string field that also accepts a JSON number, so
// {"voted_for_answer_id": 2} and {"voted_for_answer_id": "2"} are equivalent.
type Text string

// UnmarshalJSON accepts a JSON string or number.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*t = Text(n.String())
	return nil
}

// Request is a decoded inbound frame. Which fields are set depends on Type.
type Request struct {
	Type             string `json:"type"`
	RequestID        string `json:"request_id,omitempty"`
	Room             string `json:"room,omitempty"`
	User             string `json:"user,omitempty"`
	Answer           *Text  `json:"answer,omitempty"`
	VotedForAnswerID *Text  `json:"voted_for_answer_id,omitempty"`
}

type field int

const (
	fieldRoom field = iota
	fieldUser
	fieldAnswer
	fieldVote
)

// required lists the mandatory fields of every known message type.
var required = map[string][]field{
	TypeCreateRoom:   {fieldUser},
	TypeJoinRoom:     {fieldRoom, fieldUser},
	TypeRejoinRoom:   {fieldRoom, fieldUser},
	TypeStartRoom:    {fieldRoom},
	TypeSubmitAnswer: {fieldRoom, fieldUser, fieldAnswer},
	TypeSubmitVote:   {fieldRoom, fieldUser, fieldVote},
}

// Known reports whether t is a recognised inbound type tag.
func Known(t string) bool {
	_, ok := required[t]
	return ok
}

// Decode parses a frame into a Request. Frames with an unrecognised type
// decode successfully so the router can answer them; frames of a known type
// are validated against that type's required fields.
//
// Postcondition: Returns a Request, or an error wrapping ErrMalformed,
// ErrMissingType, ErrMissingField or ErrInvalidField. The request id is
// populated whenever it could be read, even on error.
func Decode(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		var header struct {
			RequestID string `json:"request_id"`
		}
		_ = json.Unmarshal(data, &header)
		return Request{RequestID: header.RequestID}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	req.Room = strings.TrimSpace(req.Room)
	req.User = strings.TrimSpace(req.User)
	if req.Type == "" {
		return req, ErrMissingType
	}
	return req, req.Validate()
}

// Validate checks the fields required by the request's type.
func (r Request) Validate() error {
	fields, ok := required[r.Type]
	if !ok {
		return nil
	}
	for _, f := range fields {
		switch f {
		case fieldRoom:
			if r.Room == "" {
				return fmt.Errorf("%w: room", ErrMissingField)
			}
		case fieldUser:
			if r.User == "" {
				return fmt.Errorf("%w: user", ErrMissingField)
			}
			if len(r.User) > MaxNameLength {
				return fmt.Errorf("%w: user longer than %d characters", ErrInvalidField, MaxNameLength)
			}
		case fieldAnswer:
			if r.Answer == nil {
				return fmt.Errorf("%w: answer", ErrMissingField)
			}
		case fieldVote:
			if r.VotedForAnswerID == nil || *r.VotedForAnswerID == "" {
				return fmt.Errorf("%w: voted_for_answer_id", ErrMissingField)
			}
		}
	}
	return nil
}
