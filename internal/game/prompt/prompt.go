// Package prompt defines the question/answer catalogue rooms draw their
// rounds from, along with YAML pack loading.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cory-johannsen/splash/internal/game/random"
)

// ErrNotEnoughPrompts is returned when a catalogue cannot supply the number
// of prompts a room needs.
var ErrNotEnoughPrompts = errors.New("not enough prompts")

// Prompt is one trivia question together with its true answer.
type Prompt struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// Validate reports whether both fields are present.
func (p Prompt) Validate() error {
	if strings.TrimSpace(p.Question) == "" {
		return errors.New("prompt question must not be empty")
	}
	if strings.TrimSpace(p.Answer) == "" {
		return fmt.Errorf("prompt %q: answer must not be empty", p.Question)
	}
	return nil
}

// Store loads the full prompt catalogue from a backing source.
type Store interface {
	// All returns every known prompt.
	All(ctx context.Context) ([]Prompt, error)
}

// Catalogue is an immutable, in-memory prompt set shared by all rooms.
type Catalogue struct {
	prompts []Prompt
}

// NewCatalogue builds a Catalogue from the given prompts.
//
// Precondition: every prompt must pass Validate.
// Postcondition: Returns a Catalogue holding a private copy of prompts, or an error.
func NewCatalogue(prompts []Prompt) (*Catalogue, error) {
	for i, p := range prompts {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("prompt %d: %w", i, err)
		}
	}
	return &Catalogue{prompts: append([]Prompt(nil), prompts...)}, nil
}

// LoadCatalogue reads every prompt from store and wraps them in a Catalogue.
//
// Precondition: store must be non-nil.
// Postcondition: Returns a Catalogue with at least minSize prompts, or an error
// wrapping ErrNotEnoughPrompts.
func LoadCatalogue(ctx context.Context, store Store, minSize int) (*Catalogue, error) {
	prompts, err := store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading prompts: %w", err)
	}
	if len(prompts) < minSize {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughPrompts, len(prompts), minSize)
	}
	return NewCatalogue(prompts)
}

// Len returns the number of prompts in the catalogue.
func (c *Catalogue) Len() int {
	return len(c.prompts)
}

// Draw samples n distinct prompts without replacement.
//
// Precondition: src must be non-nil.
// Postcondition: Returns exactly n prompts, or an error wrapping ErrNotEnoughPrompts.
func (c *Catalogue) Draw(src random.Source, n int) ([]Prompt, error) {
	if n > len(c.prompts) {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughPrompts, len(c.prompts), n)
	}
	return random.Sample(src, c.prompts, n), nil
}
