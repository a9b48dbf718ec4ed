package importer

import (
	"context"

	"github.com/cory-johannsen/splash/internal/game/prompt"
)

// Source loads prompt packs from a format-specific location.
//
// Precondition: path must exist and hold content in the source's format.
// Postcondition: returns at least one non-empty Pack, or a non-nil error.
type Source interface {
	Load(path string) ([]*prompt.Pack, error)
}

// Sink receives imported packs.
//
// Postcondition: returns the number of prompts the sink stored for pack.
type Sink interface {
	Name() string
	Write(ctx context.Context, pack *prompt.Pack) (int, error)
}
