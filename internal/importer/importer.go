// Package importer converts third-party prompt lists into prompt packs and
// hands them to one or more sinks.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/splash/internal/game/prompt"
)

// Importer orchestrates prompt import from a Source to its Sinks.
type Importer struct {
	source Source
	sinks  []Sink
	logger *zap.Logger
}

// New constructs an Importer backed by the given Source.
//
// Precondition: source and logger must be non-nil; at least one sink.
// Postcondition: returns a non-nil Importer.
func New(source Source, logger *zap.Logger, sinks ...Sink) *Importer {
	return &Importer{source: source, sinks: sinks, logger: logger}
}

// Run loads every pack found at path and writes each to every sink.
//
// Postcondition: returns the number of prompts loaded, or the first error.
func (imp *Importer) Run(ctx context.Context, path string) (int, error) {
	if len(imp.sinks) == 0 {
		return 0, errors.New("importer has no sinks")
	}
	overall := time.Now()

	packs, err := imp.source.Load(path)
	if err != nil {
		return 0, fmt.Errorf("loading source: %w", err)
	}
	imp.logger.Info("loaded prompt packs",
		zap.Int("packs", len(packs)),
		zap.Duration("duration", time.Since(overall)),
	)

	total := 0
	for _, pack := range packs {
		total += len(pack.Prompts)
		for _, sink := range imp.sinks {
			start := time.Now()
			n, err := sink.Write(ctx, pack)
			if err != nil {
				return 0, fmt.Errorf("writing pack %q to %s: %w", pack.Name, sink.Name(), err)
			}
			imp.logger.Info("wrote prompt pack",
				zap.String("pack", pack.Name),
				zap.String("sink", sink.Name()),
				zap.Int("prompts", len(pack.Prompts)),
				zap.Int("stored", n),
				zap.Duration("duration", time.Since(start)),
			)
		}
	}

	imp.logger.Info("import complete",
		zap.Int("prompts", total),
		zap.Duration("duration", time.Since(overall)),
	)
	return total, nil
}

// DirSink writes each pack as <pack>.yaml under Dir.
type DirSink struct {
	Dir string
}

// Name identifies the sink in logs and errors.
func (d DirSink) Name() string {
	return "dir:" + d.Dir
}

// Write serialises pack and checks it loads back before writing it.
//
// Postcondition: Dir/<pack>.yaml holds every prompt in pack.
func (d DirSink) Write(_ context.Context, pack *prompt.Pack) (int, error) {
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return 0, fmt.Errorf("creating output directory %s: %w", d.Dir, err)
	}
	data, err := prompt.MarshalPack(pack)
	if err != nil {
		return 0, err
	}
	if _, err := prompt.LoadPackFromBytes(data); err != nil {
		return 0, fmt.Errorf("pack %q failed validation: %w", pack.Name, err)
	}
	outPath := filepath.Join(d.Dir, pack.Name+".yaml")
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return 0, fmt.Errorf("writing %s: %w", outPath, err)
	}
	return len(pack.Prompts), nil
}

// Inserter stores prompts under a pack name.
type Inserter interface {
	Insert(ctx context.Context, pack string, prompts []prompt.Prompt) (int, error)
}

// StoreSink hands packs to an Inserter such as the postgres repository.
type StoreSink struct {
	Store Inserter
}

// Name identifies the sink in logs and errors.
func (s StoreSink) Name() string {
	return "database"
}

// Write inserts every prompt of pack.
func (s StoreSink) Write(ctx context.Context, pack *prompt.Pack) (int, error) {
	return s.Store.Insert(ctx, pack.Name, pack.Prompts)
}
