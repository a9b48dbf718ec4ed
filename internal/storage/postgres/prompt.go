package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/splash/internal/game/prompt"
)

// DefaultPack is the pack name used when none is given.
const DefaultPack = "default"

// PromptRepository stores the prompt catalogue in the prompts table.
type PromptRepository struct {
	db *pgxpool.Pool
}

// NewPromptRepository creates a PromptRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPromptRepository(db *pgxpool.Pool) *PromptRepository {
	return &PromptRepository{db: db}
}

// All returns every stored prompt in insertion order.
func (r *PromptRepository) All(ctx context.Context) ([]prompt.Prompt, error) {
	rows, err := r.db.Query(ctx, `SELECT question, answer FROM prompts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying prompts: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (prompt.Prompt, error) {
		var p prompt.Prompt
		err := row.Scan(&p.Question, &p.Answer)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning prompts: %w", err)
	}
	return out, nil
}

// Insert stores prompts under pack in a single transaction. Prompts whose
// question already exists are skipped.
//
// Precondition: every prompt must pass Validate.
// Postcondition: Returns the number of rows inserted, or an error with
// nothing inserted.
func (r *PromptRepository) Insert(ctx context.Context, pack string, prompts []prompt.Prompt) (int, error) {
	if pack == "" {
		pack = DefaultPack
	}
	if len(prompts) == 0 {
		return 0, nil
	}
	for i, p := range prompts {
		if err := p.Validate(); err != nil {
			return 0, fmt.Errorf("prompt %d: %w", i, err)
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, p := range prompts {
		batch.Queue(
			`INSERT INTO prompts (pack, question, answer)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (question) DO NOTHING`,
			pack, p.Question, p.Answer,
		)
	}
	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range prompts {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("inserting prompt: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing prompts: %w", err)
	}
	return inserted, nil
}

// Count returns the number of stored prompts.
func (r *PromptRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM prompts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting prompts: %w", err)
	}
	return n, nil
}

// DeletePack removes every prompt stored under pack.
//
// Postcondition: Returns the number of rows deleted.
func (r *PromptRepository) DeletePack(ctx context.Context, pack string) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM prompts WHERE pack = $1`, pack)
	if err != nil {
		return 0, fmt.Errorf("deleting pack %q: %w", pack, err)
	}
	return int(tag.RowsAffected()), nil
}
