package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrator applies the SQL files under a migrations source to a database.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator opens sourceURL (for example "file://migrations") against dsn.
//
// Precondition: dsn must be a postgres:// connection string.
// Postcondition: Returns a Migrator that must be closed, or an error.
func NewMigrator(sourceURL, dsn string) (*Migrator, error) {
	m, err := migrate.New(sourceURL, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating migrator for %s: %w", sourceURL, err)
	}
	return &Migrator{m: m}, nil
}

// Up applies steps pending migrations, or all of them when steps <= 0.
//
// Postcondition: Returns true if the schema changed.
func (g *Migrator) Up(steps int) (bool, error) {
	var err error
	if steps > 0 {
		err = g.m.Steps(steps)
	} else {
		err = g.m.Up()
	}
	return changed(err)
}

// Down reverts steps migrations, or all of them when steps <= 0.
//
// Postcondition: Returns true if the schema changed.
func (g *Migrator) Down(steps int) (bool, error) {
	var err error
	if steps > 0 {
		err = g.m.Steps(-steps)
	} else {
		err = g.m.Down()
	}
	return changed(err)
}

// Version returns the current schema version and whether it is dirty.
// A database with no migrations applied reports version 0.
func (g *Migrator) Version() (uint, bool, error) {
	v, dirty, err := g.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close releases the source and database handles.
func (g *Migrator) Close() error {
	srcErr, dbErr := g.m.Close()
	return errors.Join(srcErr, dbErr)
}

func changed(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, migrate.ErrNoChange):
		return false, nil
	default:
		return false, fmt.Errorf("migrating: %w", err)
	}
}
