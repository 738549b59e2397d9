// Package store opens the trip repository selected by configuration.
package store

import (
	"context"
	"fmt"

	"github.com/samirrijal/hsltrips/internal/adapters/postgres"
	"github.com/samirrijal/hsltrips/internal/adapters/sqlite"
	"github.com/samirrijal/hsltrips/internal/core/ports"
	"github.com/samirrijal/hsltrips/internal/pkg/config"
)

// Store bundles a trip repository with its connection lifecycle.
type Store struct {
	Trips ports.TripRepository
	Ping  func(ctx context.Context) error

	close func()
}

// Open connects to the configured database driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	switch cfg.Driver {
	case "", "postgres":
		db, err := postgres.New(ctx, cfg.DSN(), cfg.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return &Store{
			Trips: postgres.NewTripRepo(db),
			Ping:  db.Ping,
			close: db.Close,
		}, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return &Store{
			Trips: sqlite.NewTripRepo(db),
			Ping:  db.PingContext,
			close: func() { _ = db.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Close releases the underlying connections.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}
