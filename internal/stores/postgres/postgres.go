// Package postgres implements the service stores on PostgreSQL with sqlx and lib/pq.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/paulexconde/bizassess/internal/config"
	"github.com/paulexconde/bizassess/internal/logger"
	"github.com/paulexconde/bizassess/internal/pkg/retry"
	"github.com/paulexconde/bizassess/internal/services"
	"github.com/paulexconde/bizassess/pkg/store"
)

//go:embed schema.sql
var schema string

type DB struct {
	db  *sqlx.DB
	log *logger.Logger
}

// Open connects and pings the database, retrying while it is still starting up.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	_, err = retry.On(ctx, retry.Config{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second},
		func(error) bool { return true },
		func(attempt int, err error) {
			log.Warn("database not reachable yet", "attempt", attempt, "error", err)
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, db.PingContext(ctx)
		},
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{db: db, log: log}, nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB, log *logger.Logger) *DB {
	return &DB{db: db, log: log}
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// EnsureSchema creates missing tables, indices and constraints. It is idempotent.
func (d *DB) EnsureSchema(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	d.log.Info("database schema applied")
	return nil
}

func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return store.InTx(ctx, d.db, func(ctx context.Context, _ *sqlx.Tx) error {
		return fn(ctx)
	})
}

// Stores returns the service persistence backed by d.
func (d *DB) Stores() services.Stores {
	surveys := newSurveyStore(d.db)
	return services.Stores{
		Tx:       d,
		Versions: newVersionStore(d.db, d.log),
		Pointers: surveys,
		Sessions: newSessionStore(d.db),
		Surveys:  surveys,
		Admins:   newAdminStore(d.db),
	}
}
