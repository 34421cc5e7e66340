// Package storage provides the Postgres persistence layer (bun/pgdriver)
// for workflow registrations, executions, events and processing state.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
)

// Config holds database connection configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Debug           bool
}

// DefaultConfig returns default database configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		Debug:           false,
	}
}

// NewDB creates a new Bun database connection.
func NewDB(cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithTimeout(30*time.Second),
		pgdriver.WithDialTimeout(10*time.Second),
		pgdriver.WithReadTimeout(10*time.Second),
		pgdriver.WithWriteTimeout(10*time.Second),
	)

	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	db := bun.NewDB(sqldb, pgdialect.New())

	if cfg.Debug {
		db.WithQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}

	registerModels(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("database connection established",
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns),
	)

	return db, nil
}

func registerModels(db *bun.DB) {
	db.RegisterModel(
		(*models.TenantModel)(nil),
		(*models.WorkflowRegistrationModel)(nil),
		(*models.WorkflowRegistrationVersionModel)(nil),
		(*models.EventCatalogEntryModel)(nil),
		(*models.WorkflowEventModel)(nil),
		(*models.WorkflowEventProcessingModel)(nil),
		(*models.WorkflowExecutionModel)(nil),
		(*models.WorkflowActionResultModel)(nil),
		(*models.WorkflowEventAttachmentModel)(nil),
	)
}

// Close closes the database connection.
func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// Ping verifies the database connection is alive.
func Ping(ctx context.Context, db *bun.DB) error {
	return db.PingContext(ctx)
}

// Stats returns database connection pool statistics.
func Stats(db *bun.DB) sql.DBStats {
	return db.DB.Stats()
}

// WithTransaction runs fn inside a read-committed transaction.
func WithTransaction(ctx context.Context, db *bun.DB, fn func(tx bun.Tx) error) error {
	return db.RunInTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	}, func(ctx context.Context, tx bun.Tx) error {
		return fn(tx)
	})
}

// lockKeyToInt64 derives a deterministic 64-bit key for pg_advisory_xact_lock
// from an arbitrary string, the way hashtext() would on the Postgres side but
// computed in Go so the same key always maps to the same lock id regardless
// of which advisory-lock function variant is used.
func lockKeyToInt64(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// ExecuteDistributedTransaction runs fn inside a database transaction that
// holds a transaction-scoped Postgres advisory lock (pg_advisory_xact_lock),
// keyed by an arbitrary string. Two concurrent callers using the
// same key serialize against each other even across processes; the lock is
// released automatically when the transaction commits or rolls back.
// runtime.EnqueueEvent uses it through DBTxRunner, keyed by
// "workflow:<executionId>", independent of (and in addition to) the
// short-lived Redis per-event processing lock.
func ExecuteDistributedTransaction(ctx context.Context, db *bun.DB, key string, fn func(ctx context.Context, tx bun.Tx) error) error {
	lockID := lockKeyToInt64(key)
	return db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", lockID); err != nil {
			return fmt.Errorf("acquire advisory lock for %q: %w", key, err)
		}
		return fn(ctx, tx)
	})
}
