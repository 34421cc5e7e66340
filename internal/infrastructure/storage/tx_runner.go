package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/uptrace/bun"
)

// DBTxRunner adapts ExecuteDistributedTransaction to the narrow interface
// the workflow runtime depends on, keeping the runtime package free of a
// direct bun.DB dependency.
type DBTxRunner struct {
	db *bun.DB
}

// NewDBTxRunner wraps a bun.DB as a DBTxRunner.
func NewDBTxRunner(db *bun.DB) *DBTxRunner {
	return &DBTxRunner{db: db}
}

// RunDistributedTransaction runs fn inside a transaction serialized by an
// advisory lock keyed by key.
func (t *DBTxRunner) RunDistributedTransaction(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return ExecuteDistributedTransaction(ctx, t.db, key, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx)
	})
}

// BunTxOpener adapts bun.DB.RunInTx to actions.TxOpener, handing transactional
// action executors a *bun.Tx behind the opaque `tx interface{}` parameter.
type BunTxOpener struct {
	db *bun.DB
}

// NewBunTxOpener wraps a bun.DB as a BunTxOpener.
func NewBunTxOpener(db *bun.DB) *BunTxOpener {
	return &BunTxOpener{db: db}
}

func (o *BunTxOpener) RunInTx(ctx context.Context, isolationLevel string, fn func(tx interface{}) error) error {
	return o.db.RunInTx(ctx, &sql.TxOptions{Isolation: parseIsolation(isolationLevel)}, func(ctx context.Context, tx bun.Tx) error {
		return fn(tx)
	})
}

func parseIsolation(level string) sql.IsolationLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "serializable":
		return sql.LevelSerializable
	case "repeatable read":
		return sql.LevelRepeatableRead
	case "read committed", "":
		return sql.LevelReadCommitted
	case "read uncommitted":
		return sql.LevelReadUncommitted
	default:
		return sql.LevelReadCommitted
	}
}
