package database

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// TxRunner executes fn inside a single database transaction. Repositories
// called with the ctx handed to fn join that transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// RunInTx opens a writer transaction, commits when fn returns nil and rolls
// back otherwise. Nested calls reuse the outer transaction.
func (c *Connections) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*bun.Tx); ok {
		return fn(ctx)
	}
	return c.Writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, &tx))
	})
}

// Executor returns the transaction bound to ctx, or fallback when none is.
func Executor(ctx context.Context, fallback *bun.DB) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(*bun.Tx); ok {
		return tx
	}
	return fallback
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*bun.Tx)
	return ok
}

// SupportsRowLocks reports whether the dialect understands SELECT ... FOR UPDATE.
// SQLite serialises writers at the database level instead.
func SupportsRowLocks(db bun.IDB) bool {
	return db.Dialect().Name() != dialect.SQLite
}
