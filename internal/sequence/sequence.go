// Package sequence allocates the per tenant, branch and business day counter
// behind human readable order numbers.
package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/cache"
	"github.com/Additional-Code/comanda/internal/config"
	"github.com/Additional-Code/comanda/internal/database"
)

// Allocator hands out the next daily sequence. Values are unique per
// (tenant, branch, day); gaps are allowed.
type Allocator interface {
	Next(ctx context.Context, tenantID, branchID, businessDate string) (int, error)
}

// Module provides the configured Allocator to Fx.
var Module = fx.Provide(NewAllocator)

// NewAllocator picks the database or redis allocator from configuration.
func NewAllocator(lc fx.Lifecycle, cfg config.Config, conns *database.Connections, client *goredis.Client, logger *zap.Logger) (Allocator, error) {
	switch cfg.Sequence.Driver {
	case "database":
		return NewDatabaseAllocator(conns.Writer), nil
	case "redis":
		cache.PingOnStart(lc, client, logger, "sequence")
		return NewRedisAllocator(client, cfg.Sequence.KeyTTL), nil
	default:
		return nil, fmt.Errorf("unsupported sequence driver: %s", cfg.Sequence.Driver)
	}
}

// DatabaseAllocator keeps one counter row per key in daily_sequences and
// bumps it with a single upsert, so the row lock taken by the statement
// serialises concurrent callers.
type DatabaseAllocator struct {
	db *bun.DB
}

// NewDatabaseAllocator returns an allocator backed by db.
func NewDatabaseAllocator(db *bun.DB) *DatabaseAllocator {
	return &DatabaseAllocator{db: db}
}

const upsertReturning = `INSERT INTO daily_sequences (tenant_id, branch_id, business_date, seq_value)
VALUES (?, ?, ?, 1)
ON CONFLICT (tenant_id, branch_id, business_date)
DO UPDATE SET seq_value = daily_sequences.seq_value + 1
RETURNING seq_value`

const upsertMySQL = `INSERT INTO daily_sequences (tenant_id, branch_id, business_date, seq_value)
VALUES (?, ?, ?, LAST_INSERT_ID(1))
ON DUPLICATE KEY UPDATE seq_value = LAST_INSERT_ID(seq_value + 1)`

// Next increments and returns the counter. When ctx carries a transaction the
// row stays locked until it ends.
func (a *DatabaseAllocator) Next(ctx context.Context, tenantID, branchID, businessDate string) (int, error) {
	db := database.Executor(ctx, a.db)
	if db.Dialect().Name() != dialect.MySQL {
		var value int
		if err := db.NewRaw(upsertReturning, tenantID, branchID, businessDate).Scan(ctx, &value); err != nil {
			return 0, fmt.Errorf("allocate daily sequence: %w", err)
		}
		return value, nil
	}

	// LAST_INSERT_ID is per connection, so both statements must share one.
	if !database.InTx(ctx) {
		var value int
		err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var err error
			value, err = nextMySQL(ctx, tx, tenantID, branchID, businessDate)
			return err
		})
		return value, err
	}
	return nextMySQL(ctx, db, tenantID, branchID, businessDate)
}

func nextMySQL(ctx context.Context, db bun.IDB, tenantID, branchID, businessDate string) (int, error) {
	if _, err := db.NewRaw(upsertMySQL, tenantID, branchID, businessDate).Exec(ctx); err != nil {
		return 0, fmt.Errorf("allocate daily sequence: %w", err)
	}
	var value int
	if err := db.NewRaw("SELECT LAST_INSERT_ID()").Scan(ctx, &value); err != nil {
		return 0, fmt.Errorf("read daily sequence: %w", err)
	}
	return value, nil
}

// RedisAllocator uses INCR on one key per (tenant, branch, day). Keys expire
// after ttl so old days do not accumulate.
type RedisAllocator struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedisAllocator returns an allocator backed by client.
func NewRedisAllocator(client *goredis.Client, ttl time.Duration) *RedisAllocator {
	return &RedisAllocator{client: client, ttl: ttl}
}

// Next increments and returns the counter.
func (a *RedisAllocator) Next(ctx context.Context, tenantID, branchID, businessDate string) (int, error) {
	key := Key(tenantID, branchID, businessDate)

	var incr *goredis.IntCmd
	_, err := a.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, a.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("allocate daily sequence: %w", err)
	}
	return int(incr.Val()), nil
}

// Key builds the redis key, e.g. seq:t1:b1:20250102.
func Key(tenantID, branchID, businessDate string) string {
	return fmt.Sprintf("seq:%s:%s:%s", tenantID, branchID, strings.ReplaceAll(businessDate, "-", ""))
}
