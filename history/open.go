package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	llmr "github.com/aws-samples/llmresilience"
	historypg "github.com/aws-samples/llmresilience/history/postgres"
	historyredis "github.com/aws-samples/llmresilience/history/redis"
)

// Open connects the configured store. The returned func releases its
// connections.
func Open(ctx context.Context, cfg llmr.HistoryConfig) (llmr.RunStore, func(), error) {
	switch cfg.Backend {
	case "", llmr.HistoryMemory:
		return NewMemoryStore(), func() {}, nil

	case llmr.HistoryRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("llmresilience: redis not available at %s: %w", cfg.RedisAddr, err)
		}
		store := historyredis.New(client, historyredis.WithKeyPrefix(cfg.KeyPrefix+"history:"))
		return store, func() { client.Close() }, nil

	case llmr.HistoryPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("llmresilience: postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("llmresilience: postgres not available: %w", err)
		}
		store := historypg.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	}
	return nil, nil, fmt.Errorf("llmresilience: unknown history backend %q", cfg.Backend)
}
