//go:build integration

package redis_test

import (
	"context"
	"os"
	"sync"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmr "github.com/aws-samples/llmresilience"
	historyredis "github.com/aws-samples/llmresilience/history/redis"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestStore(t *testing.T, client *goredis.Client) *historyredis.Store {
	t.Helper()
	// Use a unique prefix per test to avoid collisions.
	prefix := "test:" + t.Name() + ":"
	s := historyredis.New(client, historyredis.WithKeyPrefix(prefix))
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})
	return s
}

func TestRecordAndTotals(t *testing.T) {
	s := newTestStore(t, newTestClient(t))
	ctx := context.Background()

	rec := llmr.RunRecord{
		RunID:    "run-1",
		Scenario: "quota",
		Overall:  llmr.Counts{Success: 10, RateLimited: 5},
		Groups:   map[string]llmr.Counts{"A": {RateLimited: 5}, "B": {Success: 5}},
		Flags:    map[string]bool{"isolation_effective": true},
	}
	require.NoError(t, s.Record(ctx, rec))
	// Same run id again is ignored.
	require.NoError(t, s.Record(ctx, rec))

	tot, err := s.Totals(ctx, "quota")
	require.NoError(t, err)
	assert.Equal(t, 1, tot.Runs)
	assert.Equal(t, 10, tot.Overall.Success)
	assert.Equal(t, 5, tot.Groups["A"].RateLimited)
	assert.Equal(t, 1, tot.Flags["isolation_effective"])
}

func TestConcurrentRecord(t *testing.T) {
	s := newTestStore(t, newTestClient(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Record(ctx, llmr.RunRecord{Scenario: "lb", Labels: map[string]int{"m1": 1}})
		}()
	}
	wg.Wait()

	tot, err := s.Totals(ctx, "lb")
	require.NoError(t, err)
	assert.Equal(t, 20, tot.Runs)
	assert.Equal(t, 20, tot.Labels["m1"])
}
