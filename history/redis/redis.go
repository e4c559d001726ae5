// Package redis provides a Redis-backed RunStore.
//
// Each scenario's totals live in one hash updated by an atomic Lua script,
// so several demo processes can share cumulative statistics.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	llmr "github.com/aws-samples/llmresilience"
)

// Store is a Redis-backed RunStore.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
	dedupTTL  time.Duration
}

var _ llmr.RunStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "llmr:history:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithDedupTTL sets how long recorded run ids are remembered (default 24h).
func WithDedupTTL(d time.Duration) Option {
	return func(s *Store) { s.dedupTTL = d }
}

// New creates a new Redis-backed RunStore.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "llmr:history:",
		dedupTTL:  24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) totalsKey(scenario string) string {
	return s.keyPrefix + scenario
}

func (s *Store) runKey(runID string) string {
	return s.keyPrefix + "run:" + runID
}

// recordScript folds one run into the totals hash.
// KEYS[1] = totals hash key
// KEYS[2] = run dedup key
// ARGV[1] = dedup ttl (seconds)
// ARGV[2] = has_run_id ("1" or "0")
// ARGV[3..] = field, increment pairs
//
// Returns 1 when recorded, 0 when the run id was seen before.
var recordScript = goredis.NewScript(`
local totals_key = KEYS[1]
local run_key = KEYS[2]
local ttl = tonumber(ARGV[1])

if ARGV[2] == "1" then
    local set = redis.call("SET", run_key, "1", "NX", "EX", ttl)
    if not set then
        return 0
    end
end

redis.call("HINCRBY", totals_key, "runs", 1)
for i = 3, #ARGV, 2 do
    redis.call("HINCRBY", totals_key, ARGV[i], tonumber(ARGV[i + 1]))
end
return 1
`)

const (
	fieldRuns    = "runs"
	prefixOver   = "overall:"
	prefixGroup  = "group:"
	prefixLabel  = "label:"
	prefixFlag   = "flag:"
	statusSucc   = "success"
	statusFailed = "failed"
	statusLimit  = "rate_limited"
)

func countFields(prefix string, c llmr.Counts) []any {
	return []any{
		prefix + statusSucc, c.Success,
		prefix + statusFailed, c.Failed,
		prefix + statusLimit, c.RateLimited,
	}
}

// Record adds one run to the scenario's totals.
func (s *Store) Record(ctx context.Context, run llmr.RunRecord) error {
	hasRun := "0"
	if run.RunID != "" {
		hasRun = "1"
	}

	args := []any{int64(s.dedupTTL.Seconds()), hasRun}
	args = append(args, countFields(prefixOver, run.Overall)...)
	for g, c := range run.Groups {
		args = append(args, countFields(prefixGroup+g+":", c)...)
	}
	for l, n := range run.Labels {
		args = append(args, prefixLabel+l, n)
	}
	for f, set := range run.Flags {
		if set {
			args = append(args, prefixFlag+f, 1)
		}
	}

	_, err := recordScript.Run(ctx, s.client,
		[]string{s.totalsKey(run.Scenario), s.runKey(run.RunID)},
		args...,
	).Int64()
	if err != nil {
		return fmt.Errorf("llmresilience/redis: record: %w", err)
	}
	return nil
}

// Totals returns the cumulative statistics of a scenario.
func (s *Store) Totals(ctx context.Context, scenario string) (llmr.Totals, error) {
	vals, err := s.client.HGetAll(ctx, s.totalsKey(scenario)).Result()
	if err != nil {
		return llmr.Totals{}, fmt.Errorf("llmresilience/redis: totals: %w", err)
	}
	return parseTotals(scenario, vals), nil
}

func parseTotals(scenario string, vals map[string]string) llmr.Totals {
	t := llmr.NewTotals(scenario)
	for field, raw := range vals {
		n, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		switch {
		case field == fieldRuns:
			t.Runs = n
		case strings.HasPrefix(field, prefixOver):
			setCount(&t.Overall, strings.TrimPrefix(field, prefixOver), n)
		case strings.HasPrefix(field, prefixGroup):
			rest := strings.TrimPrefix(field, prefixGroup)
			i := strings.LastIndex(rest, ":")
			if i < 0 {
				continue
			}
			c := t.Groups[rest[:i]]
			setCount(&c, rest[i+1:], n)
			t.Groups[rest[:i]] = c
		case strings.HasPrefix(field, prefixLabel):
			t.Labels[strings.TrimPrefix(field, prefixLabel)] = n
		case strings.HasPrefix(field, prefixFlag):
			t.Flags[strings.TrimPrefix(field, prefixFlag)] = n
		}
	}
	return t
}

func setCount(c *llmr.Counts, status string, n int) {
	switch status {
	case statusSucc:
		c.Success = n
	case statusFailed:
		c.Failed = n
	case statusLimit:
		c.RateLimited = n
	}
}
