package llmresilience

import (
	"fmt"
	"math/rand"

	"github.com/vova616/xxhash"
)

// Strategy assigns requests to targets (accounts) for account sharding.
type Strategy string

const (
	// StrategyRoundRobin alternates between targets.
	StrategyRoundRobin Strategy = "round-robin"
	// StrategySplit sends contiguous blocks of requests to each target.
	StrategySplit Strategy = "split"
	// StrategyRandom picks a target uniformly at random.
	StrategyRandom Strategy = "random"
	// StrategyHash pins each request to a target by hashing its id.
	StrategyHash Strategy = "hash"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRoundRobin, StrategySplit, StrategyRandom, StrategyHash:
		return true
	}
	return false
}

// ShardOption configures Shard.
type ShardOption func(*sharder)

type sharder struct {
	rnd *rand.Rand
}

// WithRand sets the random source used by StrategyRandom.
func WithRand(r *rand.Rand) ShardOption {
	return func(s *sharder) { s.rnd = r }
}

// Shard returns copies of reqs with Group set to one of targets according to
// the strategy. The input slice is not modified.
func Shard(reqs []RequestDescriptor, targets []string, strategy Strategy, opts ...ShardOption) ([]RequestDescriptor, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: at least one target is required", ErrInvalidGroup)
	}
	if !strategy.Valid() {
		return nil, fmt.Errorf("llmresilience: unknown sharding strategy %q", strategy)
	}

	s := &sharder{}
	for _, opt := range opts {
		opt(s)
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(rand.Int63()))
	}

	n := len(reqs)
	k := len(targets)
	out := make([]RequestDescriptor, n)
	for i, r := range reqs {
		var idx int
		switch strategy {
		case StrategyRoundRobin:
			idx = i % k
		case StrategySplit:
			chunk := n / k
			if chunk == 0 {
				idx = i
			} else {
				idx = i / chunk
			}
			if idx >= k {
				idx = k - 1
			}
		case StrategyRandom:
			idx = s.rnd.Intn(k)
		case StrategyHash:
			idx = int(xxhash.Checksum32([]byte(r.ID)) % uint32(k))
		}
		r.Group = targets[idx]
		out[i] = r
	}
	return out, nil
}
