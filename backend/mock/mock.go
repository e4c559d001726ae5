package mock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	llmr "github.com/aws-samples/llmresilience"
)

// Backend is a mock inference backend for testing and offline demos.
type Backend struct {
	name        string
	latency     time.Duration
	hang        bool
	capacity    int
	staticErr   error
	errOnCall   map[int64]error
	labels      []string
	usage       llmr.Usage
	callCount   atomic.Int64
	inflight    atomic.Int64
	maxInflight atomic.Int64

	responseFunc func(llmr.BackendRequest) (llmr.BackendResponse, error)
}

var _ llmr.Backend = (*Backend)(nil)

// Option configures a mock Backend.
type Option func(*Backend)

// New creates a mock backend with the given options.
func New(opts ...Option) *Backend {
	b := &Backend{
		name: "mock",
		usage: llmr.Usage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
		errOnCall: make(map[int64]error),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithName sets the backend name.
func WithName(name string) Option {
	return func(b *Backend) { b.name = name }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(b *Backend) { b.latency = d }
}

// WithHang makes every call block until its context is done.
func WithHang() Option {
	return func(b *Backend) { b.hang = true }
}

// WithCapacity lets the first n calls succeed and rate-limits the rest,
// the way a quota-limited deployment behaves under a burst.
func WithCapacity(n int) Option {
	return func(b *Backend) { b.capacity = n }
}

// WithError makes the backend always return this error.
func WithError(err error) Option {
	return func(b *Backend) { b.staticErr = err }
}

// WithErrorOnCall makes the n-th call (1-based) return err.
func WithErrorOnCall(n int, err error) Option {
	return func(b *Backend) { b.errOnCall[int64(n)] = err }
}

// WithLabels makes responses report the given models in turn, simulating a
// router spreading calls over deployments.
func WithLabels(labels ...string) Option {
	return func(b *Backend) { b.labels = labels }
}

// WithUsage sets the usage returned by the mock.
func WithUsage(u llmr.Usage) Option {
	return func(b *Backend) { b.usage = u }
}

// WithResponseFunc sets a custom response function.
func WithResponseFunc(fn func(llmr.BackendRequest) (llmr.BackendResponse, error)) Option {
	return func(b *Backend) { b.responseFunc = fn }
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Invoke(ctx context.Context, req llmr.BackendRequest) (llmr.BackendResponse, error) {
	cur := b.inflight.Add(1)
	defer b.inflight.Add(-1)
	for {
		peak := b.maxInflight.Load()
		if cur <= peak || b.maxInflight.CompareAndSwap(peak, cur) {
			break
		}
	}

	count := b.callCount.Add(1)

	if b.hang {
		<-ctx.Done()
		return llmr.BackendResponse{}, ctx.Err()
	}
	if b.latency > 0 {
		t := time.NewTimer(b.latency)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return llmr.BackendResponse{}, ctx.Err()
		}
	}

	if b.staticErr != nil {
		return llmr.BackendResponse{}, b.staticErr
	}
	if err, ok := b.errOnCall[count]; ok {
		return llmr.BackendResponse{}, err
	}
	if b.capacity > 0 && int(count) > b.capacity {
		return llmr.BackendResponse{}, fmt.Errorf("%w: capacity %d exhausted", llmr.ErrRateLimited, b.capacity)
	}

	if b.responseFunc != nil {
		return b.responseFunc(req)
	}

	model := req.Model
	if len(b.labels) > 0 {
		model = b.labels[int(count-1)%len(b.labels)]
	}
	return llmr.BackendResponse{
		ID:        fmt.Sprintf("mock-%d", count),
		RequestID: fmt.Sprintf("mock-req-%d", count),
		Content:   "Hello from mock backend",
		Model:     model,
		Usage:     b.usage,
	}, nil
}

// CallCount returns the number of calls made to the backend.
func (b *Backend) CallCount() int64 { return b.callCount.Load() }

// MaxInflight returns the highest number of concurrent calls observed.
func (b *Backend) MaxInflight() int64 { return b.maxInflight.Load() }
