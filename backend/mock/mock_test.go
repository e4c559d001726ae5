package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmr "github.com/aws-samples/llmresilience"
)

func TestCapacity(t *testing.T) {
	b := New(WithCapacity(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.Invoke(ctx, llmr.BackendRequest{Model: "m"})
		require.NoError(t, err)
	}
	_, err := b.Invoke(ctx, llmr.BackendRequest{Model: "m"})
	assert.ErrorIs(t, err, llmr.ErrRateLimited)
	assert.Equal(t, int64(3), b.CallCount())
}

func TestLabelsCycle(t *testing.T) {
	b := New(WithLabels("a", "b"))
	var got []string
	for i := 0; i < 3; i++ {
		resp, err := b.Invoke(context.Background(), llmr.BackendRequest{Model: "m"})
		require.NoError(t, err)
		got = append(got, resp.Model)
	}
	assert.Equal(t, []string{"a", "b", "a"}, got)
}

func TestErrorOnCall(t *testing.T) {
	boom := errors.New("boom")
	b := New(WithErrorOnCall(2, boom))

	_, err := b.Invoke(context.Background(), llmr.BackendRequest{})
	assert.NoError(t, err)
	_, err = b.Invoke(context.Background(), llmr.BackendRequest{})
	assert.ErrorIs(t, err, boom)
}

func TestHangRespectsContext(t *testing.T) {
	b := New(WithHang())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Invoke(ctx, llmr.BackendRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefaultsEchoModel(t *testing.T) {
	b := New(WithName("gateway"))
	resp, err := b.Invoke(context.Background(), llmr.BackendRequest{Model: "claude"})
	require.NoError(t, err)

	assert.Equal(t, "gateway", b.Name())
	assert.Equal(t, "claude", resp.Model)
	assert.Equal(t, "mock-req-1", resp.RequestID)
	assert.Equal(t, int64(30), resp.Usage.TotalTokens)
}
