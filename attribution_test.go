package llmresilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	llmr "github.com/aws-samples/llmresilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedResolver struct {
	results [][]llmr.Attribution
	errs    []error
	calls   int
}

func (r *scriptedResolver) Resolve(ctx context.Context, q llmr.AttributionQuery) ([]llmr.Attribution, error) {
	i := r.calls
	r.calls++
	if i < len(r.errs) && r.errs[i] != nil {
		return nil, r.errs[i]
	}
	if i < len(r.results) {
		return r.results[i], nil
	}
	return r.results[len(r.results)-1], nil
}

func attrs(labels ...string) []llmr.Attribution {
	out := make([]llmr.Attribution, len(labels))
	for i, l := range labels {
		out[i] = llmr.Attribution{RequestID: string(rune('a' + i)), Label: l}
	}
	return out
}

var noWait = []time.Duration{0, 0, 0}

func TestEnrich(t *testing.T) {
	outcomes := []llmr.Outcome{
		{Seq: 1, BackendRequestID: "a"},
		{Seq: 2, BackendRequestID: "b", Label: "already"},
		{Seq: 3, BackendRequestID: "zz"},
		{Seq: 4},
	}
	got := llmr.Enrich(outcomes, []llmr.Attribution{
		{RequestID: "a", Label: "us-east-1"},
		{RequestID: "b", Label: "us-west-2"},
		{RequestID: "c", Label: ""},
	})

	require.Len(t, got, 4)
	assert.Equal(t, "us-east-1", got[0].Label)
	assert.Equal(t, "already", got[1].Label)
	assert.Empty(t, got[2].Label)
	assert.Empty(t, got[3].Label)
	assert.Empty(t, outcomes[0].Label, "input must not be modified")
}

func TestDistribution(t *testing.T) {
	dist := llmr.Distribution(attrs("us-east-1", "us-west-2", "us-east-1", ""))
	assert.Equal(t, map[string]int{"us-east-1": 2, "us-west-2": 1}, dist)

	shares := llmr.DistributionShares(dist)
	assert.Equal(t, []llmr.LabelShare{
		{Label: "us-east-1", Count: 2, Pct: 66.7},
		{Label: "us-west-2", Count: 1, Pct: 33.3},
	}, shares)
	assert.Empty(t, llmr.DistributionShares(nil))
}

func TestAwaitAttribution_StopsWhenComplete(t *testing.T) {
	r := &scriptedResolver{results: [][]llmr.Attribution{attrs("x"), attrs("x", "y")}}

	var attempts []int
	got, err := llmr.AwaitAttribution(context.Background(), r, llmr.AttributionQuery{}, 2, noWait,
		func(attempt, found, expected int, err error) {
			attempts = append(attempts, found)
			assert.Equal(t, 2, expected)
		})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, r.calls)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestAwaitAttribution_ReturnsPartial(t *testing.T) {
	r := &scriptedResolver{results: [][]llmr.Attribution{attrs("x")}}

	got, err := llmr.AwaitAttribution(context.Background(), r, llmr.AttributionQuery{}, 5, noWait, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, len(noWait), r.calls)
}

func TestAwaitAttribution_KeepsLastGoodResultAfterError(t *testing.T) {
	boom := errors.New("query failed")
	r := &scriptedResolver{
		results: [][]llmr.Attribution{attrs("x"), nil, nil},
		errs:    []error{nil, boom, boom},
	}

	got, err := llmr.AwaitAttribution(context.Background(), r, llmr.AttributionQuery{}, 3, noWait, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAwaitAttribution_AllAttemptsFail(t *testing.T) {
	boom := errors.New("query failed")
	r := &scriptedResolver{results: [][]llmr.Attribution{nil}, errs: []error{boom, boom, boom}}

	_, err := llmr.AwaitAttribution(context.Background(), r, llmr.AttributionQuery{}, 1, noWait, nil)
	assert.ErrorIs(t, err, boom)
}

func TestAwaitAttribution_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	r := &scriptedResolver{results: [][]llmr.Attribution{attrs("x")}}
	_, err := llmr.AwaitAttribution(ctx, r, llmr.AttributionQuery{}, 1, []time.Duration{time.Minute}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, r.calls)
}
