package llmresilience_test

import (
	"testing"
	"time"

	llmr "github.com/aws-samples/llmresilience"
	"github.com/stretchr/testify/assert"
)

func outcome(group string, seq int, status llmr.Status, d time.Duration, label string) llmr.Outcome {
	return llmr.Outcome{Group: group, Seq: seq, Status: status, Duration: d, Label: label}
}

func sampleOutcomes() []llmr.Outcome {
	ms := time.Millisecond
	return []llmr.Outcome{
		outcome("A", 1, llmr.StatusSuccess, 100*ms, "us-east-1"),
		outcome("A", 2, llmr.StatusSuccess, 300*ms, "us-west-2"),
		outcome("A", 3, llmr.StatusRateLimited, 50*ms, ""),
		outcome("B", 4, llmr.StatusSuccess, 200*ms, "us-east-1"),
		outcome("B", 5, llmr.StatusFailed, 1000*ms, ""),
	}
}

func TestAggregate_Counts(t *testing.T) {
	r := llmr.Aggregate(sampleOutcomes())

	assert.Equal(t, llmr.LatencySuccessOnly, r.Policy)
	assert.Equal(t, 5, r.Overall.Total)
	assert.Equal(t, 3, r.Overall.Success)
	assert.Equal(t, 1, r.Overall.Failed)
	assert.Equal(t, 1, r.Overall.RateLimited)
	assert.Equal(t, 60.0, r.Overall.SuccessPct)
	assert.Equal(t, 3, r.Overall.Attributed)

	assert.Equal(t, []string{"A", "B"}, r.GroupNames())
	assert.Equal(t, 66.7, r.Groups["A"].SuccessPct)
	assert.Equal(t, 50.0, r.Groups["B"].SuccessPct)

	assert.Equal(t, []string{"us-east-1", "us-west-2"}, r.LabelNames())
	assert.Equal(t, 2, r.Labels["us-east-1"].Total)
	assert.Equal(t, llmr.LabelShare{Label: "us-east-1", Count: 2, Pct: 66.7}, r.Overall.Share("us-east-1"))
	assert.Equal(t, llmr.LabelShare{Label: "eu-west-1"}, r.Overall.Share("eu-west-1"))
}

func TestAggregate_LatencySuccessOnly(t *testing.T) {
	r := llmr.Aggregate(sampleOutcomes())

	s := r.Overall
	assert.Equal(t, 3, s.Timed)
	assert.Equal(t, 200*time.Millisecond, s.AvgLatency)
	assert.Equal(t, 100*time.Millisecond, s.MinLatency)
	assert.Equal(t, 300*time.Millisecond, s.MaxLatency)
	assert.Equal(t, 200*time.Millisecond, s.P50Latency)
	assert.Equal(t, 300*time.Millisecond, s.P95Latency)
}

func TestAggregate_LatencyAll(t *testing.T) {
	r := llmr.Aggregate(sampleOutcomes(), llmr.WithLatencyPolicy(llmr.LatencyAll))

	s := r.Overall
	assert.Equal(t, llmr.LatencyAll, r.Policy)
	assert.Equal(t, 5, s.Timed)
	assert.Equal(t, 330*time.Millisecond, s.AvgLatency)
	assert.Equal(t, 50*time.Millisecond, s.MinLatency)
	assert.Equal(t, 1000*time.Millisecond, s.MaxLatency)
}

func TestAggregate_InvalidPolicyKeepsDefault(t *testing.T) {
	r := llmr.Aggregate(sampleOutcomes(), llmr.WithLatencyPolicy("median"))
	assert.Equal(t, llmr.LatencySuccessOnly, r.Policy)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	in := sampleOutcomes()
	reversed := make([]llmr.Outcome, len(in))
	for i, o := range in {
		reversed[len(in)-1-i] = o
	}
	assert.Equal(t, llmr.Aggregate(in), llmr.Aggregate(reversed))
}

func TestAggregate_Empty(t *testing.T) {
	r := llmr.Aggregate(nil)
	assert.Equal(t, 0, r.Overall.Total)
	assert.Equal(t, 0.0, r.Overall.SuccessPct)
	assert.Equal(t, time.Duration(0), r.Overall.AvgLatency)
	assert.Empty(t, r.Groups)
}

func TestAggregate_NoSuccessLeavesLatencyZero(t *testing.T) {
	r := llmr.Aggregate([]llmr.Outcome{
		outcome("A", 1, llmr.StatusRateLimited, time.Second, ""),
	})
	assert.Equal(t, 0, r.Overall.Timed)
	assert.Equal(t, time.Duration(0), r.Overall.P95Latency)
}

func TestReport_Table(t *testing.T) {
	table := llmr.Aggregate(sampleOutcomes()).Table()
	assert.Len(t, table, 5)
	assert.Equal(t, 5, table[llmr.OverallKey].Total)
	assert.Equal(t, 3, table["group:A"].Total)
	assert.Equal(t, 1, table["label:us-west-2"].Total)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, llmr.Percent(3, 0))
	assert.Equal(t, 33.3, llmr.Percent(1, 3))
	assert.Equal(t, 100.0, llmr.Percent(4, 4))
	assert.Equal(t, 2.5, llmr.Percent(1, 40))
	assert.Equal(t, "66.7%", llmr.FormatPct(llmr.Percent(2, 3)))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, llmr.StatusSuccess, llmr.Classify(nil))
	assert.Equal(t, llmr.StatusRateLimited, llmr.Classify(&llmr.DispatchError{Err: llmr.ErrRateLimited}))
	assert.Equal(t, llmr.StatusFailed, llmr.Classify(llmr.ErrAuthFailed))

	assert.True(t, llmr.IsFatal(llmr.ErrModelNotFound))
	assert.False(t, llmr.IsFatal(llmr.ErrRateLimited))
	assert.False(t, llmr.IsFatal(llmr.ErrTimeout))
}
