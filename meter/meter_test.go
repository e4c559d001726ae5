package meter

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	llmr "github.com/aws-samples/llmresilience"
)

func TestPromMeter_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPromMeter(reg)

	m.OnDispatch(llmr.DispatchEvent{Group: "a"})
	m.OnDispatch(llmr.DispatchEvent{Group: "a"})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Inflight.WithLabelValues("a")))

	m.OnOutcome(llmr.OutcomeEvent{Outcome: llmr.Outcome{Group: "a", Status: llmr.StatusSuccess, Label: "us-east-1", Duration: time.Second}})
	m.OnOutcome(llmr.OutcomeEvent{Outcome: llmr.Outcome{Group: "a", Status: llmr.StatusRateLimited, Duration: time.Second}})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.Inflight.WithLabelValues("a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("success", "a", "us-east-1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("rate_limited", "a", "")))

	n, err := testutil.GatherAndCount(reg, "llmr_request_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLogMeter_WarnsOnFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewLogMeter(zap.New(core).Sugar())

	m.OnDispatch(llmr.DispatchEvent{Group: "a", Seq: 1})
	m.OnOutcome(llmr.OutcomeEvent{Outcome: llmr.Outcome{Group: "a", Seq: 1, Status: llmr.StatusSuccess}})
	m.OnOutcome(llmr.OutcomeEvent{Outcome: llmr.Outcome{Group: "a", Seq: 2, Status: llmr.StatusFailed, Err: errors.New("boom")}})

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestNoopMeter(t *testing.T) {
	var m llmr.Meter = &NoopMeter{}
	assert.NotPanics(t, func() {
		m.OnDispatch(llmr.DispatchEvent{})
		m.OnOutcome(llmr.OutcomeEvent{})
	})
}
