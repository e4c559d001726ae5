package report

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmr "github.com/aws-samples/llmresilience"
)

func sampleReport() llmr.Report {
	return llmr.Aggregate([]llmr.Outcome{
		{Group: "A", Seq: 1, Status: llmr.StatusSuccess, Duration: time.Second, Label: "us-east-1"},
		{Group: "A", Seq: 2, Status: llmr.StatusRateLimited, Duration: time.Second},
		{Group: "B", Seq: 3, Status: llmr.StatusSuccess, Duration: 3 * time.Second, Label: "us-west-2"},
		{Group: "B", Seq: 4, Status: llmr.StatusFailed, Duration: time.Second},
	})
}

func TestWriteGroups_TotalRow(t *testing.T) {
	var buf bytes.Buffer
	r := sampleReport()
	require.NoError(t, WriteGroups(&buf, "Per account", r, []string{"A", "B"}, strings.ToLower, true))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[3], "a "))
	assert.True(t, strings.HasPrefix(lines[5], TotalRow))
	assert.Contains(t, lines[5], "50.0%")
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, "Summary", sampleReport(), 5*time.Second))
	out := buf.String()
	assert.Contains(t, out, "Total requests:")
	assert.Contains(t, out, "2 (50.0%)")
	assert.Contains(t, out, "avg 2.00s")
	assert.Contains(t, out, "5.00s")
}

func TestWriteDistribution(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDistribution(&buf, "Regions", "Region", nil))
	assert.Contains(t, buf.String(), "No attributed calls.")

	buf.Reset()
	shares := llmr.DistributionShares(map[string]int{"us-east-1": 3, "us-west-2": 1})
	require.NoError(t, WriteDistribution(&buf, "Regions", "Region", shares))
	assert.Contains(t, buf.String(), "75.0%")
}

func TestWriteGateway(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGateway(&buf, "alias", "simple-shuffle", []llmr.DeploymentRow{
		{Model: "m1", RPM: 2, Role: llmr.RolePrimary},
		{Model: "m2", Role: llmr.RoleFallback},
	}))
	out := buf.String()
	assert.Contains(t, out, "Routing strategy: simple-shuffle")
	assert.Contains(t, out, "Primary")
	assert.Contains(t, out, "Fallback")

	buf.Reset()
	require.NoError(t, WriteGateway(&buf, "alias", "", nil))
	assert.NotContains(t, buf.String(), "Routing strategy")
}

func TestWriteTotals(t *testing.T) {
	tot := llmr.NewTotals("quota")
	tot.Add(llmr.RunRecord{
		Overall: llmr.Counts{Success: 9, RateLimited: 1},
		Groups:  map[string]llmr.Counts{"B": {Success: 5}},
		Flags:   map[string]bool{"isolation_effective": true},
	})
	var buf bytes.Buffer
	require.NoError(t, WriteTotals(&buf, tot, "isolation_effective"))
	out := buf.String()
	assert.Contains(t, out, "(1 runs)")
	assert.Contains(t, out, "1/1 runs (100.0%)")
}

func TestConsole_OutcomeLines(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)
	c.now = func() time.Time { return time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC) }
	c.GroupName = func(g string) string { return "acct-" + g }

	c.OnOutcome(llmr.OutcomeEvent{Outcome: llmr.Outcome{Group: llmr.DefaultGroup, Seq: 1, Status: llmr.StatusSuccess, Duration: time.Second, Label: "m1"}})
	c.OnOutcome(llmr.OutcomeEvent{Outcome: llmr.Outcome{Group: "1", Seq: 2, Status: llmr.StatusRateLimited}})
	c.OnOutcome(llmr.OutcomeEvent{Outcome: llmr.Outcome{Group: "1", Seq: 3, Status: llmr.StatusFailed, Err: errors.New("boom")}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[09:30:00.000] Request 1 completed in 1.00s (served by m1)", lines[0])
	assert.Equal(t, "[09:30:00.000] Request 2 [acct-1] rate limited after 0.00s", lines[1])
	assert.Contains(t, lines[2], "boom")
}

func TestEntry_AllFatal(t *testing.T) {
	fatal := &llmr.DispatchError{Err: llmr.ErrAuthFailed}
	outcomes := []llmr.Outcome{
		{Seq: 1, Status: llmr.StatusFailed, Err: fatal},
		{Seq: 2, Status: llmr.StatusFailed, Err: fatal},
	}
	b := llmr.Batch{Outcomes: outcomes}
	e := NewEntry("cris", b, b.Report())
	assert.Equal(t, 2, e.Fatal)
	assert.True(t, e.AllFatal())

	b.Outcomes = append(b.Outcomes, llmr.Outcome{Seq: 3, Status: llmr.StatusRateLimited, Err: llmr.ErrRateLimited})
	e = NewEntry("cris", b, b.Report())
	assert.False(t, e.AllFatal())

	assert.False(t, Entry{}.AllFatal())
}

func TestBoard(t *testing.T) {
	b := NewBoard()
	var wg sync.WaitGroup
	for _, s := range []string{"quota", "cris", "fallback"} {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(Entry{Scenario: s})
		}()
	}
	wg.Wait()

	all := b.All()
	require.Len(t, all, 3)
	assert.Equal(t, "cris", all[0].Scenario)

	_, ok := b.Latest("quota")
	assert.True(t, ok)
	_, ok = b.Latest("nope")
	assert.False(t, ok)
}
