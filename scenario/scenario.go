// Package scenario implements the resilience demonstrations: cross-region
// inference, account sharding, gateway fallback, gateway load balancing and
// per-consumer quota isolation.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	llmr "github.com/aws-samples/llmresilience"
	"github.com/aws-samples/llmresilience/history"
	"github.com/aws-samples/llmresilience/report"
)

// Scenario names, also used as history and report keys.
const (
	NameCRIS        = "cris"
	NameSharding    = "sharding"
	NameFallback    = "fallback"
	NameLoadBalance = "loadbalance"
	NameQuota       = "quota"
)

// Verdict flags recorded with each run.
const (
	FlagAttributed         = "attributed"
	FlagAccountsDistinct   = "accounts_distinct"
	FlagFallbackUsed       = "fallback_used"
	FlagBalanced           = "balanced"
	FlagIsolationEffective = "isolation_effective"
	FlagNoisyRateLimited   = "noisy_rate_limited"
)

// ErrInterrupted is returned by a run cut short by its context. Interrupted
// runs are neither published nor recorded.
var ErrInterrupted = errors.New("llmresilience: run interrupted")

// interrupted returns ErrInterrupted once ctx is done.
func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	return nil
}

// Runner runs one iteration of a scenario.
type Runner interface {
	Name() string
	Run(ctx context.Context) (report.Entry, error)
}

// Env is what every scenario shares.
type Env struct {
	Config  llmr.Config
	Console *report.Console
	Meters  []llmr.Meter
	History llmr.RunStore
	Board   *report.Board
	Logger  *zap.SugaredLogger
}

// withDefaults fills unset collaborators so scenarios can run headless.
func (e Env) withDefaults() Env {
	if e.Config.Dispatch.MaxRequests == 0 {
		e.Config.ApplyDefaults()
	}
	if e.Console == nil {
		e.Console = report.NewConsole(io.Discard, true)
	}
	if e.History == nil {
		e.History = history.NewMemoryStore()
	}
	if e.Board == nil {
		e.Board = report.NewBoard()
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop().Sugar()
	}
	return e
}

func (e Env) out() io.Writer { return e.Console.Writer() }

// dispatcher observes the run with the console, the shared meters and any
// run-local extra meters.
func (e Env) dispatcher(extra ...llmr.Meter) *llmr.Dispatcher {
	meters := llmr.MultiMeter{e.Console}
	meters = append(meters, e.Meters...)
	meters = append(meters, extra...)
	return llmr.NewDispatcher(
		llmr.WithTimeout(e.Config.Dispatch.Timeout),
		llmr.WithMeter(meters),
	)
}

// reportHealth warns about every group the tracker saw throttled.
func (e Env) reportHealth(h *llmr.HealthTracker, display func(string) string) {
	for _, g := range h.Throttled() {
		e.Console.Warn("%s is throttled: repeated rate limiting during the run", display(g))
	}
}

func (e Env) aggregate(outcomes []llmr.Outcome) llmr.Report {
	return llmr.Aggregate(outcomes, llmr.WithLatencyPolicy(e.Config.Dispatch.LatencyPolicy))
}

func (e Env) template(model string) llmr.RequestDescriptor {
	return llmr.RequestDescriptor{Model: model, MaxTokens: e.Config.Dispatch.MaxTokens}
}

// publish puts the entry on the board and records the run.
func (e Env) publish(ctx context.Context, entry report.Entry, b llmr.Batch) error {
	if err := interrupted(ctx); err != nil {
		return err
	}
	e.Board.Publish(entry)

	rec := llmr.NewRunRecord(entry.Scenario, b, entry.Report, entry.Flags)
	if len(rec.Labels) == 0 {
		for _, s := range entry.Distribution {
			rec.Labels[s.Label] = s.Count
		}
	}
	if err := e.History.Record(ctx, rec); err != nil {
		e.Logger.Warnw("failed to record run", "scenario", entry.Scenario, "run", rec.RunID, "error", err)
		return err
	}
	return nil
}

// logAttempt reports attribution progress on the console.
func (e Env) logAttempt(scope string) llmr.AttemptFunc {
	return func(attempt, found, expected int, err error) {
		switch {
		case err != nil:
			e.Console.Warn("%sattribution attempt %d failed: %v", scope, attempt, err)
		case found >= expected:
			e.Console.Success("%sattribution attempt %d: found %d/%d invocations", scope, attempt, found, expected)
		default:
			e.Console.Info("%sattribution attempt %d: found %d/%d invocations, retrying", scope, attempt, found, expected)
		}
	}
}
