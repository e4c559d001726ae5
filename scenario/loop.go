package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws-samples/llmresilience/report"
)

// ErrFatalRun stops a loop whose every call failed for a reason repeating
// cannot fix, such as rejected credentials or an unknown model.
var ErrFatalRun = errors.New("llmresilience: every call failed with a fatal error")

// MinInterval is the shortest pause allowed between loop iterations.
const MinInterval = 5 * time.Second

// ValidateInterval checks a loop interval given on the command line.
func ValidateInterval(d time.Duration) error {
	if d < MinInterval {
		return fmt.Errorf("llmresilience: minimum interval is %s, got %s", MinInterval, d)
	}
	return nil
}

// LoopOptions configures Loop.
type LoopOptions struct {
	Interval time.Duration
	MaxRuns  int // 0 = until ctx is done

	// Flags are printed as "<flag>: n/runs" in the cumulative table.
	Flags []string
}

// Loop runs r repeatedly until ctx is done, printing cumulative statistics
// from the history store after every iteration. Cancelling ctx lets the
// current iteration finish and stops before the next one. A failed iteration
// is reported and the loop carries on, unless every call of the run failed
// with a fatal error.
func Loop(ctx context.Context, env Env, r Runner, opts LoopOptions) (int, error) {
	env = env.withDefaults()
	runCtx := context.WithoutCancel(ctx)
	runs := 0
	for {
		runs++
		n := runs
		env.Console.Info("Run #%d of %s", n, r.Name())
		stopNotice := context.AfterFunc(ctx, func() {
			env.Console.Warn("Interrupted: finishing run #%d before stopping", n)
		})
		entry, err := r.Run(runCtx)
		stopNotice()
		if err != nil {
			env.Console.Error("Run #%d failed: %v", runs, err)
		}

		totals, terr := env.History.Totals(runCtx, r.Name())
		if terr != nil {
			env.Logger.Warnw("failed to load history", "scenario", r.Name(), "error", terr)
		} else if werr := report.WriteTotals(env.out(), totals, opts.Flags...); werr != nil {
			return runs, werr
		}

		if err == nil && entry.AllFatal() {
			return runs, fmt.Errorf("%w: run #%d", ErrFatalRun, runs)
		}
		if opts.MaxRuns > 0 && runs >= opts.MaxRuns {
			return runs, nil
		}
		if ctx.Err() != nil {
			env.Console.Info("Stopped after %d runs", runs)
			return runs, nil
		}

		env.Console.Info("Waiting %s until next run (Ctrl+C to stop)", opts.Interval)
		t := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			env.Console.Info("Stopped after %d runs", runs)
			return runs, nil
		case <-t.C:
		}
	}
}

// FlagsFor returns the verdict flags worth accumulating for a scenario.
func FlagsFor(name string) []string {
	switch name {
	case NameCRIS:
		return []string{FlagAttributed}
	case NameSharding:
		return []string{FlagAttributed}
	case NameFallback:
		return []string{FlagFallbackUsed}
	case NameLoadBalance:
		return []string{FlagBalanced}
	case NameQuota:
		return []string{FlagIsolationEffective, FlagNoisyRateLimited}
	}
	return nil
}
