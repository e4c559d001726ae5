package scenario

import (
	"context"
	"time"

	llmr "github.com/aws-samples/llmresilience"
	"github.com/aws-samples/llmresilience/report"
)

// CRIS fires a burst at a cross-region inference profile and reports which
// regions served it.
type CRIS struct {
	Env      Env
	Backend  llmr.Backend
	Resolver llmr.Resolver // nil skips attribution
	Requests int

	// Schedule overrides llmr.DefaultAttributionSchedule.
	Schedule []time.Duration
}

func (s *CRIS) Name() string { return NameCRIS }

func (s *CRIS) Run(ctx context.Context) (report.Entry, error) {
	env := s.Env.withDefaults()
	cfg := env.Config
	if err := cfg.ValidateRequests(s.Requests); err != nil {
		return report.Entry{}, err
	}
	model := cfg.CRIS.ModelID

	env.Console.Info("Sending %d concurrent requests to %s", s.Requests, model)
	batch, err := env.dispatcher().DispatchN(ctx, s.Requests, env.template(model), crisPrompts, llmr.CallBackend(s.Backend, nil))
	if err != nil {
		return report.Entry{}, err
	}
	if err := interrupted(ctx); err != nil {
		return report.Entry{}, err
	}

	rep := env.aggregate(batch.Outcomes)
	if err := report.WriteSummary(env.out(), "CRIS results", rep, batch.Elapsed()); err != nil {
		return report.Entry{}, err
	}

	entry := report.NewEntry(NameCRIS, batch, rep)
	entry.Flags = map[string]bool{FlagAttributed: false}

	if s.Resolver != nil && rep.Overall.Success > 0 {
		schedule := s.Schedule
		if schedule == nil {
			schedule = llmr.DefaultAttributionSchedule
		}
		env.Console.Info("Waiting for invocation logs of %d successful calls", rep.Overall.Success)
		attrs, err := llmr.AwaitAttribution(ctx, s.Resolver, llmr.AttributionQuery{
			Start:   batch.StartedAt,
			End:     batch.FinishedAt,
			ModelID: model,
		}, rep.Overall.Success, schedule, env.logAttempt(""))
		if err != nil {
			env.Console.Warn("Region attribution unavailable: %v", err)
		} else {
			rep = env.aggregate(llmr.Enrich(batch.Outcomes, attrs))
			entry.Report = rep
			entry.Distribution = llmr.DistributionShares(llmr.Distribution(attrs))
			entry.Flags[FlagAttributed] = len(attrs) >= rep.Overall.Success
			if err := report.WriteDistribution(env.out(), "Region distribution", "Region", entry.Distribution); err != nil {
				return report.Entry{}, err
			}
		}
	}

	return entry, env.publish(ctx, entry, batch)
}
