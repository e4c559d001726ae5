package scenario

import (
	"context"
	"time"

	llmr "github.com/aws-samples/llmresilience"
	"github.com/aws-samples/llmresilience/report"
)

// DefaultGatewayRequests is the burst size of the gateway scenarios.
const DefaultGatewayRequests = 10

// Fallback sends a burst to an alias whose primary deployments are quota
// limited and reports which calls the gateway moved to fallback models.
type Fallback struct {
	Env      Env
	Backend  llmr.Backend
	Requests int
}

func (s *Fallback) Name() string { return NameFallback }

// FallbackEvent is a successful call served by a fallback deployment.
type FallbackEvent struct {
	Seq      int
	Model    string
	Duration time.Duration
}

// FallbackEvents lists successful outcomes served by one of alias's
// fallback deployments, in submission order.
func FallbackEvents(cfg llmr.Config, alias string, b llmr.Batch) []FallbackEvent {
	var events []FallbackEvent
	for _, o := range b.BySeq() {
		if o.Status == llmr.StatusSuccess && cfg.RoleOf(alias, o.Label) == llmr.RoleFallback {
			events = append(events, FallbackEvent{Seq: o.Seq, Model: o.Label, Duration: o.Duration})
		}
	}
	return events
}

func (s *Fallback) Run(ctx context.Context) (report.Entry, error) {
	env := s.Env.withDefaults()
	alias := env.Config.Gateway.FallbackAlias

	batch, rep, err := runGateway(ctx, env, alias, requestsOr(s.Requests), fallbackPrompts, s.Backend)
	if err != nil {
		return report.Entry{}, err
	}

	events := FallbackEvents(env.Config, alias, batch)
	for _, e := range events {
		env.Console.Warn("Request %d failed over to %s (%s)", e.Seq, e.Model, report.Seconds(e.Duration))
	}
	primary := rep.Overall.Success - len(events)
	env.Console.Info("Primary model used: %d, fallback triggered: %d", primary, len(events))
	if len(events) > 0 {
		env.Console.Success("Fallback working: %d requests failed over", len(events))
	}

	entry := report.NewEntry(NameFallback, batch, rep)
	entry.Distribution = rep.Overall.Labels
	entry.Flags = map[string]bool{FlagFallbackUsed: len(events) > 0}
	return entry, env.publish(ctx, entry, batch)
}

// LoadBalance sends a burst to an alias backed by several deployments and
// reports how the gateway spread it.
type LoadBalance struct {
	Env      Env
	Backend  llmr.Backend
	Requests int
}

func (s *LoadBalance) Name() string { return NameLoadBalance }

func (s *LoadBalance) Run(ctx context.Context) (report.Entry, error) {
	env := s.Env.withDefaults()
	alias := env.Config.Gateway.LoadBalanceAlias

	batch, rep, err := runGateway(ctx, env, alias, requestsOr(s.Requests), loadBalancePrompts, s.Backend)
	if err != nil {
		return report.Entry{}, err
	}

	balanced := len(rep.Overall.Labels) > 1
	if balanced {
		env.Console.Success("Load spread over %d deployments", len(rep.Overall.Labels))
	} else {
		env.Console.Warn("All successful calls were served by a single deployment")
	}

	entry := report.NewEntry(NameLoadBalance, batch, rep)
	entry.Distribution = rep.Overall.Labels
	entry.Flags = map[string]bool{FlagBalanced: balanced}
	return entry, env.publish(ctx, entry, batch)
}

func requestsOr(n int) int {
	if n == 0 {
		return DefaultGatewayRequests
	}
	return n
}

// runGateway prints the alias's deployments, dispatches the burst labelled
// by served model and prints the results.
func runGateway(ctx context.Context, env Env, alias string, n int, prompts []string, b llmr.Backend) (llmr.Batch, llmr.Report, error) {
	if err := env.Config.ValidateRequests(n); err != nil {
		return llmr.Batch{}, llmr.Report{}, err
	}
	if err := report.WriteGateway(env.out(), alias, env.Config.RouterSettings.RoutingStrategy, env.Config.GatewayTable(alias)); err != nil {
		return llmr.Batch{}, llmr.Report{}, err
	}

	env.Console.Info("Sending %d concurrent requests to %s", n, alias)
	batch, err := env.dispatcher().DispatchN(ctx, n, env.template(alias), prompts, llmr.CallBackend(b, llmr.LabelByModel))
	if err != nil {
		return llmr.Batch{}, llmr.Report{}, err
	}
	if err := interrupted(ctx); err != nil {
		return llmr.Batch{}, llmr.Report{}, err
	}

	rep := env.aggregate(batch.Outcomes)
	if err := report.WriteSummary(env.out(), "Results: "+alias, rep, batch.Elapsed()); err != nil {
		return llmr.Batch{}, llmr.Report{}, err
	}
	if err := report.WriteDistribution(env.out(), "Model usage", "Model", rep.Overall.Labels); err != nil {
		return llmr.Batch{}, llmr.Report{}, err
	}
	return batch, rep, nil
}
