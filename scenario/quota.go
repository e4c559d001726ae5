package scenario

import (
	"context"
	"fmt"

	llmr "github.com/aws-samples/llmresilience"
	"github.com/aws-samples/llmresilience/report"
)

// IsolationThreshold is the success percentage every normal consumer must
// reach for isolation to count as effective.
const IsolationThreshold = 80.0

// Quota runs every consumer concurrently against the gateway, each with its
// own key and rate-limited model, to show that a noisy consumer exhausting
// its quota leaves the others unaffected.
type Quota struct {
	Env     Env
	Backend llmr.Backend
}

func (s *Quota) Name() string { return NameQuota }

// Isolation is the verdict of one quota isolation run.
type Isolation struct {
	// Effective is set when every normal consumer reached IsolationThreshold.
	Effective bool
	// NoisyRateLimited is set when a noisy consumer hit its own quota.
	NoisyRateLimited bool
}

// JudgeIsolation evaluates a report grouped by consumer id. Without any
// normal consumer there is nothing to protect and isolation is not effective.
func JudgeIsolation(consumers []llmr.ConsumerConfig, rep llmr.Report) Isolation {
	var v Isolation
	normals := 0
	v.Effective = true
	for _, c := range consumers {
		s := rep.Groups[c.ID]
		if c.Noisy() {
			if s.RateLimited > 0 {
				v.NoisyRateLimited = true
			}
			continue
		}
		if c.Requests == 0 {
			continue
		}
		normals++
		if s.SuccessPct < IsolationThreshold {
			v.Effective = false
		}
	}
	if normals == 0 {
		v.Effective = false
	}
	return v
}

func (s *Quota) Run(ctx context.Context) (report.Entry, error) {
	env := s.Env.withDefaults()
	cfg := env.Config

	groups := make([]llmr.TargetGroup, 0, len(cfg.Consumers))
	ids := make([]string, 0, len(cfg.Consumers))
	byID := make(map[string]llmr.ConsumerConfig, len(cfg.Consumers))
	total := 0
	for _, c := range cfg.Consumers {
		tmpl := env.template(c.Model)
		tmpl.APIKey = c.APIKey
		groups = append(groups, llmr.TargetGroup{
			Name:     c.ID,
			Requests: c.Requests,
			Template: tmpl,
			Prompts:  quotaPrompts,
		})
		ids = append(ids, c.ID)
		byID[c.ID] = c
		total += c.Requests

		rpm := "-"
		if d, ok := cfg.Deployment(c.Model); ok && d.RPM > 0 {
			rpm = fmt.Sprint(d.RPM)
		}
		env.Console.Info("Consumer %s (%s): %d requests to %s, limit %s RPM", c.ID, c.Type, c.Requests, c.Model, rpm)
	}
	if err := cfg.ValidateRequests(total); err != nil {
		return report.Entry{}, err
	}

	display := func(id string) string { return fmt.Sprintf("Consumer %s (%s)", id, byID[id].Type) }
	env.Console.GroupName = display

	health := llmr.NewHealthTracker()
	batch, err := env.dispatcher(health).DispatchGroups(ctx, groups, llmr.CallBackend(s.Backend, llmr.LabelByModel))
	if err != nil {
		return report.Entry{}, err
	}
	if err := interrupted(ctx); err != nil {
		return report.Entry{}, err
	}

	rep := env.aggregate(batch.Outcomes)
	env.reportHealth(health, display)
	if err := report.WriteGroups(env.out(), "Per-consumer results", rep, ids, display, true); err != nil {
		return report.Entry{}, err
	}

	v := JudgeIsolation(cfg.Consumers, rep)
	if v.NoisyRateLimited {
		env.Console.Warn("Noisy consumer was rate limited by its own quota")
	}
	if v.Effective {
		env.Console.Success("Isolation effective: every normal consumer reached %.0f%% success", IsolationThreshold)
	} else {
		env.Console.Error("Isolation not effective: a normal consumer fell below %.0f%% success", IsolationThreshold)
	}

	entry := report.NewEntry(NameQuota, batch, rep)
	entry.Flags = map[string]bool{
		FlagIsolationEffective: v.Effective,
		FlagNoisyRateLimited:   v.NoisyRateLimited,
	}
	return entry, env.publish(ctx, entry, batch)
}
