package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	llmr "github.com/aws-samples/llmresilience"
	"github.com/aws-samples/llmresilience/backend/bedrock"
	"github.com/aws-samples/llmresilience/report"
)

// ErrSameAccount is returned when the sharding targets resolve to one account.
var ErrSameAccount = errors.New("llmresilience: sharding profiles point at the same account")

// Account is one sharding target: a credential context and its clients.
type Account struct {
	Name      string // e.g. "ACCOUNT1"
	Profile   string
	AccountID string
	Backend   llmr.Backend
	Resolver  llmr.Resolver // nil skips attribution for this account
}

// Masked returns the name with the masked account id.
func (a Account) Masked() string {
	return fmt.Sprintf("%s (%s)", a.Name, bedrock.MaskAccount(a.AccountID))
}

// Sharding spreads a burst across accounts so each account's quota absorbs
// only its share.
type Sharding struct {
	Env      Env
	Accounts []Account
	Strategy llmr.Strategy
	Requests int
	Rand     *rand.Rand

	// Schedule overrides llmr.DefaultAttributionSchedule.
	Schedule []time.Duration
}

func (s *Sharding) Name() string { return NameSharding }

func (s *Sharding) validate() error {
	if len(s.Accounts) < 2 {
		return fmt.Errorf("%w: sharding needs at least two accounts", llmr.ErrInvalidGroup)
	}
	seen := make(map[string]string, len(s.Accounts))
	for _, a := range s.Accounts {
		if a.Backend == nil {
			return fmt.Errorf("%w: account %s has no backend", llmr.ErrInvalidGroup, a.Name)
		}
		if a.AccountID == "" {
			return fmt.Errorf("llmresilience: account %s (%s) could not be identified", a.Name, a.Profile)
		}
		if other, ok := seen[a.AccountID]; ok {
			return fmt.Errorf("%w: %s and %s are both %s", ErrSameAccount, other, a.Name, bedrock.MaskAccount(a.AccountID))
		}
		seen[a.AccountID] = a.Name
	}
	return nil
}

func (s *Sharding) Run(ctx context.Context) (report.Entry, error) {
	env := s.Env.withDefaults()
	cfg := env.Config
	if err := cfg.ValidateRequests(s.Requests); err != nil {
		return report.Entry{}, err
	}
	if err := s.validate(); err != nil {
		return report.Entry{}, err
	}
	strategy := s.Strategy
	if strategy == "" {
		strategy = cfg.Sharding.Strategy
	}

	names := make([]string, len(s.Accounts))
	backends := make(llmr.BackendSet, len(s.Accounts))
	byName := make(map[string]Account, len(s.Accounts))
	for i, a := range s.Accounts {
		names[i] = a.Name
		backends[a.Name] = a.Backend
		byName[a.Name] = a
		env.Console.Info("%s uses profile %s", a.Masked(), a.Profile)
	}

	var opts []llmr.ShardOption
	if s.Rand != nil {
		opts = append(opts, llmr.WithRand(s.Rand))
	}
	reqs, err := llmr.Shard(llmr.NewRequests(s.Requests, env.template(cfg.CRIS.ModelID), shardingPrompts), names, strategy, opts...)
	if err != nil {
		return report.Entry{}, err
	}

	env.Console.Info("Sending %d requests across %d accounts (%s)", len(reqs), len(names), strategy)
	display := func(g string) string { return byName[g].Masked() }
	env.Console.GroupName = display

	health := llmr.NewHealthTracker()
	batch, err := env.dispatcher(health).Dispatch(ctx, reqs, backends.Call(nil))
	if err != nil {
		return report.Entry{}, err
	}
	if err := interrupted(ctx); err != nil {
		return report.Entry{}, err
	}

	rep := env.aggregate(batch.Outcomes)
	env.reportHealth(health, display)
	if err := report.WriteSummary(env.out(), "Account sharding results", rep, batch.Elapsed()); err != nil {
		return report.Entry{}, err
	}
	if err := report.WriteGroups(env.out(), "Per-account results", rep, names, display, true); err != nil {
		return report.Entry{}, err
	}

	entry := report.NewEntry(NameSharding, batch, rep)
	entry.Flags = map[string]bool{FlagAccountsDistinct: true, FlagAttributed: false}

	attrs, complete := s.attribute(ctx, env, batch, rep)
	if len(attrs) > 0 {
		var all []llmr.Attribution
		for _, name := range names {
			if err := report.WriteDistribution(env.out(), "Region distribution: "+display(name), "Region",
				llmr.DistributionShares(llmr.Distribution(attrs[name]))); err != nil {
				return report.Entry{}, err
			}
			all = append(all, attrs[name]...)
		}
		entry.Report = env.aggregate(llmr.Enrich(batch.Outcomes, all))
		entry.Distribution = llmr.DistributionShares(llmr.Distribution(all))
		entry.Flags[FlagAttributed] = complete
	}

	return entry, env.publish(ctx, entry, batch)
}

// attribute resolves every account concurrently. Accounts are separate log
// sources, so each is queried with its own resolver.
func (s *Sharding) attribute(ctx context.Context, env Env, batch llmr.Batch, rep llmr.Report) (map[string][]llmr.Attribution, bool) {
	schedule := s.Schedule
	if schedule == nil {
		schedule = llmr.DefaultAttributionSchedule
	}

	var (
		mu       sync.Mutex
		out      = make(map[string][]llmr.Attribution)
		complete = true
		g        errgroup.Group
	)
	for _, a := range s.Accounts {
		a := a
		expected := rep.Groups[a.Name].Success
		if a.Resolver == nil || expected == 0 {
			continue
		}
		g.Go(func() error {
			attrs, err := llmr.AwaitAttribution(ctx, a.Resolver, llmr.AttributionQuery{
				Start:   batch.StartedAt,
				End:     batch.FinishedAt,
				ModelID: env.Config.CRIS.ModelID,
			}, expected, schedule, env.logAttempt(a.Name+": "))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				env.Console.Warn("%s: region attribution unavailable: %v", a.Masked(), err)
				complete = false
				return nil
			}
			if len(attrs) < expected {
				complete = false
			}
			out[a.Name] = attrs
			return nil
		})
	}
	_ = g.Wait()
	return out, complete && len(out) > 0
}
