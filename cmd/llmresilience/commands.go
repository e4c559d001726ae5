package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	llmr "github.com/aws-samples/llmresilience"
	"github.com/aws-samples/llmresilience/attribution/cloudwatch"
	"github.com/aws-samples/llmresilience/backend/bedrock"
	"github.com/aws-samples/llmresilience/backend/openaicompat"
	"github.com/aws-samples/llmresilience/scenario"
)

func runCRIS(c *cli.Context) error {
	ctx, rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	sess, err := bedrock.NewSession(ctx, cfg.AWS.ProfileName, cfg.AWS.RegionName)
	if err != nil {
		return err
	}
	s := &scenario.CRIS{
		Env:      rt.env,
		Backend:  sess.Backend(bedrock.WithMaxTokens(cfg.Dispatch.MaxTokens)),
		Requests: c.Int("requests"),
	}
	if !c.Bool("no-attribution") {
		s.Resolver = cloudwatch.New(cloudwatchlogs.NewFromConfig(sess.Config), cfg.AWS.LogGroupName)
	}
	return rt.execute(ctx, c, s)
}

func runSharding(c *cli.Context) error {
	ctx, rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	strategy := llmr.Strategy(c.String("strategy"))
	if strategy == "" {
		strategy = cfg.Sharding.Strategy
	}
	if !strategy.Valid() {
		return errors.Errorf("unknown sharding strategy %q", strategy)
	}

	profiles := []struct{ name, profile string }{
		{"ACCOUNT1", cfg.AWS.ProfileName},
		{"ACCOUNT2", cfg.AWS.SecondaryProfileName},
	}
	accounts := make([]scenario.Account, 0, len(profiles))
	for _, p := range profiles {
		acct, err := openAccount(ctx, p.name, p.profile, cfg, !c.Bool("no-attribution"))
		if err != nil {
			return err
		}
		accounts = append(accounts, acct)
	}

	s := &scenario.Sharding{
		Env:      rt.env,
		Accounts: accounts,
		Strategy: strategy,
		Requests: c.Int("requests"),
	}
	return rt.execute(ctx, c, s)
}

func openAccount(ctx context.Context, name, profile string, cfg llmr.Config, attribute bool) (scenario.Account, error) {
	sess, err := bedrock.NewSession(ctx, profile, cfg.AWS.RegionName)
	if err != nil {
		return scenario.Account{}, err
	}
	id, err := bedrock.CallerAccount(ctx, sess.Identity)
	if err != nil {
		return scenario.Account{}, errors.Wrapf(err, "verify credentials of profile %s", profile)
	}
	acct := scenario.Account{
		Name:      name,
		Profile:   profile,
		AccountID: id,
		Backend:   sess.Backend(bedrock.WithName(name), bedrock.WithMaxTokens(cfg.Dispatch.MaxTokens)),
	}
	if attribute {
		acct.Resolver = cloudwatch.New(cloudwatchlogs.NewFromConfig(sess.Config), cfg.AWS.LogGroupName)
	}
	return acct, nil
}

func gateway(cfg llmr.Config) llmr.Backend {
	return openaicompat.NewLiteLLM(cfg.Gateway.BaseURL(), openaicompat.WithAPIKey(cfg.Gateway.APIKey))
}

func runFallback(c *cli.Context) error {
	ctx, rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.close()
	return rt.execute(ctx, c, &scenario.Fallback{Env: rt.env, Backend: gateway(rt.cfg), Requests: c.Int("requests")})
}

func runLoadBalance(c *cli.Context) error {
	ctx, rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.close()
	return rt.execute(ctx, c, &scenario.LoadBalance{Env: rt.env, Backend: gateway(rt.cfg), Requests: c.Int("requests")})
}

func runQuota(c *cli.Context) error {
	ctx, rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.close()
	return rt.execute(ctx, c, &scenario.Quota{Env: rt.env, Backend: gateway(rt.cfg)})
}

func runServe(c *cli.Context) error {
	ctx, rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.close()
	if rt.addr == "" {
		return errors.New("serve needs --serve ADDR or report.addr in the config")
	}
	rt.env.Console.Info("Reports served on %s, press Ctrl+C to exit", rt.addr)
	<-ctx.Done()
	return nil
}
