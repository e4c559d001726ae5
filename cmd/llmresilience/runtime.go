package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	llmr "github.com/aws-samples/llmresilience"
	"github.com/aws-samples/llmresilience/history"
	"github.com/aws-samples/llmresilience/meter"
	"github.com/aws-samples/llmresilience/report"
	"github.com/aws-samples/llmresilience/report/server"
	"github.com/aws-samples/llmresilience/scenario"
)

// runtime holds everything a command needs.
type runtime struct {
	cfg    llmr.Config
	logger *zap.SugaredLogger
	env    scenario.Env
	addr   string

	closers []func()
}

func newLogger(mode string) (*zap.Logger, error) {
	switch mode {
	case "dev":
		return zap.NewDevelopment()
	case "prod":
		return zap.NewProduction()
	}
	return nil, fmt.Errorf("invalid log mode: %s", mode)
}

// setup loads config, builds the shared collaborators and starts the report
// server when requested. The returned context is cancelled on SIGINT/SIGTERM.
func setup(c *cli.Context) (context.Context, *runtime, error) {
	path := c.GlobalString("config")
	if _, err := os.Stat(path); err != nil {
		if c.GlobalIsSet("config") {
			return nil, nil, errors.Wrapf(err, "config file %s", path)
		}
		path = ""
	}
	cfg, err := llmr.Load(path, c.GlobalString("env-file"))
	if err != nil {
		return nil, nil, err
	}

	zl, err := newLogger(cfg.Log.Mode)
	if err != nil {
		return nil, nil, err
	}
	logger := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	// A second signal gets the default behaviour and exits immediately.
	context.AfterFunc(ctx, stop)
	rt := &runtime{cfg: cfg, logger: logger}
	rt.closers = append(rt.closers, func() { _ = zl.Sync() }, stop)

	store, closeStore, err := history.Open(ctx, cfg.History)
	if err != nil {
		rt.close()
		return nil, nil, err
	}
	rt.closers = append(rt.closers, closeStore)

	reg := prometheus.NewRegistry()
	meters := []llmr.Meter{meter.NewPromMeter(reg)}
	if c.GlobalBool("verbose") {
		meters = append(meters, meter.NewLogMeter(logger))
	}

	board := report.NewBoard()
	rt.env = scenario.Env{
		Config:  cfg,
		Console: report.NewConsole(os.Stdout, c.GlobalBool("no-color")),
		Meters:  meters,
		History: store,
		Board:   board,
		Logger:  logger,
	}

	rt.addr = c.GlobalString("serve")
	if rt.addr == "" {
		rt.addr = cfg.Report.Addr
	}
	if rt.addr != "" {
		srv := server.New(board, store, reg, logger)
		go func() {
			if err := srv.ListenAndServe(ctx, rt.addr); err != nil {
				logger.Errorf("report server: %+v", err)
			}
		}()
	}
	return ctx, rt, nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// execute runs r once or in loop mode, then keeps the report server up
// until interrupted.
func (rt *runtime) execute(ctx context.Context, c *cli.Context, r scenario.Runner) error {
	if c.Bool("loop") {
		interval := time.Duration(c.Int("interval")) * time.Second
		if err := scenario.ValidateInterval(interval); err != nil {
			return err
		}
		if _, err := scenario.Loop(ctx, rt.env, r, scenario.LoopOptions{
			Interval: interval,
			Flags:    scenario.FlagsFor(r.Name()),
		}); err != nil {
			return err
		}
	} else if _, err := r.Run(ctx); err != nil {
		if !errors.Is(err, scenario.ErrInterrupted) {
			return err
		}
		rt.env.Console.Warn("Run interrupted, results discarded")
	}

	if rt.addr != "" && ctx.Err() == nil {
		rt.env.Console.Info("Reports served on %s, press Ctrl+C to exit", rt.addr)
		<-ctx.Done()
	}
	return nil
}
