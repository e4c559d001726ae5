package main

import (
	"log"
	"os"

	"github.com/urfave/cli"
)

var (
	// populated at compile time through -ldflags
	version = "unset"
)

func main() {
	app := cli.NewApp()
	app.Name = "llmresilience"
	app.Usage = "demonstrate LLM inference resilience patterns on Amazon Bedrock and LiteLLM"
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Value: "config.yaml", Usage: "YAML config file"},
		cli.StringFlag{Name: "env-file", Value: ".env", Usage: "optional file with LLMR_* overrides"},
		cli.StringFlag{Name: "serve", Usage: "serve reports on this address, e.g. :8080"},
		cli.BoolFlag{Name: "no-color", Usage: "disable coloured output"},
		cli.BoolFlag{Name: "verbose", Usage: "log every dispatched call"},
	}

	loopFlags := []cli.Flag{
		cli.BoolFlag{Name: "loop", Usage: "repeat until interrupted, printing cumulative statistics"},
		cli.IntFlag{Name: "interval", Value: 30, Usage: "seconds between loop iterations (minimum 5)"},
	}
	requestsFlag := func(n int) cli.Flag {
		return cli.IntFlag{Name: "requests, n", Value: n, Usage: "number of concurrent requests"}
	}
	noAttribution := cli.BoolFlag{Name: "no-attribution", Usage: "skip the CloudWatch region lookup"}

	app.Commands = []cli.Command{
		{
			Name:   "cris",
			Usage:  "burst a cross-region inference profile and show which regions served it",
			Flags:  append([]cli.Flag{requestsFlag(20), noAttribution}, loopFlags...),
			Action: runCRIS,
		},
		{
			Name:  "sharding",
			Usage: "spread a burst across two AWS accounts",
			Flags: append([]cli.Flag{
				requestsFlag(20),
				noAttribution,
				cli.StringFlag{Name: "strategy, s", Usage: "round-robin, split, random or hash (default from config)"},
			}, loopFlags...),
			Action: runSharding,
		},
		{
			Name:   "fallback",
			Usage:  "show gateway fallback from a quota-limited model",
			Flags:  append([]cli.Flag{requestsFlag(10)}, loopFlags...),
			Action: runFallback,
		},
		{
			Name:   "loadbalance",
			Usage:  "show gateway load balancing across deployments",
			Flags:  append([]cli.Flag{requestsFlag(10)}, loopFlags...),
			Action: runLoadBalance,
		},
		{
			Name:   "quota",
			Usage:  "show per-consumer quota isolation against a noisy neighbour",
			Flags:  loopFlags,
			Action: runQuota,
		},
		{
			Name:   "serve",
			Usage:  "serve recorded history and metrics only",
			Action: runServe,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
