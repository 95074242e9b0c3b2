package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"periodetl/internal/config"
	"periodetl/internal/dbclient"
	"periodetl/internal/domain"
	"periodetl/internal/etl"
	_ "periodetl/internal/etl/sources"
	"periodetl/internal/logger"
	"periodetl/internal/metrics"
	"periodetl/internal/scaffold"
	"periodetl/internal/service"
	"periodetl/internal/storage"
)

const usage = `periodetl: transform period-stamped datasets and load them into a consolidated store.

Usage:
  periodetl <command> [flags]

Commands:
  init       create conf/, output/ and starter files in the project directory
  transform  transform every manifest entry into output/<family>/
  load       load the transformed artifacts into the consolidated store
  run        transform then load, recording the run
  watch      run on every conf/ change and on the configured schedule
  logs       show recent runs
  sources    list the source types a manifest can use

Run "periodetl <command> --help" for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stdout, usage)
		return 0
	}
	cmd, args := args[0], args[1:]

	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.StringP("dir", "C", ".", "project directory")
	if cmd != "init" && cmd != "sources" {
		fs.StringP("family", "f", "", "dataset family name")
		fs.String("vault", "", "directory source paths resolve against")
		fs.String("store", "", "consolidated store driver (sqlite, postgres, mysql, mongodb, csv)")
		fs.String("store-host", "", "store file, directory or host")
		fs.String("log-level", "", "log level (trace, debug, info, warn, error)")
		fs.Bool("pretty", false, "human-readable console logs")
	}
	switch cmd {
	case "transform", "run", "watch":
		fs.Bool("fail-fast", false, "abort a dataset on its first bad row")
		fs.Bool("skip-loaded", false, "skip periods already in the store")
	}
	if cmd == "watch" {
		fs.String("schedule", "", "cron expression for scheduled runs")
		fs.String("metrics-addr", "", "address serving /metrics")
	}
	limit := 10
	if cmd == "logs" {
		fs.IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	switch cmd {
	case "init":
		if _, err := scaffold.Init(*dir, stdout); err != nil {
			fmt.Fprintf(stderr, "init: %v\n", err)
			return 1
		}
		return 0
	case "sources":
		for _, spec := range etl.ListSources() {
			fmt.Fprintf(stdout, "%-10s %s (%s)\n", spec.Type, spec.Label, strings.Join(spec.Extensions, ", "))
		}
		return 0
	}

	cfg, err := config.Load(*dir, fs)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	log := logger.Init(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Output: stderr})

	if err := dispatch(ctx, cmd, cfg, log, stdout, limit); err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("command failed")
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, cmd string, cfg *config.Config, log zerolog.Logger, stdout io.Writer, limit int) error {
	switch cmd {
	case "transform", "load", "run", "watch", "logs":
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	state, err := storage.New(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer state.Close()

	store, err := dbclient.Open(ctx, cfg.Store, logger.Component(log, "store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	svc := service.NewPipelineService(cfg, store, logger.Component(log, "pipeline"),
		service.WithRunLogs(storage.NewRunLogStore(state)),
		service.WithMetrics(metrics.New()),
	)

	switch cmd {
	case "transform":
		summary, err := svc.Transform(ctx)
		if err != nil {
			return err
		}
		for _, p := range summary.Artifacts {
			fmt.Fprintln(stdout, p)
		}
	case "load":
		res, err := svc.Load(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, res)
	case "run":
		res, err := svc.Run(ctx, domain.TriggerManual)
		if err != nil {
			return err
		}
		return printJSON(stdout, res.RunLog)
	case "watch":
		if _, err := svc.Run(ctx, domain.TriggerManual); err != nil {
			log.Error().Err(err).Msg("initial run failed")
		}
		return svc.Watch(ctx)
	case "logs":
		logs, err := svc.ListRunLogs(limit)
		if err != nil {
			return err
		}
		return printJSON(stdout, logs)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
