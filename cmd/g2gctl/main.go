package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"goal2goal/internal/agent"
	"goal2goal/internal/config"
	"goal2goal/internal/env"
	"goal2goal/internal/harness"
	"goal2goal/internal/metrics"
	"goal2goal/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "train":
		return runTrain(ctx, args[1:])
	case "eval":
		return runEval(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "report":
		return runReport(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: g2gctl <train|eval|runs|report|export> [flags]", msg)
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "yaml run configuration")
	episodes := fs.Int("episodes", 0, "override episode budget")
	storeKind := fs.String("store", "", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "", "sqlite database path")
	runID := fs.String("run-id", "", "run identifier (default: new uuid)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *episodes > 0 {
		cfg.Rollout.NEpisodes = *episodes
	}
	if *storeKind != "" {
		cfg.Store.Kind = *storeKind
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	environment, ddpg, err := buildComponents(cfg)
	if err != nil {
		return err
	}

	id := *runID
	if id == "" {
		id = uuid.NewString()
	}
	sink, err := buildSink(cfg, store, id)
	if err != nil {
		return err
	}

	scaler := env.DefaultScaler()
	h, err := harness.New(harness.Config{
		Env:              environment,
		Agent:            ddpg,
		Store:            store,
		Sink:             sink,
		Scaler:           &scaler,
		RunID:            id,
		Episodes:         cfg.Rollout.NEpisodes,
		EvalEvery:        cfg.Harness.EvalEvery,
		EvalRuns:         cfg.Harness.EvalRuns,
		TrainCyclesPerTS: cfg.Rollout.TrainCyclesPerTS,
		PeriodicCkpt:     cfg.Rollout.PeriodicCkpt,
		Render:           cfg.Rollout.Render,
		StepSleep:        cfg.Rollout.StepSleep(),
		BatchRemember:    cfg.Harness.BatchRemember,
	})
	if err != nil {
		return err
	}

	record, err := h.Run(ctx)
	if err != nil {
		return err
	}
	printRunSummary(record)
	return nil
}

func runEval(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	configPath := fs.String("config", "", "yaml run configuration")
	episodes := fs.Int("episodes", 0, "override evaluation episode count")
	storeKind := fs.String("store", "", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "", "sqlite database path")
	fromRun := fs.String("from-run", "", "restore the latest checkpoint of this run")
	runID := fs.String("run-id", "", "run identifier for the evaluation itself")
	saveBest := fs.Bool("save-best", false, "checkpoint on new best mean reward")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *episodes > 0 {
		cfg.Rollout.NEpisodes = *episodes
	}
	if *storeKind != "" {
		cfg.Store.Kind = *storeKind
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	environment, ddpg, err := buildComponents(cfg)
	if err != nil {
		return err
	}

	if *fromRun != "" {
		ckpt, err := harness.RestoreLatest(ctx, store, *fromRun, ddpg)
		if err != nil {
			return err
		}
		fmt.Printf("restored %s_%d from run %s\n", ckpt.Category, ckpt.Episode, *fromRun)
	}

	id := *runID
	if id == "" {
		id = uuid.NewString()
	}
	sink, err := buildSink(cfg, store, id)
	if err != nil {
		return err
	}

	scaler := env.DefaultScaler()
	h, err := harness.New(harness.Config{
		Env:       environment,
		Agent:     ddpg,
		Store:     store,
		Sink:      sink,
		Scaler:    &scaler,
		RunID:     id,
		Episodes:  cfg.Rollout.NEpisodes,
		Render:    cfg.Rollout.Render,
		SaveBest:  *saveBest,
		StepSleep: cfg.Rollout.StepSleep(),
	})
	if err != nil {
		return err
	}

	record, err := h.Evaluate(ctx)
	if err != nil {
		return err
	}
	printRunSummary(record)
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	store, err := storage.NewStore(cfg.Store.Kind, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return store, nil
}

func buildComponents(cfg config.Config) (env.Environment, agent.Agent, error) {
	if env.NormalizeName(cfg.Env.Name) != "go-to-goal" {
		return nil, nil, fmt.Errorf("unknown environment: %s", cfg.Env.Name)
	}
	environment := env.NewGoToGoal(env.GoToGoalConfig{
		ArenaSize:  cfg.Env.ArenaSize,
		GoalRadius: cfg.Env.GoalRadius,
		MaxSteps:   cfg.Env.MaxSteps,
		Seed:       cfg.Env.Seed,
	})

	ddpg, err := agent.NewDDPG(agent.DDPGConfig{
		ObsDim:         4,
		GoalDim:        2,
		ActionDim:      2,
		Gamma:          cfg.Agent.Gamma,
		Tau:            cfg.Agent.Tau,
		ActorLR:        cfg.Agent.ActorLR,
		CriticLR:       cfg.Agent.CriticLR,
		BatchSize:      cfg.Agent.BatchSize,
		ReplayCapacity: cfg.Agent.ReplayCapacity,
		NoiseSigma:     cfg.Agent.NoiseSigma,
		Seed:           cfg.Agent.Seed,
	})
	if err != nil {
		return nil, nil, err
	}
	return environment, ddpg, nil
}

func buildSink(cfg config.Config, store storage.Store, runID string) (metrics.Sink, error) {
	sinks := metrics.MultiSink{metrics.NewStoreSink(store, runID)}
	if cfg.Metrics.JSONLPath != "" {
		jsonl, err := metrics.NewJSONLSink(cfg.Metrics.JSONLPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, jsonl)
	}
	return sinks, nil
}
