package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/logrusorgru/aurora"

	"goal2goal/internal/metrics"
	"goal2goal/internal/model"
	"goal2goal/internal/storage"
)

func openStoreFlags(fs *flag.FlagSet) (*string, *string) {
	storeKind := fs.String("store", "sqlite", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "goal2goal.db", "sqlite database path")
	return storeKind, dbPath
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind, dbPath := openStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	for _, run := range runs {
		mode := aurora.Blue(run.Mode)
		if run.Mode == "train" {
			mode = aurora.Green(run.Mode)
		}
		fmt.Printf("%s  %-5s  %-12s  episodes=%-5d  mean_r=%8.3f  success=%5.1f%%  %s\n",
			run.ID, mode, run.Env, run.Episodes, run.MeanReward,
			100*run.SuccessRate, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	return nil
}

func runReport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	storeKind, dbPath := openStoreFlags(fs)
	runID := fs.String("run-id", "", "run to report on")
	out := fs.String("out", "report.html", "output html file")
	tag := fs.String("tag", "", "restrict to one metric tag")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return usageError("report requires -run-id")
	}

	series, err := loadSeries(ctx, *storeKind, *dbPath, *runID, *tag)
	if err != nil {
		return err
	}
	if err := metrics.WriteChart(*out, fmt.Sprintf("run %s", *runID), series); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", *out)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	storeKind, dbPath := openStoreFlags(fs)
	runID := fs.String("run-id", "", "run to export")
	out := fs.String("out", "report.xlsx", "output xlsx file")
	tag := fs.String("tag", "", "restrict to one metric tag")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return usageError("export requires -run-id")
	}

	series, err := loadSeries(ctx, *storeKind, *dbPath, *runID, *tag)
	if err != nil {
		return err
	}
	if err := metrics.WriteXLSX(*out, series); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", *out)
	return nil
}

func loadSeries(ctx context.Context, storeKind, dbPath, runID, tag string) (map[string][]model.MetricSample, error) {
	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	samples, err := store.GetMetrics(ctx, runID, tag)
	if err != nil {
		return nil, err
	}
	return seriesByTag(samples), nil
}

func seriesByTag(samples []model.MetricSample) map[string][]model.MetricSample {
	out := make(map[string][]model.MetricSample)
	for _, s := range samples {
		out[s.Tag] = append(out[s.Tag], s)
	}
	return out
}
