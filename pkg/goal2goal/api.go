package goal2goal

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"goal2goal/internal/agent"
	"goal2goal/internal/env"
	"goal2goal/internal/harness"
	"goal2goal/internal/metrics"
	"goal2goal/internal/model"
	"goal2goal/internal/storage"
)

const defaultDBPath = "goal2goal.db"

// Options configures a Client. Zero values select the in-memory store.
type Options struct {
	StoreKind string
	DBPath    string

	// Out receives run progress lines. Defaults to io.Discard so that
	// embedding programs stay quiet unless they opt in.
	Out io.Writer
}

// Client is the embeddable entry point: it owns a store and wires
// environments, agents and the run harness behind a request API.
type Client struct {
	store storage.Store
	out   io.Writer
	ready bool
}

type TrainRequest struct {
	RunID            string
	Env              string
	Episodes         int
	EvalEvery        int
	EvalRuns         int
	TrainCyclesPerTS int
	PeriodicCkpt     int
	BatchRemember    bool
	Seed             int64
}

type EvalRequest struct {
	RunID    string
	FromRun  string
	Env      string
	Episodes int
	SaveBest bool
	Seed     int64
}

type RunSummary struct {
	RunID       string
	Env         string
	Mode        string
	Episodes    int
	TotalSteps  int
	MeanReward  float64
	MeanQ       float64
	SuccessRate float64
	BestScore   float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = "memory"
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store, out: out}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.ready {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.ready = true
	return nil
}

// Train runs a full training schedule and returns the recorded summary.
func (c *Client) Train(ctx context.Context, req TrainRequest) (RunSummary, error) {
	if req.Episodes <= 0 {
		req.Episodes = 100
	}
	if req.EvalEvery < 0 || req.EvalRuns < 0 {
		return RunSummary{}, errors.New("eval schedule must be non-negative")
	}
	if req.TrainCyclesPerTS <= 0 {
		req.TrainCyclesPerTS = 1
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	environment, ag, err := c.buildComponents(req.Env, req.Seed)
	if err != nil {
		return RunSummary{}, err
	}

	scaler := env.DefaultScaler()
	h, err := harness.New(harness.Config{
		Env:              environment,
		Agent:            ag,
		Store:            c.store,
		Sink:             metrics.NewStoreSink(c.store, req.RunID),
		Out:              c.out,
		Scaler:           &scaler,
		RunID:            req.RunID,
		Episodes:         req.Episodes,
		EvalEvery:        req.EvalEvery,
		EvalRuns:         req.EvalRuns,
		TrainCyclesPerTS: req.TrainCyclesPerTS,
		PeriodicCkpt:     req.PeriodicCkpt,
		BatchRemember:    req.BatchRemember,
	})
	if err != nil {
		return RunSummary{}, err
	}

	record, err := h.Run(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	return summaryFromRecord(record), nil
}

// Evaluate runs greedy rollouts, optionally restoring the latest
// checkpoint of an earlier run first.
func (c *Client) Evaluate(ctx context.Context, req EvalRequest) (RunSummary, error) {
	if req.Episodes <= 0 {
		req.Episodes = 5
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	environment, ag, err := c.buildComponents(req.Env, req.Seed)
	if err != nil {
		return RunSummary{}, err
	}
	if req.FromRun != "" {
		if _, err := harness.RestoreLatest(ctx, c.store, req.FromRun, ag); err != nil {
			return RunSummary{}, err
		}
	}

	scaler := env.DefaultScaler()
	h, err := harness.New(harness.Config{
		Env:      environment,
		Agent:    ag,
		Store:    c.store,
		Sink:     metrics.NewStoreSink(c.store, req.RunID),
		Out:      c.out,
		Scaler:   &scaler,
		RunID:    req.RunID,
		Episodes: req.Episodes,
		SaveBest: req.SaveBest,
	})
	if err != nil {
		return RunSummary{}, err
	}

	record, err := h.Evaluate(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	return summaryFromRecord(record), nil
}

// Runs lists recorded runs, newest first, up to limit entries.
func (c *Client) Runs(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) > limit {
		runs = runs[len(runs)-limit:]
	}
	return runs, nil
}

// Metrics returns the recorded samples of a run, optionally restricted
// to one tag.
func (c *Client) Metrics(ctx context.Context, runID, tag string) ([]model.MetricSample, error) {
	if runID == "" {
		return nil, errors.New("metrics requires a run id")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.GetMetrics(ctx, runID, tag)
}

// WriteReport renders a run's metric series to an HTML chart file.
func (c *Client) WriteReport(ctx context.Context, runID, path string) error {
	series, err := c.metricSeries(ctx, runID)
	if err != nil {
		return err
	}
	return metrics.WriteChart(path, fmt.Sprintf("run %s", runID), series)
}

// WriteWorkbook exports a run's metric series to an xlsx workbook.
func (c *Client) WriteWorkbook(ctx context.Context, runID, path string) error {
	series, err := c.metricSeries(ctx, runID)
	if err != nil {
		return err
	}
	return metrics.WriteXLSX(path, series)
}

func (c *Client) metricSeries(ctx context.Context, runID string) (map[string][]model.MetricSample, error) {
	samples, err := c.Metrics(ctx, runID, "")
	if err != nil {
		return nil, err
	}
	series := make(map[string][]model.MetricSample)
	for _, s := range samples {
		series[s.Tag] = append(series[s.Tag], s)
	}
	return series, nil
}

func (c *Client) buildComponents(name string, seed int64) (env.Environment, agent.Agent, error) {
	if name == "" {
		name = "go-to-goal"
	}
	if env.NormalizeName(name) != "go-to-goal" {
		return nil, nil, fmt.Errorf("unknown environment: %s", name)
	}
	environment := env.NewGoToGoal(env.GoToGoalConfig{Seed: seed})
	ag, err := agent.NewDDPG(agent.DDPGConfig{
		ObsDim:    4,
		GoalDim:   2,
		ActionDim: 2,
		Seed:      seed,
	})
	if err != nil {
		return nil, nil, err
	}
	return environment, ag, nil
}

func summaryFromRecord(record model.RunRecord) RunSummary {
	return RunSummary{
		RunID:       record.ID,
		Env:         record.Env,
		Mode:        record.Mode,
		Episodes:    record.Episodes,
		TotalSteps:  record.TotalSteps,
		MeanReward:  record.MeanReward,
		MeanQ:       record.MeanQ,
		SuccessRate: record.SuccessRate,
		BestScore:   record.BestScore,
	}
}
