package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"goal2goal/internal/agent"
	"goal2goal/internal/env"
	"goal2goal/internal/metrics"
	"goal2goal/internal/model"
	"goal2goal/internal/rollout"
	"goal2goal/internal/storage"
)

// Config bundles the collaborators and schedule of a training run. Env,
// Agent and Episodes are required; everything else is optional.
type Config struct {
	Env    env.Environment
	Agent  agent.Agent
	Store  storage.Store
	Sink   metrics.Sink
	Out    io.Writer
	Scaler *env.ActionScaler

	RunID            string
	Episodes         int
	EvalEvery        int
	EvalRuns         int
	TrainCyclesPerTS int
	PeriodicCkpt     int
	Render           bool
	SaveBest         bool
	StepSleep        time.Duration

	// BatchRemember buffers each episode's transitions and flushes them
	// into agent memory after the episode completes, instead of per step.
	BatchRemember bool
}

// Harness drives a full training run: the shared rollout generator for
// every training episode, periodic multi-run evaluation blocks, and a
// checkpoint whenever a new best cumulative evaluation score is reached.
type Harness struct {
	cfg      Config
	out      io.Writer
	bestEval float64

	// evalGen lives across eval blocks so the eval summary counter keeps
	// counting and every block extends the same metric series.
	evalGen *rollout.Generator
}

func New(cfg Config) (*Harness, error) {
	if cfg.Env == nil {
		return nil, errors.New("harness requires an environment")
	}
	if cfg.Agent == nil {
		return nil, errors.New("harness requires an agent")
	}
	if cfg.Episodes <= 0 {
		return nil, fmt.Errorf("harness requires a positive episode budget, got %d", cfg.Episodes)
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.EvalEvery > 0 && cfg.EvalRuns <= 0 {
		cfg.EvalRuns = 5
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	return &Harness{cfg: cfg, out: out}, nil
}

// Run executes the training schedule and records a RunRecord when the
// episode budget is exhausted.
func (h *Harness) Run(ctx context.Context) (model.RunRecord, error) {
	started := time.Now().UTC()

	trainAgent := h.cfg.Agent
	var batcher *episodeBatcher
	if h.cfg.BatchRemember {
		batcher = &episodeBatcher{inner: h.cfg.Agent}
		trainAgent = batcher
	}

	gen, err := rollout.New(rollout.Config{
		Env:              h.cfg.Env,
		Agent:            trainAgent,
		Saver:            h.saver(),
		Sink:             h.cfg.Sink,
		Out:              h.out,
		Scaler:           h.cfg.Scaler,
		Render:           h.cfg.Render,
		TrainCyclesPerTS: h.cfg.TrainCyclesPerTS,
		PeriodicCkpt:     h.cfg.PeriodicCkpt,
		NEpisodes:        h.cfg.Episodes,
	})
	if err != nil {
		return model.RunRecord{}, err
	}

	for !gen.Done() {
		if err := ctx.Err(); err != nil {
			return model.RunRecord{}, err
		}
		if err := gen.Generate(ctx); err != nil {
			return model.RunRecord{}, fmt.Errorf("episode %d: %w", gen.Episode()+1, err)
		}
		if batcher != nil {
			if err := batcher.Flush(); err != nil {
				return model.RunRecord{}, fmt.Errorf("flush episode batch: %w", err)
			}
		}
		if h.cfg.EvalEvery > 0 && gen.Episode()%h.cfg.EvalEvery == 0 {
			if err := h.runEvalBlock(ctx, gen.Episode()); err != nil {
				return model.RunRecord{}, err
			}
		}
	}

	record := model.RunRecord{
		VersionedRecord: storage.Stamp(),
		ID:              h.cfg.RunID,
		Env:             h.cfg.Env.Name(),
		Mode:            "train",
		Episodes:        gen.Episode(),
		TotalSteps:      gen.TotalSteps(),
		MeanReward:      gen.MeanReward(),
		MeanQ:           gen.MeanQ(),
		SuccessRate:     float64(gen.SuccessCount()) / float64(gen.Episode()),
		BestScore:       h.bestEval,
		StartedAt:       started,
		FinishedAt:      time.Now().UTC(),
	}
	if h.cfg.Store != nil {
		if err := h.cfg.Store.SaveRun(ctx, record); err != nil {
			return model.RunRecord{}, fmt.Errorf("save run record: %w", err)
		}
	}
	return record, nil
}

// runEvalBlock evaluates the current policy over EvalRuns greedy rollouts
// and checkpoints when the cumulative evaluation score improves on the
// best seen so far.
func (h *Harness) runEvalBlock(ctx context.Context, trainEpisode int) error {
	if h.evalGen == nil {
		gen, err := rollout.New(rollout.Config{
			Env:       h.cfg.Env,
			Agent:     h.cfg.Agent,
			Sink:      h.cfg.Sink,
			Out:       h.out,
			Scaler:    h.cfg.Scaler,
			Eval:      true,
			NEpisodes: h.cfg.EvalRuns,
			StepSleep: h.cfg.StepSleep,
		})
		if err != nil {
			return err
		}
		h.evalGen = gen
	} else {
		h.evalGen.Reset()
	}

	gen := h.evalGen
	for !gen.Done() {
		if err := gen.Generate(ctx); err != nil {
			return fmt.Errorf("eval run %d: %w", gen.Episode()+1, err)
		}
	}

	cumulative := gen.MeanReward() * float64(h.cfg.EvalRuns)
	cumulativeQ := gen.MeanQ() * float64(h.cfg.EvalRuns)
	fmt.Fprintf(h.out, "| [EVAL_BLOCK] Episode: %4d | Reward: %7.3f | Q: %8.3f |\n",
		trainEpisode, cumulative, cumulativeQ)

	if cumulative > h.bestEval {
		fmt.Fprintf(h.out, "new best policy: eval score %.3f (previous %.3f)\n",
			cumulative, h.bestEval)
		h.bestEval = cumulative
		if saver := h.saver(); saver != nil {
			if err := saver.Save(ctx, model.CheckpointBest, trainEpisode, cumulative); err != nil {
				return fmt.Errorf("best checkpoint: %w", err)
			}
		}
	}
	return nil
}

// Evaluate runs a standalone evaluation: Episodes greedy rollouts with
// the generator's own best-score checkpointing policy.
func (h *Harness) Evaluate(ctx context.Context) (model.RunRecord, error) {
	started := time.Now().UTC()

	gen, err := rollout.New(rollout.Config{
		Env:       h.cfg.Env,
		Agent:     h.cfg.Agent,
		Saver:     h.saver(),
		Sink:      h.cfg.Sink,
		Out:       h.out,
		Scaler:    h.cfg.Scaler,
		Eval:      true,
		Render:    h.cfg.Render,
		SaveBest:  h.cfg.SaveBest,
		NEpisodes: h.cfg.Episodes,
		StepSleep: h.cfg.StepSleep,
	})
	if err != nil {
		return model.RunRecord{}, err
	}
	for !gen.Done() {
		if err := ctx.Err(); err != nil {
			return model.RunRecord{}, err
		}
		if err := gen.Generate(ctx); err != nil {
			return model.RunRecord{}, fmt.Errorf("eval run %d: %w", gen.Episode()+1, err)
		}
	}

	record := model.RunRecord{
		VersionedRecord: storage.Stamp(),
		ID:              h.cfg.RunID,
		Env:             h.cfg.Env.Name(),
		Mode:            "eval",
		Episodes:        gen.Episode(),
		TotalSteps:      gen.TotalSteps(),
		MeanReward:      gen.MeanReward(),
		MeanQ:           gen.MeanQ(),
		SuccessRate:     float64(gen.SuccessCount()) / float64(gen.Episode()),
		BestScore:       gen.BestScore(),
		StartedAt:       started,
		FinishedAt:      time.Now().UTC(),
	}
	if h.cfg.Store != nil {
		if err := h.cfg.Store.SaveRun(ctx, record); err != nil {
			return model.RunRecord{}, fmt.Errorf("save run record: %w", err)
		}
	}
	return record, nil
}

func (h *Harness) saver() rollout.Saver {
	if h.cfg.Store == nil {
		return nil
	}
	return &snapshotSaver{store: h.cfg.Store, agent: h.cfg.Agent, runID: h.cfg.RunID}
}

// snapshotSaver persists agent snapshots as checkpoints in a store.
type snapshotSaver struct {
	store storage.Store
	agent agent.Agent
	runID string
}

func (s *snapshotSaver) Save(ctx context.Context, category model.CheckpointCategory, episode int, score float64) error {
	payload, err := s.agent.Snapshot()
	if err != nil {
		return fmt.Errorf("agent snapshot: %w", err)
	}
	return s.store.SaveCheckpoint(ctx, model.Checkpoint{
		VersionedRecord: storage.Stamp(),
		RunID:           s.runID,
		Category:        category,
		Episode:         episode,
		Score:           score,
		Payload:         payload,
		CreatedAt:       time.Now().UTC(),
	})
}

// episodeBatcher buffers remembered transitions until Flush, giving the
// original per-episode memory write pattern.
type episodeBatcher struct {
	inner agent.Agent
	buf   []model.Transition
}

func (b *episodeBatcher) Step(obs []float64, explore bool) ([]float64, []float64, float64, error) {
	return b.inner.Step(obs, explore)
}

func (b *episodeBatcher) Remember(tr model.Transition) error {
	b.buf = append(b.buf, tr)
	return nil
}

func (b *episodeBatcher) Train() error { return b.inner.Train() }

func (b *episodeBatcher) Snapshot() ([]byte, error) { return b.inner.Snapshot() }

func (b *episodeBatcher) Restore(data []byte) error { return b.inner.Restore(data) }

func (b *episodeBatcher) Flush() error {
	for _, tr := range b.buf {
		if err := b.inner.Remember(tr); err != nil {
			return err
		}
	}
	b.buf = b.buf[:0]
	return nil
}
