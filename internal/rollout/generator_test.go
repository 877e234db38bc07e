package rollout

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"goal2goal/internal/env"
	"goal2goal/internal/metrics"
	"goal2goal/internal/model"
)

// fixedEnv pays a fixed reward every step and never terminates on its
// own; episodes end at the step cap.
type fixedEnv struct {
	maxSteps int
	reward   float64
	success  bool
	renders  int
}

func (e *fixedEnv) Name() string         { return "fixed" }
func (e *fixedEnv) MaxEpisodeSteps() int { return e.maxSteps }
func (e *fixedEnv) Render()              { e.renders++ }

func (e *fixedEnv) Reset() (env.Observation, error) {
	return env.Observation{
		Observation:  []float64{1, 2},
		DesiredGoal:  []float64{3},
		AchievedGoal: []float64{4},
	}, nil
}

func (e *fixedEnv) Step(action []float64) (env.Observation, float64, bool, env.Info, error) {
	obs := env.Observation{
		Observation:  []float64{5, 6},
		DesiredGoal:  []float64{7},
		AchievedGoal: []float64{8},
	}
	return obs, e.reward, false, env.Info{IsSuccess: e.success}, nil
}

// scriptedEnv terminates every episode after one step with a scripted
// reward per episode.
type scriptedEnv struct {
	rewards []float64
	episode int
}

func (e *scriptedEnv) Name() string         { return "scripted" }
func (e *scriptedEnv) MaxEpisodeSteps() int { return 1 }
func (e *scriptedEnv) Render()              {}

func (e *scriptedEnv) Reset() (env.Observation, error) {
	return env.Observation{Observation: []float64{0}, DesiredGoal: []float64{0}, AchievedGoal: []float64{0}}, nil
}

func (e *scriptedEnv) Step(action []float64) (env.Observation, float64, bool, env.Info, error) {
	r := e.rewards[e.episode]
	e.episode++
	obs := env.Observation{Observation: []float64{0}, DesiredGoal: []float64{0}, AchievedGoal: []float64{0}}
	return obs, r, true, env.Info{}, nil
}

type stubAgent struct {
	explored   []bool
	remembered []model.Transition
	trainCalls int
	q          float64
}

func (a *stubAgent) Step(obs []float64, explore bool) ([]float64, []float64, float64, error) {
	a.explored = append(a.explored, explore)
	return []float64{0.5, -0.5}, []float64{0.4, -0.4}, a.q, nil
}

func (a *stubAgent) Remember(tr model.Transition) error {
	a.remembered = append(a.remembered, tr)
	return nil
}

func (a *stubAgent) Train() error {
	a.trainCalls++
	return nil
}

func (a *stubAgent) Snapshot() ([]byte, error) { return []byte("{}"), nil }
func (a *stubAgent) Restore([]byte) error      { return nil }

type save struct {
	category model.CheckpointCategory
	episode  int
	score    float64
}

type stubSaver struct {
	saves []save
}

func (s *stubSaver) Save(_ context.Context, category model.CheckpointCategory, episode int, score float64) error {
	s.saves = append(s.saves, save{category, episode, score})
	return nil
}

func TestGenerateIncrementsEpisodeByOne(t *testing.T) {
	g, err := New(Config{
		Env:       &fixedEnv{maxSteps: 3, reward: 1},
		Agent:     &stubAgent{},
		NEpisodes: 4,
		Out:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 1; i <= 4; i++ {
		if err := g.Generate(context.Background()); err != nil {
			t.Fatalf("generate: %v", err)
		}
		if g.Episode() != i {
			t.Fatalf("expected episode %d, got %d", i, g.Episode())
		}
	}
}

func TestDoneMatchesEpisodeBudgetAndIsMonotonic(t *testing.T) {
	g, err := New(Config{
		Env:       &fixedEnv{maxSteps: 2, reward: 0},
		Agent:     &stubAgent{},
		NEpisodes: 2,
		Out:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if g.Done() {
		t.Fatal("done before any episode")
	}
	_ = g.Generate(context.Background())
	if g.Done() {
		t.Fatal("done after one of two episodes")
	}
	_ = g.Generate(context.Background())
	if !g.Done() {
		t.Fatal("expected done after budget exhausted")
	}
	// Monotonic: further rollouts only push the counter higher.
	_ = g.Generate(context.Background())
	if !g.Done() {
		t.Fatal("done must stay true")
	}
}

func TestRunningMeanReward(t *testing.T) {
	// reward=1.0 every step, 3 steps/episode, 4 episodes => mean 3.0.
	g, err := New(Config{
		Env:       &fixedEnv{maxSteps: 3, reward: 1.0},
		Agent:     &stubAgent{},
		NEpisodes: 4,
		Out:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for !g.Done() {
		if err := g.Generate(context.Background()); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}
	if math.Abs(g.MeanReward()-3.0) > 1e-12 {
		t.Fatalf("expected mean episodic reward 3.0, got %f", g.MeanReward())
	}
	if g.TotalSteps() != 12 {
		t.Fatalf("expected 12 total steps, got %d", g.TotalSteps())
	}
}

func TestPeriodicCheckpointCadence(t *testing.T) {
	saver := &stubSaver{}
	g, err := New(Config{
		Env:          &fixedEnv{maxSteps: 1, reward: 0},
		Agent:        &stubAgent{},
		Saver:        saver,
		NEpisodes:    12,
		PeriodicCkpt: 5,
		Out:          &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for !g.Done() {
		if err := g.Generate(context.Background()); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}
	if len(saver.saves) != 2 {
		t.Fatalf("expected 2 periodic checkpoints, got %+v", saver.saves)
	}
	if saver.saves[0].episode != 5 || saver.saves[1].episode != 10 {
		t.Fatalf("expected checkpoints at episodes 5 and 10, got %+v", saver.saves)
	}
	for _, s := range saver.saves {
		if s.category != model.CheckpointPeriodic {
			t.Fatalf("expected periodic category, got %+v", s)
		}
	}
}

func TestBestCheckpointFiresOnStrictImprovement(t *testing.T) {
	saver := &stubSaver{}
	g, err := New(Config{
		Env:       &scriptedEnv{rewards: []float64{2.0, 1.5, 3.0}},
		Agent:     &stubAgent{},
		Saver:     saver,
		Eval:      true,
		SaveBest:  true,
		NEpisodes: 3,
		Out:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for !g.Done() {
		if err := g.Generate(context.Background()); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}
	if len(saver.saves) != 2 {
		t.Fatalf("expected best checkpoints at episodes 1 and 3, got %+v", saver.saves)
	}
	if saver.saves[0].episode != 1 || saver.saves[1].episode != 3 {
		t.Fatalf("expected episodes 1 and 3, got %+v", saver.saves)
	}
	for _, s := range saver.saves {
		if s.category != model.CheckpointBest {
			t.Fatalf("expected best category, got %+v", s)
		}
	}
}

func TestBestCheckpointNeverFiresOutsideEval(t *testing.T) {
	saver := &stubSaver{}
	g, err := New(Config{
		Env:       &scriptedEnv{rewards: []float64{2.0, 3.0, 4.0}},
		Agent:     &stubAgent{},
		Saver:     saver,
		SaveBest:  true,
		NEpisodes: 3,
		Out:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for !g.Done() {
		_ = g.Generate(context.Background())
	}
	if len(saver.saves) != 0 {
		t.Fatalf("expected no best checkpoints in train mode, got %+v", saver.saves)
	}
}

func TestTransitionsPreserveFieldsAndOrder(t *testing.T) {
	a := &stubAgent{}
	g, err := New(Config{
		Env:       &fixedEnv{maxSteps: 3, reward: 2.5},
		Agent:     a,
		NEpisodes: 1,
		Out:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := g.Generate(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(a.remembered) != 3 {
		t.Fatalf("expected one transition per step, got %d", len(a.remembered))
	}
	first := a.remembered[0]
	if first.Observation[0] != 1 || first.DesiredGoal[0] != 3 || first.AchievedGoal[0] != 4 {
		t.Fatalf("reset observation fields misplaced: %+v", first)
	}
	if first.Action[0] != 0.4 || first.Action[1] != -0.4 {
		t.Fatalf("expected the actor's raw output, got %v", first.Action)
	}
	if first.Reward != 2.5 || first.Done != 0 {
		t.Fatalf("reward/done misplaced: %+v", first)
	}
	if first.NextObservation[0] != 5 || first.NextDesiredGoal[0] != 7 {
		t.Fatalf("next observation fields misplaced: %+v", first)
	}
	// Later steps chain from the previous step's observation.
	second := a.remembered[1]
	if second.Observation[0] != 5 || second.DesiredGoal[0] != 7 {
		t.Fatalf("expected chained observation, got %+v", second)
	}
}

func TestExplorationFlagPerMode(t *testing.T) {
	train := &stubAgent{}
	g, err := New(Config{
		Env:       &fixedEnv{maxSteps: 2, reward: 0},
		Agent:     train,
		NEpisodes: 1,
		Out:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_ = g.Generate(context.Background())
	for i, explored := range train.explored {
		if !explored {
			t.Fatalf("train step %d not exploratory", i)
		}
	}

	eval := &stubAgent{}
	ge, err := New(Config{
		Env:       &fixedEnv{maxSteps: 2, reward: 0},
		Agent:     eval,
		Eval:      true,
		NEpisodes: 1,
		Out:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_ = ge.Generate(context.Background())
	for i, explored := range eval.explored {
		if explored {
			t.Fatalf("eval step %d exploratory", i)
		}
	}
}

func TestTrainCadencePerStep(t *testing.T) {
	a := &stubAgent{}
	g, err := New(Config{
		Env:              &fixedEnv{maxSteps: 4, reward: 0},
		Agent:            a,
		NEpisodes:        1,
		TrainCyclesPerTS: 3,
		Out:              &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_ = g.Generate(context.Background())
	if a.trainCalls != 12 {
		t.Fatalf("expected 4 steps * 3 cycles = 12 train calls, got %d", a.trainCalls)
	}

	evalAgent := &stubAgent{}
	ge, err := New(Config{
		Env:       &fixedEnv{maxSteps: 4, reward: 0},
		Agent:     evalAgent,
		Eval:      true,
		NEpisodes: 1,
		Out:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_ = ge.Generate(context.Background())
	if evalAgent.trainCalls != 0 {
		t.Fatalf("expected no train calls in eval mode, got %d", evalAgent.trainCalls)
	}
}

func TestSummariesKeyedByModeCounter(t *testing.T) {
	sink := metrics.NewMemorySink()
	g, err := New(Config{
		Env:       &fixedEnv{maxSteps: 2, reward: 1},
		Agent:     &stubAgent{q: 0.5},
		Sink:      sink,
		NEpisodes: 2,
		Out:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for !g.Done() {
		if err := g.Generate(context.Background()); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}

	rewards := sink.Series("TRAIN_ROLLOUT/episodic_r")
	if len(rewards) != 2 || rewards[0].Step != 1 || rewards[1].Step != 2 {
		t.Fatalf("unexpected reward series: %+v", rewards)
	}
	if rewards[0].Value != 2.0 {
		t.Fatalf("expected episodic reward 2.0, got %f", rewards[0].Value)
	}
	qs := sink.Series("TRAIN_ROLLOUT/episodic_q")
	if len(qs) != 2 || qs[0].Value != 1.0 {
		t.Fatalf("unexpected q series: %+v", qs)
	}
}

func TestEvalCounterSurvivesReset(t *testing.T) {
	sink := metrics.NewMemorySink()
	g, err := New(Config{
		Env:       &fixedEnv{maxSteps: 1, reward: 1},
		Agent:     &stubAgent{},
		Sink:      sink,
		Eval:      true,
		NEpisodes: 2,
		Out:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for !g.Done() {
		if err := g.Generate(context.Background()); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}
	g.Reset()
	for !g.Done() {
		if err := g.Generate(context.Background()); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}

	rewards := sink.Series("EVAL_ROLLOUT/episodic_r")
	if len(rewards) != 4 {
		t.Fatalf("expected 4 samples across both rounds, got %d", len(rewards))
	}
	for i, s := range rewards {
		if s.Step != i+1 {
			t.Fatalf("expected continuous step keys 1..4, got %+v", rewards)
		}
	}
}

func TestStepSummariesTrainModeOnly(t *testing.T) {
	sink := metrics.NewMemorySink()
	g, err := New(Config{
		Env:       &fixedEnv{maxSteps: 2, reward: 1},
		Agent:     &stubAgent{q: 0.5},
		Sink:      sink,
		NEpisodes: 2,
		Out:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for !g.Done() {
		if err := g.Generate(context.Background()); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}

	vel := sink.Series("run/l_velocity")
	if len(vel) != 4 {
		t.Fatalf("expected one sample per step, got %d", len(vel))
	}
	// Keys are global: episode * max steps + step index.
	for i, s := range vel {
		if s.Step != i {
			t.Fatalf("expected global step keys 0..3, got %+v", vel)
		}
		if s.Value != 0.5 {
			t.Fatalf("expected executed linear velocity 0.5, got %f", s.Value)
		}
	}
	ang := sink.Series("run/a_velocity")
	if len(ang) != 4 || ang[0].Value != -0.5 {
		t.Fatalf("unexpected angular velocity series: %+v", ang)
	}
	meanQ := sink.Series("run/meanQ")
	if len(meanQ) != 4 || meanQ[0].Value != 0.5 || meanQ[1].Value != 0.5 {
		t.Fatalf("unexpected running mean q series: %+v", meanQ)
	}

	// A terminal step writes no step summaries.
	terminalSink := metrics.NewMemorySink()
	gt, err := New(Config{
		Env:       &scriptedEnv{rewards: []float64{1}},
		Agent:     &stubAgent{},
		Sink:      terminalSink,
		NEpisodes: 1,
		Out:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := gt.Generate(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := terminalSink.Series("run/l_velocity"); len(got) != 0 {
		t.Fatalf("expected no step summaries on a terminal step, got %+v", got)
	}

	// Eval mode writes none either.
	evalSink := metrics.NewMemorySink()
	ge, err := New(Config{
		Env:       &fixedEnv{maxSteps: 2},
		Agent:     &stubAgent{},
		Sink:      evalSink,
		Eval:      true,
		NEpisodes: 1,
		Out:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := ge.Generate(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := evalSink.Series("run/l_velocity"); len(got) != 0 {
		t.Fatalf("expected no step summaries in eval mode, got %+v", got)
	}
}

// distEnv reports a starting distance and then scripted per-step
// distances to the goal.
type distEnv struct {
	start float64
	dists []float64
	i     int
}

func (e *distEnv) Name() string         { return "dist" }
func (e *distEnv) MaxEpisodeSteps() int { return len(e.dists) }
func (e *distEnv) Render()              {}

func (e *distEnv) CurrentDistance() float64 { return e.start }

func (e *distEnv) Reset() (env.Observation, error) {
	e.i = 0
	return env.Observation{Observation: []float64{0}, DesiredGoal: []float64{0}, AchievedGoal: []float64{0}}, nil
}

func (e *distEnv) Step(action []float64) (env.Observation, float64, bool, env.Info, error) {
	d := e.dists[e.i]
	e.i++
	obs := env.Observation{Observation: []float64{0}, DesiredGoal: []float64{0}, AchievedGoal: []float64{0}}
	return obs, -d, false, env.Info{Dist: d}, nil
}

func TestEpisodeLogReportsMinDistance(t *testing.T) {
	out := &bytes.Buffer{}
	g, err := New(Config{
		Env:       &distEnv{start: 5.0, dists: []float64{3.0, 1.5}},
		Agent:     &stubAgent{},
		NEpisodes: 1,
		Out:       out,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := g.Generate(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(out.String(), "MIND: 1.500") {
		t.Fatalf("expected min distance 1.500 in episode log, got %q", out.String())
	}
}

func TestRenderOnlyWhenConfigured(t *testing.T) {
	e := &fixedEnv{maxSteps: 2}
	g, _ := New(Config{Env: e, Agent: &stubAgent{}, NEpisodes: 1, Out: &bytes.Buffer{}})
	_ = g.Generate(context.Background())
	if e.renders != 0 {
		t.Fatalf("expected no renders, got %d", e.renders)
	}

	e2 := &fixedEnv{maxSteps: 2}
	g2, _ := New(Config{Env: e2, Agent: &stubAgent{}, NEpisodes: 1, Render: true, Out: &bytes.Buffer{}})
	_ = g2.Generate(context.Background())
	if e2.renders != 2 {
		t.Fatalf("expected one render per step, got %d", e2.renders)
	}
}

func TestSuccessCounter(t *testing.T) {
	g, _ := New(Config{
		Env:       &fixedEnv{maxSteps: 1, success: true},
		Agent:     &stubAgent{},
		Eval:      true,
		NEpisodes: 2,
		Out:       &bytes.Buffer{},
	})
	for !g.Done() {
		_ = g.Generate(context.Background())
	}
	if g.SuccessCount() != 2 {
		t.Fatalf("expected 2 successes, got %d", g.SuccessCount())
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g, _ := New(Config{Env: &fixedEnv{maxSteps: 3}, Agent: &stubAgent{}, NEpisodes: 1, Out: &bytes.Buffer{}})
	if err := g.Generate(ctx); err == nil {
		t.Fatal("expected context error")
	}
	if g.Episode() != 0 {
		t.Fatalf("cancelled episode must not count, got %d", g.Episode())
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := New(Config{Agent: &stubAgent{}, NEpisodes: 1}); err == nil {
		t.Fatal("expected error without environment")
	}
	if _, err := New(Config{Env: &fixedEnv{maxSteps: 1}, NEpisodes: 1}); err == nil {
		t.Fatal("expected error without agent")
	}
	if _, err := New(Config{Env: &fixedEnv{maxSteps: 1}, Agent: &stubAgent{}}); err == nil {
		t.Fatal("expected error without episode budget")
	}
}
