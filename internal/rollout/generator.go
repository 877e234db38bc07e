package rollout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"goal2goal/internal/agent"
	"goal2goal/internal/env"
	"goal2goal/internal/metrics"
	"goal2goal/internal/model"
)

// Saver persists an agent snapshot under a checkpoint category. The score
// is the running mean reward at save time.
type Saver interface {
	Save(ctx context.Context, category model.CheckpointCategory, episode int, score float64) error
}

// Config bundles the collaborators and knobs of a Generator. Env, Agent
// and NEpisodes are required; Saver, Sink, Scaler and Out are optional.
type Config struct {
	Env   env.Environment
	Agent agent.Agent
	Saver Saver
	Sink  metrics.Sink
	Out   io.Writer

	// Scaler, when set, maps the agent's bounded outputs to environment
	// action ranges before stepping. Transitions always record the
	// actor's raw output; noise and scaling only shape what the
	// environment executes.
	Scaler *env.ActionScaler

	Name             string
	Eval             bool
	Render           bool
	TrainCyclesPerTS int
	PeriodicCkpt     int
	SaveBest         bool
	NEpisodes        int
	StepSleep        time.Duration
}

func normalizeConfig(cfg Config) Config {
	if cfg.TrainCyclesPerTS <= 0 {
		cfg.TrainCyclesPerTS = 1
	}
	if cfg.Name == "" {
		if cfg.Eval {
			cfg.Name = "EVAL_ROLLOUT"
		} else {
			cfg.Name = "TRAIN_ROLLOUT"
		}
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return cfg
}

// Generator drives one episode of agent-environment interaction per
// Generate call, accumulates run statistics, reports summaries, and
// applies the checkpoint policy.
type Generator struct {
	cfg Config

	episode     int
	evalCounter int
	rTotal      float64
	qTotal      float64
	tSteps      int
	success     int
	meanR       float64
	meanQ       float64
	bestScore   float64
	loggedFinal bool
}

func New(cfg Config) (*Generator, error) {
	if cfg.Env == nil {
		return nil, errors.New("rollout generator requires an environment")
	}
	if cfg.Agent == nil {
		return nil, errors.New("rollout generator requires an agent")
	}
	if cfg.NEpisodes <= 0 {
		return nil, fmt.Errorf("rollout generator requires a positive episode budget, got %d", cfg.NEpisodes)
	}
	g := &Generator{cfg: normalizeConfig(cfg)}
	g.Reset()
	return g, nil
}

// Reset clears the accumulated run statistics. The eval summary counter
// survives resets so that consecutive evaluation rounds extend a single
// continuous series instead of rewriting the same step keys.
func (g *Generator) Reset() {
	g.episode = 0
	g.rTotal = 0
	g.qTotal = 0
	g.tSteps = 0
	g.success = 0
	g.meanR = 0
	g.meanQ = 0
	g.loggedFinal = false
}

// Generate runs exactly one episode: reset, step until the environment
// terminates or the per-episode cap is hit, record every transition, and
// train the agent in non-eval mode. Failures propagate unmodified.
func (g *Generator) Generate(ctx context.Context) error {
	obs, err := g.cfg.Env.Reset()
	if err != nil {
		return fmt.Errorf("env reset: %w", err)
	}

	var episodicR, episodicQ float64
	var info env.Info
	t := 0
	done := false

	minDist := math.Inf(1)
	if m, ok := g.cfg.Env.(interface{ CurrentDistance() float64 }); ok {
		minDist = m.CurrentDistance()
	}

	for !done && t < g.cfg.Env.MaxEpisodeSteps() {
		if err := ctx.Err(); err != nil {
			return err
		}

		action, raw, q, err := g.cfg.Agent.Step(obs.Flat(), !g.cfg.Eval)
		if err != nil {
			return fmt.Errorf("agent step: %w", err)
		}

		envAction := action
		if g.cfg.Scaler != nil {
			envAction, err = g.cfg.Scaler.Scale(action)
			if err != nil {
				return fmt.Errorf("scale action: %w", err)
			}
		}

		next, reward, stepDone, stepInfo, err := g.cfg.Env.Step(envAction)
		if err != nil {
			return fmt.Errorf("env step: %w", err)
		}

		if err := g.cfg.Agent.Remember(model.Transition{
			Observation:     obs.Observation,
			DesiredGoal:     obs.DesiredGoal,
			AchievedGoal:    obs.AchievedGoal,
			Action:          raw,
			Reward:          reward,
			NextObservation: next.Observation,
			NextDesiredGoal: next.DesiredGoal,
			Done:            boolToFlag(stepDone),
		}); err != nil {
			return fmt.Errorf("agent remember: %w", err)
		}

		obs = next
		done = stepDone
		info = stepInfo
		if stepInfo.Dist < minDist {
			minDist = stepInfo.Dist
		}

		if g.cfg.Render {
			g.cfg.Env.Render()
		}

		t++
		episodicR += reward
		episodicQ += q

		if !g.cfg.Eval && !done && g.cfg.Sink != nil && len(envAction) >= 2 {
			step := g.episode*g.cfg.Env.MaxEpisodeSteps() + t - 1
			if err := g.cfg.Sink.Scalar(ctx, "run/l_velocity", step, envAction[0]); err != nil {
				return fmt.Errorf("write step summary: %w", err)
			}
			if err := g.cfg.Sink.Scalar(ctx, "run/a_velocity", step, envAction[1]); err != nil {
				return fmt.Errorf("write step summary: %w", err)
			}
			if err := g.cfg.Sink.Scalar(ctx, "run/meanQ", step, episodicQ/float64(t)); err != nil {
				return fmt.Errorf("write step summary: %w", err)
			}
		}

		if !g.cfg.Eval {
			for i := 0; i < g.cfg.TrainCyclesPerTS; i++ {
				if err := g.cfg.Agent.Train(); err != nil {
					return fmt.Errorf("agent train: %w", err)
				}
			}
		} else if g.cfg.StepSleep > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.cfg.StepSleep):
			}
		}
	}

	g.episode++
	g.updateStats(episodicQ, episodicR, t)

	if g.cfg.Sink != nil {
		counter := g.episode
		if g.cfg.Eval {
			g.evalCounter++
			counter = g.evalCounter
		}
		if err := g.cfg.Sink.Scalar(ctx, g.cfg.Name+"/episodic_r", counter, episodicR); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
		if err := g.cfg.Sink.Scalar(ctx, g.cfg.Name+"/episodic_q", counter, episodicQ); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if !g.cfg.Eval {
		fmt.Fprintf(g.cfg.Out, "| [%s] Episode: %4d | Reward: %7.3f | Q: %8.3f | T: %3d | MIND: %5.3f |\n",
			g.cfg.Name, g.episode, episodicR, episodicQ, t, minDist)
	}

	if info.IsSuccess {
		g.success++
		fmt.Fprintf(g.cfg.Out, "[%s] reached goal at episode %d\n", g.cfg.Name, g.episode)
	}

	return g.createCheckpoint(ctx)
}

// createCheckpoint applies the checkpoint policy: a periodic save whenever
// the configured periodicity divides the episode count, and in eval mode
// with SaveBest a save whenever the running mean reward strictly exceeds
// the best score so far.
func (g *Generator) createCheckpoint(ctx context.Context) error {
	if g.cfg.Saver == nil {
		return nil
	}
	if g.cfg.PeriodicCkpt > 0 && g.episode%g.cfg.PeriodicCkpt == 0 {
		if err := g.cfg.Saver.Save(ctx, model.CheckpointPeriodic, g.episode, g.meanR); err != nil {
			return fmt.Errorf("periodic checkpoint: %w", err)
		}
	}
	if g.cfg.Eval && g.cfg.SaveBest && g.meanR > g.bestScore {
		if err := g.cfg.Saver.Save(ctx, model.CheckpointBest, g.episode, g.meanR); err != nil {
			return fmt.Errorf("best checkpoint: %w", err)
		}
		fmt.Fprintf(g.cfg.Out, "[%s] new best score: %.3f\n", g.cfg.Name, g.meanR)
		g.bestScore = g.meanR
	}
	return nil
}

// Done reports whether the episode budget is exhausted. It is monotonic:
// the episode counter only grows. The first time it turns true in eval
// mode it prints the final summary.
func (g *Generator) Done() bool {
	done := g.episode >= g.cfg.NEpisodes
	if done && g.cfg.Eval && !g.loggedFinal {
		fmt.Fprintf(g.cfg.Out,
			"[%s] mean reward: %.3f | mean q: %.3f | timesteps: %d | success rate: %.1f%%\n",
			g.cfg.Name, g.meanR, g.meanQ, g.tSteps,
			100*float64(g.success)/float64(g.cfg.NEpisodes))
		g.loggedFinal = true
	}
	return done
}

func (g *Generator) updateStats(episodicQ, episodicR float64, t int) {
	g.qTotal += episodicQ
	g.rTotal += episodicR
	g.tSteps += t
	g.meanQ = g.qTotal / float64(g.episode)
	g.meanR = g.rTotal / float64(g.episode)
}

// Episode reports how many episodes have completed.
func (g *Generator) Episode() int { return g.episode }

// MeanReward is the running mean episodic reward.
func (g *Generator) MeanReward() float64 { return g.meanR }

// MeanQ is the running mean episodic Q estimate.
func (g *Generator) MeanQ() float64 { return g.meanQ }

// TotalSteps is the cumulative step count across episodes.
func (g *Generator) TotalSteps() int { return g.tSteps }

// SuccessCount reports how many episodes ended at the goal.
func (g *Generator) SuccessCount() int { return g.success }

// BestScore is the best running mean reward that produced a checkpoint.
func (g *Generator) BestScore() float64 { return g.bestScore }

func boolToFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}
