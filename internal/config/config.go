package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full run configuration. Every field has a default; a
// zero-value Config normalizes to a small but complete training run.
type Config struct {
	RunName string        `yaml:"run_name"`
	Env     EnvConfig     `yaml:"env"`
	Agent   AgentConfig   `yaml:"agent"`
	Rollout RolloutConfig `yaml:"rollout"`
	Harness HarnessConfig `yaml:"harness"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type EnvConfig struct {
	Name       string  `yaml:"name"`
	ArenaSize  float64 `yaml:"arena_size"`
	GoalRadius float64 `yaml:"goal_radius"`
	MaxSteps   int     `yaml:"max_steps"`
	Seed       int64   `yaml:"seed"`
}

type AgentConfig struct {
	Gamma          float64 `yaml:"gamma"`
	Tau            float64 `yaml:"tau"`
	ActorLR        float64 `yaml:"actor_lr"`
	CriticLR       float64 `yaml:"critic_lr"`
	BatchSize      int     `yaml:"batch_size"`
	ReplayCapacity int     `yaml:"replay_capacity"`
	NoiseSigma     float64 `yaml:"noise_sigma"`
	Seed           int64   `yaml:"seed"`
}

type RolloutConfig struct {
	Render           bool `yaml:"render"`
	TrainCyclesPerTS int  `yaml:"train_cycles_per_ts"`
	PeriodicCkpt     int  `yaml:"periodic_ckpt"`
	SaveBest         bool `yaml:"save_best"`
	NEpisodes        int  `yaml:"n_episodes"`
	StepSleepMS      int  `yaml:"step_sleep_ms"`
}

// StepSleep is the eval-mode stepping throttle.
func (r RolloutConfig) StepSleep() time.Duration {
	return time.Duration(r.StepSleepMS) * time.Millisecond
}

type HarnessConfig struct {
	EvalEvery     int  `yaml:"eval_every"`
	EvalRuns      int  `yaml:"eval_runs"`
	BatchRemember bool `yaml:"batch_remember"`
}

type StoreConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	JSONLPath string `yaml:"jsonl_path"`
}

func Default() Config {
	return normalize(Config{})
}

// Load reads a yaml config file and fills defaults for absent fields.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg = normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func normalize(cfg Config) Config {
	if cfg.RunName == "" {
		cfg.RunName = "g2g"
	}
	if cfg.Env.Name == "" {
		cfg.Env.Name = "go-to-goal"
	}
	if cfg.Agent.Gamma == 0 {
		cfg.Agent.Gamma = 0.98
	}
	if cfg.Agent.Tau == 0 {
		cfg.Agent.Tau = 0.05
	}
	if cfg.Agent.ActorLR == 0 {
		cfg.Agent.ActorLR = 1e-3
	}
	if cfg.Agent.CriticLR == 0 {
		cfg.Agent.CriticLR = 1e-3
	}
	if cfg.Agent.BatchSize == 0 {
		cfg.Agent.BatchSize = 64
	}
	if cfg.Agent.ReplayCapacity == 0 {
		cfg.Agent.ReplayCapacity = 100000
	}
	if cfg.Agent.NoiseSigma == 0 {
		cfg.Agent.NoiseSigma = 0.1
	}
	if cfg.Rollout.TrainCyclesPerTS == 0 {
		cfg.Rollout.TrainCyclesPerTS = 1
	}
	if cfg.Rollout.NEpisodes == 0 {
		cfg.Rollout.NEpisodes = 100
	}
	if cfg.Harness.EvalEvery == 0 {
		cfg.Harness.EvalEvery = 20
	}
	if cfg.Harness.EvalRuns == 0 {
		cfg.Harness.EvalRuns = 5
	}
	if cfg.Store.Kind == "" {
		cfg.Store.Kind = "memory"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "goal2goal.db"
	}
	return cfg
}

func (c Config) Validate() error {
	if c.Rollout.NEpisodes < 0 {
		return fmt.Errorf("n_episodes must be non-negative, got %d", c.Rollout.NEpisodes)
	}
	if c.Rollout.TrainCyclesPerTS < 0 {
		return fmt.Errorf("train_cycles_per_ts must be non-negative, got %d", c.Rollout.TrainCyclesPerTS)
	}
	if c.Rollout.PeriodicCkpt < 0 {
		return fmt.Errorf("periodic_ckpt must be non-negative, got %d", c.Rollout.PeriodicCkpt)
	}
	if c.Harness.EvalEvery < 0 || c.Harness.EvalRuns < 0 {
		return fmt.Errorf("eval_every and eval_runs must be non-negative")
	}
	if c.Agent.Gamma <= 0 || c.Agent.Gamma >= 1 {
		return fmt.Errorf("gamma must be in (0, 1), got %f", c.Agent.Gamma)
	}
	switch c.Store.Kind {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unsupported store kind: %s", c.Store.Kind)
	}
	return nil
}
