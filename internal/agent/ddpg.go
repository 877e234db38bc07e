package agent

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"goal2goal/internal/model"
)

// DDPGConfig holds the hyperparameters of the linear deterministic-policy
// agent. Zero values are replaced with defaults.
type DDPGConfig struct {
	ObsDim         int
	GoalDim        int
	ActionDim      int
	Gamma          float64
	Tau            float64
	ActorLR        float64
	CriticLR       float64
	BatchSize      int
	ReplayCapacity int
	NoiseSigma     float64
	Seed           int64
}

func defaultDDPGConfig() DDPGConfig {
	return DDPGConfig{
		Gamma:          0.98,
		Tau:            0.05,
		ActorLR:        1e-3,
		CriticLR:       1e-3,
		BatchSize:      64,
		ReplayCapacity: 100000,
		NoiseSigma:     0.1,
	}
}

func normalizeDDPGConfig(cfg DDPGConfig) DDPGConfig {
	def := defaultDDPGConfig()
	if cfg.Gamma <= 0 || cfg.Gamma >= 1 {
		cfg.Gamma = def.Gamma
	}
	if cfg.Tau <= 0 || cfg.Tau > 1 {
		cfg.Tau = def.Tau
	}
	if cfg.ActorLR <= 0 {
		cfg.ActorLR = def.ActorLR
	}
	if cfg.CriticLR <= 0 {
		cfg.CriticLR = def.CriticLR
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.ReplayCapacity <= 0 {
		cfg.ReplayCapacity = def.ReplayCapacity
	}
	if cfg.NoiseSigma <= 0 {
		cfg.NoiseSigma = def.NoiseSigma
	}
	return cfg
}

// DDPG is a deterministic-policy agent on linear function approximation:
// a tanh-squashed linear actor and a linear critic over the concatenated
// (input, action) features, each with a Polyak-averaged target copy, and
// a uniform replay buffer. It is deliberately framework-free; parameters
// live in gonum matrices and serialize to JSON for checkpoints.
type DDPG struct {
	cfg    DDPGConfig
	inDim  int
	rng    *rand.Rand
	replay *Replay

	actorW  *mat.Dense
	actorB  []float64
	criticW []float64
	criticB float64

	targetActorW  *mat.Dense
	targetActorB  []float64
	targetCriticW []float64
	targetCriticB float64
}

func NewDDPG(cfg DDPGConfig) (*DDPG, error) {
	cfg = normalizeDDPGConfig(cfg)
	if cfg.ObsDim <= 0 || cfg.ActionDim <= 0 {
		return nil, fmt.Errorf("ddpg requires positive dims, got obs=%d action=%d",
			cfg.ObsDim, cfg.ActionDim)
	}
	inDim := cfg.ObsDim + cfg.GoalDim
	rng := rand.New(rand.NewSource(cfg.Seed))

	d := &DDPG{
		cfg:    cfg,
		inDim:  inDim,
		rng:    rng,
		replay: NewReplay(cfg.ReplayCapacity, cfg.Seed+1),

		actorW:  randDense(rng, cfg.ActionDim, inDim, 0.1),
		actorB:  make([]float64, cfg.ActionDim),
		criticW: randSlice(rng, inDim+cfg.ActionDim, 0.1),
	}
	d.targetActorW = mat.DenseCopyOf(d.actorW)
	d.targetActorB = append([]float64(nil), d.actorB...)
	d.targetCriticW = append([]float64(nil), d.criticW...)
	d.targetCriticB = d.criticB
	return d, nil
}

func (d *DDPG) Step(obs []float64, explore bool) ([]float64, []float64, float64, error) {
	if len(obs) != d.inDim {
		return nil, nil, 0, fmt.Errorf("ddpg wants %d-dim input, got %d", d.inDim, len(obs))
	}
	raw := actorForward(d.actorW, d.actorB, obs)
	action := append([]float64(nil), raw...)
	if explore {
		for i := range action {
			action[i] = clip1(action[i] + d.rng.NormFloat64()*d.cfg.NoiseSigma)
		}
	}
	q := criticForward(d.criticW, d.criticB, obs, action)
	return action, raw, q, nil
}

func (d *DDPG) Remember(tr model.Transition) error {
	d.replay.Add(tr)
	return nil
}

// Train runs one critic TD(0) step and one deterministic policy-gradient
// actor step on a sampled batch, then Polyak-averages the targets. It is
// a no-op until the replay holds a full batch.
func (d *DDPG) Train() error {
	if d.replay.Len() < d.cfg.BatchSize {
		return nil
	}
	batch := d.replay.Sample(d.cfg.BatchSize)
	n := float64(len(batch))

	criticGradW := make([]float64, len(d.criticW))
	var criticGradB float64
	actorGradW := mat.NewDense(d.cfg.ActionDim, d.inDim, nil)
	actorGradB := make([]float64, d.cfg.ActionDim)

	for _, tr := range batch {
		x := flatInput(tr.Observation, tr.DesiredGoal)
		x2 := flatInput(tr.NextObservation, tr.NextDesiredGoal)
		if len(x) != d.inDim || len(x2) != d.inDim {
			return fmt.Errorf("transition input dims %d/%d, want %d", len(x), len(x2), d.inDim)
		}

		// Critic target from the frozen copies.
		nextAction := actorForward(d.targetActorW, d.targetActorB, x2)
		qNext := criticForward(d.targetCriticW, d.targetCriticB, x2, nextAction)
		y := tr.Reward + d.cfg.Gamma*(1-float64(tr.Done))*qNext

		q := criticForward(d.criticW, d.criticB, x, tr.Action)
		delta := y - q
		phi := append(append([]float64(nil), x...), tr.Action...)
		floats.AddScaled(criticGradW, delta, phi)
		criticGradB += delta

		// Policy gradient: for a linear critic, dQ/da is the action slice
		// of the critic weights; chain through the tanh squash.
		a := actorForward(d.actorW, d.actorB, x)
		dQda := d.criticW[d.inDim:]
		for k := 0; k < d.cfg.ActionDim; k++ {
			g := dQda[k] * (1 - a[k]*a[k])
			row := actorGradW.RawRowView(k)
			floats.AddScaled(row, g, x)
			actorGradB[k] += g
		}
	}

	floats.AddScaled(d.criticW, d.cfg.CriticLR/n, criticGradW)
	d.criticB += d.cfg.CriticLR / n * criticGradB
	d.actorW.Add(d.actorW, scaled(actorGradW, d.cfg.ActorLR/n))
	floats.AddScaled(d.actorB, d.cfg.ActorLR/n, actorGradB)

	d.polyak()
	return nil
}

func (d *DDPG) polyak() {
	tau := d.cfg.Tau
	blend := func(target, online []float64) {
		for i := range target {
			target[i] = (1-tau)*target[i] + tau*online[i]
		}
	}
	blend(d.targetActorW.RawMatrix().Data, d.actorW.RawMatrix().Data)
	blend(d.targetActorB, d.actorB)
	blend(d.targetCriticW, d.criticW)
	d.targetCriticB = (1-tau)*d.targetCriticB + tau*d.criticB
}

// ReplaySize reports how many transitions the agent currently holds.
func (d *DDPG) ReplaySize() int { return d.replay.Len() }

type ddpgSnapshot struct {
	model.VersionedRecord
	ObsDim    int       `json:"obs_dim"`
	GoalDim   int       `json:"goal_dim"`
	ActionDim int       `json:"action_dim"`
	ActorW    []float64 `json:"actor_w"`
	ActorB    []float64 `json:"actor_b"`
	CriticW   []float64 `json:"critic_w"`
	CriticB   float64   `json:"critic_b"`
}

func (d *DDPG) Snapshot() ([]byte, error) {
	snap := ddpgSnapshot{
		VersionedRecord: model.VersionedRecord{SchemaVersion: 1, CodecVersion: 1},
		ObsDim:          d.cfg.ObsDim,
		GoalDim:         d.cfg.GoalDim,
		ActionDim:       d.cfg.ActionDim,
		ActorW:          append([]float64(nil), d.actorW.RawMatrix().Data...),
		ActorB:          append([]float64(nil), d.actorB...),
		CriticW:         append([]float64(nil), d.criticW...),
		CriticB:         d.criticB,
	}
	return json.Marshal(snap)
}

func (d *DDPG) Restore(data []byte) error {
	var snap ddpgSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.ObsDim != d.cfg.ObsDim || snap.GoalDim != d.cfg.GoalDim ||
		snap.ActionDim != d.cfg.ActionDim {
		return fmt.Errorf("snapshot dims (%d,%d,%d) do not match agent (%d,%d,%d)",
			snap.ObsDim, snap.GoalDim, snap.ActionDim,
			d.cfg.ObsDim, d.cfg.GoalDim, d.cfg.ActionDim)
	}
	if len(snap.ActorW) != d.cfg.ActionDim*d.inDim ||
		len(snap.CriticW) != d.inDim+d.cfg.ActionDim {
		return fmt.Errorf("snapshot weight sizes do not match agent shape")
	}
	d.actorW = mat.NewDense(d.cfg.ActionDim, d.inDim, append([]float64(nil), snap.ActorW...))
	d.actorB = append([]float64(nil), snap.ActorB...)
	d.criticW = append([]float64(nil), snap.CriticW...)
	d.criticB = snap.CriticB
	d.targetActorW = mat.DenseCopyOf(d.actorW)
	d.targetActorB = append([]float64(nil), d.actorB...)
	d.targetCriticW = append([]float64(nil), d.criticW...)
	d.targetCriticB = d.criticB
	return nil
}

func actorForward(w *mat.Dense, b []float64, x []float64) []float64 {
	rows, _ := w.Dims()
	out := make([]float64, rows)
	for k := 0; k < rows; k++ {
		out[k] = math.Tanh(floats.Dot(w.RawRowView(k), x) + b[k])
	}
	return out
}

func criticForward(w []float64, b float64, x, action []float64) float64 {
	return floats.Dot(w[:len(x)], x) + floats.Dot(w[len(x):], action) + b
}

func flatInput(obs, goal []float64) []float64 {
	return append(append([]float64(nil), obs...), goal...)
}

func randDense(rng *rand.Rand, rows, cols int, scale float64) *mat.Dense {
	return mat.NewDense(rows, cols, randSlice(rng, rows*cols, scale))
}

func randSlice(rng *rand.Rand, n int, scale float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64() * scale
	}
	return out
}

func scaled(m *mat.Dense, alpha float64) *mat.Dense {
	var out mat.Dense
	out.Scale(alpha, m)
	return &out
}

func clip1(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
