package agent

import "goal2goal/internal/model"

// Agent is the learning side of the rollout loop.
type Agent interface {
	// Step selects an action for a flattened goal-conditioned input. It
	// returns the executable action, the raw deterministic policy output,
	// and the critic's value estimate for the chosen action. Exploration
	// noise is applied only when explore is true.
	Step(obs []float64, explore bool) (action, raw []float64, q float64, err error)

	// Remember stores one transition in the agent's replay memory.
	Remember(tr model.Transition) error

	// Train performs one optimization step against the replay memory.
	Train() error

	// Snapshot and Restore serialize the trainable parameters.
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}
