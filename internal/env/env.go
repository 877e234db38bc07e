package env

// Observation is a goal-conditioned observation triple.
type Observation struct {
	Observation  []float64
	DesiredGoal  []float64
	AchievedGoal []float64
}

// Flat returns the observation concatenated with the desired goal, the
// input layout goal-conditioned agents consume.
func (o Observation) Flat() []float64 {
	flat := make([]float64, 0, len(o.Observation)+len(o.DesiredGoal))
	flat = append(flat, o.Observation...)
	flat = append(flat, o.DesiredGoal...)
	return flat
}

// Info carries per-step metadata reported by an environment.
type Info struct {
	IsSuccess bool
	Dist      float64
}

// Environment is the episodic goal-environment contract. A terminal step
// reports done=true; callers must Reset before stepping again.
type Environment interface {
	Name() string
	Reset() (Observation, error)
	Step(action []float64) (Observation, float64, bool, Info, error)
	Render()
	MaxEpisodeSteps() int
}
