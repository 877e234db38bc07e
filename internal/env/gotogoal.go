package env

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// GoToGoalConfig parameterizes the planar go-to-goal task.
type GoToGoalConfig struct {
	ArenaSize  float64
	GoalRadius float64
	MaxSteps   int
	Dt         float64
	MaxLinear  float64
	MaxAngular float64
	Seed       int64
}

func defaultGoToGoalConfig() GoToGoalConfig {
	return GoToGoalConfig{
		ArenaSize:  10.0,
		GoalRadius: 0.25,
		MaxSteps:   200,
		Dt:         1.0,
		MaxLinear:  0.2,
		MaxAngular: math.Pi / 4,
	}
}

func normalizeGoToGoalConfig(cfg GoToGoalConfig) GoToGoalConfig {
	def := defaultGoToGoalConfig()
	if cfg.ArenaSize <= 0 {
		cfg.ArenaSize = def.ArenaSize
	}
	if cfg.GoalRadius <= 0 {
		cfg.GoalRadius = def.GoalRadius
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = def.MaxSteps
	}
	if cfg.Dt <= 0 {
		cfg.Dt = def.Dt
	}
	if cfg.MaxLinear <= 0 {
		cfg.MaxLinear = def.MaxLinear
	}
	if cfg.MaxAngular <= 0 {
		cfg.MaxAngular = def.MaxAngular
	}
	return cfg
}

// GoToGoal is a unicycle-kinematics navigation task: the agent steers a
// planar robot toward a goal sampled inside a square arena. Actions are
// (linear velocity, angular velocity) in environment units; reward is the
// negative euclidean distance to the goal, and an episode succeeds when
// the robot enters the goal radius.
type GoToGoal struct {
	cfg GoToGoalConfig
	rng *rand.Rand

	x, y, theta float64
	goal        []float64
	resetDone   bool
}

func NewGoToGoal(cfg GoToGoalConfig) *GoToGoal {
	cfg = normalizeGoToGoalConfig(cfg)
	return &GoToGoal{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (g *GoToGoal) Name() string { return "go-to-goal" }

func (g *GoToGoal) MaxEpisodeSteps() int { return g.cfg.MaxSteps }

func (g *GoToGoal) Reset() (Observation, error) {
	half := g.cfg.ArenaSize / 2
	g.x = 0
	g.y = 0
	g.theta = g.rng.Float64()*2*math.Pi - math.Pi
	g.goal = []float64{
		g.rng.Float64()*g.cfg.ArenaSize - half,
		g.rng.Float64()*g.cfg.ArenaSize - half,
	}
	g.resetDone = true
	return g.observe(), nil
}

func (g *GoToGoal) Step(action []float64) (Observation, float64, bool, Info, error) {
	if !g.resetDone {
		return Observation{}, 0, false, Info{}, errors.New("step before reset")
	}
	if len(action) != 2 {
		return Observation{}, 0, false, Info{},
			fmt.Errorf("go-to-goal requires a 2-dim action, got %d", len(action))
	}

	v := clamp(action[0], 0, g.cfg.MaxLinear)
	w := clamp(action[1], -g.cfg.MaxAngular, g.cfg.MaxAngular)

	g.theta = wrapAngle(g.theta + w*g.cfg.Dt)
	g.x += v * math.Cos(g.theta) * g.cfg.Dt
	g.y += v * math.Sin(g.theta) * g.cfg.Dt

	dist := g.CurrentDistance()
	success := dist < g.cfg.GoalRadius
	reward := -dist

	return g.observe(), reward, success, Info{IsSuccess: success, Dist: dist}, nil
}

// CurrentDistance reports the euclidean distance from the robot to the goal.
func (g *GoToGoal) CurrentDistance() float64 {
	return floats.Distance([]float64{g.x, g.y}, g.goal, 2)
}

func (g *GoToGoal) Render() {
	fmt.Printf("pose=(%.3f, %.3f, %.3f) goal=(%.3f, %.3f) dist=%.3f\n",
		g.x, g.y, g.theta, g.goal[0], g.goal[1], g.CurrentDistance())
}

func (g *GoToGoal) observe() Observation {
	return Observation{
		Observation:  []float64{g.x, g.y, math.Cos(g.theta), math.Sin(g.theta)},
		DesiredGoal:  []float64{g.goal[0], g.goal[1]},
		AchievedGoal: []float64{g.x, g.y},
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
