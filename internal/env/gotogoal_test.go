package env

import (
	"math"
	"testing"
)

func TestGoToGoalResetShapes(t *testing.T) {
	g := NewGoToGoal(GoToGoalConfig{Seed: 7})
	obs, err := g.Reset()
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(obs.Observation) != 4 {
		t.Fatalf("expected 4-dim observation, got %d", len(obs.Observation))
	}
	if len(obs.DesiredGoal) != 2 || len(obs.AchievedGoal) != 2 {
		t.Fatalf("expected 2-dim goals, got %d and %d",
			len(obs.DesiredGoal), len(obs.AchievedGoal))
	}
	flat := obs.Flat()
	if len(flat) != 6 {
		t.Fatalf("expected 6-dim flat input, got %d", len(flat))
	}
}

func TestGoToGoalDeterministicUnderSeed(t *testing.T) {
	a := NewGoToGoal(GoToGoalConfig{Seed: 42})
	b := NewGoToGoal(GoToGoalConfig{Seed: 42})
	obsA, _ := a.Reset()
	obsB, _ := b.Reset()
	for i := range obsA.DesiredGoal {
		if obsA.DesiredGoal[i] != obsB.DesiredGoal[i] {
			t.Fatalf("seeded resets disagree: %v vs %v", obsA.DesiredGoal, obsB.DesiredGoal)
		}
	}
}

func TestGoToGoalStepBeforeResetFails(t *testing.T) {
	g := NewGoToGoal(GoToGoalConfig{})
	if _, _, _, _, err := g.Step([]float64{0.1, 0}); err == nil {
		t.Fatal("expected error stepping before reset")
	}
}

func TestGoToGoalRewardIsNegativeDistance(t *testing.T) {
	g := NewGoToGoal(GoToGoalConfig{Seed: 3})
	if _, err := g.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	_, reward, _, info, err := g.Step([]float64{0.1, 0.05})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if math.Abs(reward+info.Dist) > 1e-12 {
		t.Fatalf("expected reward == -dist, got reward=%f dist=%f", reward, info.Dist)
	}
	if info.Dist != g.CurrentDistance() {
		t.Fatalf("info dist %f disagrees with CurrentDistance %f", info.Dist, g.CurrentDistance())
	}
}

func TestGoToGoalRejectsBadActionDims(t *testing.T) {
	g := NewGoToGoal(GoToGoalConfig{})
	if _, err := g.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, _, _, _, err := g.Step([]float64{0.1}); err == nil {
		t.Fatal("expected error for 1-dim action")
	}
}

func TestGoToGoalSucceedsInsideGoalRadius(t *testing.T) {
	g := NewGoToGoal(GoToGoalConfig{Seed: 11, GoalRadius: 100})
	if _, err := g.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	_, _, done, info, err := g.Step([]float64{0.1, 0})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !done || !info.IsSuccess {
		t.Fatalf("expected success inside giant goal radius, done=%v info=%+v", done, info)
	}
}
