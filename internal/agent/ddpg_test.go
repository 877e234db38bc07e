package agent

import (
	"bytes"
	"testing"

	"goal2goal/internal/model"
)

func newTestDDPG(t *testing.T) *DDPG {
	t.Helper()
	d, err := NewDDPG(DDPGConfig{
		ObsDim:    4,
		GoalDim:   2,
		ActionDim: 2,
		BatchSize: 4,
		Seed:      9,
	})
	if err != nil {
		t.Fatalf("new ddpg: %v", err)
	}
	return d
}

func testInput() []float64 {
	return []float64{0.1, -0.2, 0.3, 0.4, -0.5, 0.6}
}

func TestDDPGStepShapesAndBounds(t *testing.T) {
	d := newTestDDPG(t)
	action, raw, _, err := d.Step(testInput(), true)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(action) != 2 || len(raw) != 2 {
		t.Fatalf("expected 2-dim action and raw, got %d and %d", len(action), len(raw))
	}
	for i, a := range action {
		if a < -1 || a > 1 {
			t.Fatalf("action[%d]=%f outside [-1,1]", i, a)
		}
	}
}

func TestDDPGStepDeterministicWithoutExploration(t *testing.T) {
	d := newTestDDPG(t)
	a1, raw1, q1, err := d.Step(testInput(), false)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	a2, raw2, q2, err := d.Step(testInput(), false)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	for i := range a1 {
		if a1[i] != a2[i] || raw1[i] != raw2[i] || a1[i] != raw1[i] {
			t.Fatalf("greedy steps disagree: %v/%v vs %v/%v", a1, raw1, a2, raw2)
		}
	}
	if q1 != q2 {
		t.Fatalf("greedy q estimates disagree: %f vs %f", q1, q2)
	}
}

func TestDDPGStepRejectsWrongDims(t *testing.T) {
	d := newTestDDPG(t)
	if _, _, _, err := d.Step([]float64{1, 2}, false); err == nil {
		t.Fatal("expected dim error")
	}
}

func TestDDPGTrainWaitsForFullBatch(t *testing.T) {
	d := newTestDDPG(t)
	before, err := d.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := d.Remember(sampleTransition(1.0)); err != nil {
		t.Fatalf("remember: %v", err)
	}
	if err := d.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}
	after, err := d.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("train below batch size must not touch parameters")
	}
}

func TestDDPGTrainUpdatesParameters(t *testing.T) {
	d := newTestDDPG(t)
	before, _ := d.Snapshot()
	for i := 0; i < 8; i++ {
		if err := d.Remember(sampleTransition(float64(i))); err != nil {
			t.Fatalf("remember: %v", err)
		}
	}
	if err := d.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}
	after, _ := d.Snapshot()
	if bytes.Equal(before, after) {
		t.Fatal("train with a full batch should update parameters")
	}
}

func TestDDPGSnapshotRoundTrip(t *testing.T) {
	d := newTestDDPG(t)
	snap, err := d.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	wantA, wantRaw, wantQ, _ := d.Step(testInput(), false)

	other := newTestDDPG(t)
	for i := 0; i < 8; i++ {
		_ = other.Remember(sampleTransition(float64(i)))
	}
	if err := other.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}
	if err := other.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	gotA, gotRaw, gotQ, _ := other.Step(testInput(), false)
	for i := range wantA {
		if gotA[i] != wantA[i] || gotRaw[i] != wantRaw[i] {
			t.Fatalf("restored policy disagrees: got %v/%v want %v/%v",
				gotA, gotRaw, wantA, wantRaw)
		}
	}
	if gotQ != wantQ {
		t.Fatalf("restored critic disagrees: got %f want %f", gotQ, wantQ)
	}
}

func TestDDPGRestoreRejectsShapeMismatch(t *testing.T) {
	d := newTestDDPG(t)
	other, err := NewDDPG(DDPGConfig{ObsDim: 2, GoalDim: 1, ActionDim: 1})
	if err != nil {
		t.Fatalf("new ddpg: %v", err)
	}
	snap, _ := other.Snapshot()
	if err := d.Restore(snap); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func sampleTransition(r float64) model.Transition {
	return model.Transition{
		Observation:     []float64{0.1, 0.2, 0.3, 0.4},
		DesiredGoal:     []float64{0.5, 0.6},
		AchievedGoal:    []float64{0.1, 0.2},
		Action:          []float64{0.3, -0.3},
		Reward:          r,
		NextObservation: []float64{0.2, 0.3, 0.4, 0.5},
		NextDesiredGoal: []float64{0.5, 0.6},
		Done:            0,
	}
}
