package agent

import (
	"testing"

	"goal2goal/internal/model"
)

func TestReplayWrapsAtCapacity(t *testing.T) {
	r := NewReplay(3, 1)
	for i := 0; i < 5; i++ {
		r.Add(model.Transition{Reward: float64(i)})
	}
	if r.Len() != 3 {
		t.Fatalf("expected len 3 after wrap, got %d", r.Len())
	}
	seen := map[float64]bool{}
	for _, tr := range r.Sample(100) {
		seen[tr.Reward] = true
	}
	for _, stale := range []float64{0, 1} {
		if seen[stale] {
			t.Fatalf("sampled evicted transition with reward %v", stale)
		}
	}
}

func TestReplaySampleEmpty(t *testing.T) {
	r := NewReplay(4, 1)
	if got := r.Sample(2); got != nil {
		t.Fatalf("expected nil sample from empty buffer, got %v", got)
	}
}

func TestReplaySampleSize(t *testing.T) {
	r := NewReplay(8, 1)
	r.Add(model.Transition{Reward: 1})
	if got := len(r.Sample(5)); got != 5 {
		t.Fatalf("expected 5 samples with replacement, got %d", got)
	}
}
