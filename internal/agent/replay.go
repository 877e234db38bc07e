package agent

import (
	"math/rand"

	"goal2goal/internal/model"
)

// Replay is a fixed-capacity ring buffer of transitions with uniform
// sampling. Not safe for concurrent use; the control loop is sequential.
type Replay struct {
	buf  []model.Transition
	next int
	full bool
	rng  *rand.Rand
}

func NewReplay(capacity int, seed int64) *Replay {
	if capacity <= 0 {
		capacity = 1
	}
	return &Replay{
		buf: make([]model.Transition, capacity),
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (r *Replay) Add(tr model.Transition) {
	r.buf[r.next] = tr
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *Replay) Len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Sample draws n transitions uniformly with replacement.
func (r *Replay) Sample(n int) []model.Transition {
	size := r.Len()
	if size == 0 || n <= 0 {
		return nil
	}
	out := make([]model.Transition, n)
	for i := range out {
		out[i] = r.buf[r.rng.Intn(size)]
	}
	return out
}
