package metrics

import (
	"context"
	"sort"
	"sync"

	"goal2goal/internal/model"
	"goal2goal/internal/storage"
)

// Sink receives scalar summary values keyed by a step counter. The rollout
// core only ever talks to this interface.
type Sink interface {
	Scalar(ctx context.Context, tag string, step int, value float64) error
	Flush() error
}

// MemorySink buffers samples in memory, for tests and for report/export
// rendering.
type MemorySink struct {
	mu      sync.Mutex
	samples map[string][]model.MetricSample
}

func NewMemorySink() *MemorySink {
	return &MemorySink{samples: make(map[string][]model.MetricSample)}
}

func (m *MemorySink) Scalar(_ context.Context, tag string, step int, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples[tag] = append(m.samples[tag], model.MetricSample{Tag: tag, Step: step, Value: value})
	return nil
}

func (m *MemorySink) Flush() error { return nil }

// Series returns the recorded samples for one tag, in append order.
func (m *MemorySink) Series(tag string) []model.MetricSample {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]model.MetricSample(nil), m.samples[tag]...)
}

// Tags returns the recorded tag names, sorted.
func (m *MemorySink) Tags() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.samples))
	for tag := range m.samples {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// All returns every recorded series keyed by tag.
func (m *MemorySink) All() map[string][]model.MetricSample {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]model.MetricSample, len(m.samples))
	for tag, series := range m.samples {
		out[tag] = append([]model.MetricSample(nil), series...)
	}
	return out
}

// StoreSink writes samples through to a storage backend under a run ID.
type StoreSink struct {
	store storage.Store
	runID string
}

func NewStoreSink(store storage.Store, runID string) *StoreSink {
	return &StoreSink{store: store, runID: runID}
}

func (s *StoreSink) Scalar(ctx context.Context, tag string, step int, value float64) error {
	return s.store.AppendMetric(ctx, model.MetricSample{
		RunID: s.runID,
		Tag:   tag,
		Step:  step,
		Value: value,
	})
}

func (s *StoreSink) Flush() error { return nil }

// MultiSink fans samples out to several sinks; the first error wins.
type MultiSink []Sink

func (m MultiSink) Scalar(ctx context.Context, tag string, step int, value float64) error {
	for _, sink := range m {
		if err := sink.Scalar(ctx, tag, step, value); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Flush() error {
	for _, sink := range m {
		if err := sink.Flush(); err != nil {
			return err
		}
	}
	return nil
}
