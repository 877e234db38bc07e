package storage

import (
	"context"
	"sort"
	"sync"

	"goal2goal/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	checkpoints map[string][]model.Checkpoint
	runs        map[string]model.RunRecord
	metrics     map[string][]model.MetricSample
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.checkpoints = make(map[string][]model.Checkpoint)
	s.runs = make(map[string]model.RunRecord)
	s.metrics = make(map[string][]model.MetricSample)
	return nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, ckpt model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.checkpoints[ckpt.RunID]
	for i, existing := range list {
		if existing.Category == ckpt.Category && existing.Episode == ckpt.Episode {
			list[i] = ckpt
			return nil
		}
	}
	s.checkpoints[ckpt.RunID] = append(list, ckpt)
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, runID string, category model.CheckpointCategory, episode int) (model.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ckpt := range s.checkpoints[runID] {
		if ckpt.Category == category && ckpt.Episode == episode {
			return ckpt, true, nil
		}
	}
	return model.Checkpoint{}, false, nil
}

func (s *MemoryStore) LatestCheckpoint(_ context.Context, runID string) (model.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best model.Checkpoint
	found := false
	for _, ckpt := range s.checkpoints[runID] {
		if !found || ckpt.Episode > best.Episode {
			best = ckpt
			found = true
		}
	}
	return best, found, nil
}

func (s *MemoryStore) ListCheckpoints(_ context.Context, runID string) ([]model.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]model.Checkpoint(nil), s.checkpoints[runID]...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Episode != out[j].Episode {
			return out[i].Episode < out[j].Episode
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryStore) AppendMetric(_ context.Context, sample model.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics[sample.RunID] = append(s.metrics[sample.RunID], sample)
	return nil
}

func (s *MemoryStore) GetMetrics(_ context.Context, runID, tag string) ([]model.MetricSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.MetricSample
	for _, sample := range s.metrics[runID] {
		if tag == "" || sample.Tag == tag {
			out = append(out, sample)
		}
	}
	return out, nil
}
