package storage

import (
	"context"

	"goal2goal/internal/model"
)

// Store defines persistence operations for runs, checkpoints and metric
// samples. Checkpoints are written by the rollout loop and only ever read
// back through the CLI or a restore.
type Store interface {
	Init(ctx context.Context) error
	SaveCheckpoint(ctx context.Context, ckpt model.Checkpoint) error
	GetCheckpoint(ctx context.Context, runID string, category model.CheckpointCategory, episode int) (model.Checkpoint, bool, error)
	LatestCheckpoint(ctx context.Context, runID string) (model.Checkpoint, bool, error)
	ListCheckpoints(ctx context.Context, runID string) ([]model.Checkpoint, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	AppendMetric(ctx context.Context, sample model.MetricSample) error
	GetMetrics(ctx context.Context, runID, tag string) ([]model.MetricSample, error)
}
