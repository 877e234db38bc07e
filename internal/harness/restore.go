package harness

import (
	"context"
	"fmt"

	"goal2goal/internal/agent"
	"goal2goal/internal/model"
	"goal2goal/internal/storage"
)

// RestoreLatest loads the most recent checkpoint of a run into the agent.
func RestoreLatest(ctx context.Context, store storage.Store, runID string, ag agent.Agent) (model.Checkpoint, error) {
	ckpt, ok, err := store.LatestCheckpoint(ctx, runID)
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return model.Checkpoint{}, fmt.Errorf("run %s has no checkpoints", runID)
	}
	if err := ag.Restore(ckpt.Payload); err != nil {
		return model.Checkpoint{}, fmt.Errorf("restore agent from %s_%d: %w", ckpt.Category, ckpt.Episode, err)
	}
	return ckpt, nil
}
