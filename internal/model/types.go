package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Transition is one recorded step of experience. Field order mirrors the
// replay tuple: observation, desired goal, achieved goal, action, reward,
// next observation, next desired goal, done flag.
type Transition struct {
	Observation     []float64 `json:"observation"`
	DesiredGoal     []float64 `json:"desired_goal"`
	AchievedGoal    []float64 `json:"achieved_goal"`
	Action          []float64 `json:"action"`
	Reward          float64   `json:"reward"`
	NextObservation []float64 `json:"next_observation"`
	NextDesiredGoal []float64 `json:"next_desired_goal"`
	Done            int       `json:"done"`
}

type CheckpointCategory string

const (
	CheckpointPeriodic CheckpointCategory = "P"
	CheckpointBest     CheckpointCategory = "B"
)

// Checkpoint is a persisted snapshot of agent parameters. Identity is
// (run, category, episode), matching the {category}_{episode} naming used
// by file-based savers.
type Checkpoint struct {
	VersionedRecord
	RunID     string             `json:"run_id"`
	Category  CheckpointCategory `json:"category"`
	Episode   int                `json:"episode"`
	Score     float64            `json:"score"`
	Payload   []byte             `json:"payload"`
	CreatedAt time.Time          `json:"created_at"`
}

// RunRecord summarizes one completed training or evaluation run.
type RunRecord struct {
	VersionedRecord
	ID          string    `json:"id"`
	Env         string    `json:"env"`
	Mode        string    `json:"mode"`
	Episodes    int       `json:"episodes"`
	TotalSteps  int       `json:"total_steps"`
	MeanReward  float64   `json:"mean_reward"`
	MeanQ       float64   `json:"mean_q"`
	SuccessRate float64   `json:"success_rate"`
	BestScore   float64   `json:"best_score"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// MetricSample is one scalar summary value keyed by a step counter.
type MetricSample struct {
	RunID string  `json:"run_id"`
	Tag   string  `json:"tag"`
	Step  int     `json:"step"`
	Value float64 `json:"value"`
}
