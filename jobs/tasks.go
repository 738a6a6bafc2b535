package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNewBusinessWarmup pre-warms new-business dashboard caches.
	TaskNewBusinessWarmup = "newbusiness:warmup"
)

// WarmupPayload scopes one cache warmup run.
type WarmupPayload struct {
	// AsOf is the reporting end date (2006-01-02); empty means today.
	AsOf string `json:"as_of,omitempty"`
	// LookbackYears overrides the indexed history depth; zero means the
	// service default.
	LookbackYears int `json:"lookback_years,omitempty"`
}

// NewWarmupTask constructs an Asynq task for a warmup run.
func NewWarmupTask(payload WarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNewBusinessWarmup, data), nil
}
