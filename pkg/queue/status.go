package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// statusTTL keeps finished job records around long enough for the UI to fetch the report.
const statusTTL = 7 * 24 * time.Hour

// ErrStatusNotFound is returned when no status is recorded for a job.
var ErrStatusNotFound = errors.New("job status not found")

// JobState is the coarse state of a background job.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
)

// JobStatus is what the API reports about a job.
type JobStatus struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	State     JobState        `json:"state"`
	Attempt   int             `json:"attempt"`
	Error     string          `json:"error,omitempty"`
	ReportKey string          `json:"report_key,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func statusKey(jobID string) string { return "job:status:" + jobID }

// SetStatus records the job status.
func (q *Queue) SetStatus(ctx context.Context, st JobStatus) error {
	st.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	return q.client.Set(ctx, statusKey(st.ID), raw, statusTTL).Err()
}

// GetStatus returns the recorded job status or ErrStatusNotFound.
func (q *Queue) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	raw, err := q.client.Get(ctx, statusKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStatusNotFound
		}
		return nil, err
	}
	var st JobStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("unmarshal status: %w", err)
	}
	return &st, nil
}
