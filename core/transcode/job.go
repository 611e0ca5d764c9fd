package transcode

import (
	"context"
	"errors"
	"sync"
	"time"
)

// JobState is the lifecycle of one EncodeJob.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Terminal reports whether s is succeeded or failed.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// EncodeJob wraps a single rendition encode and reports exactly one terminal outcome.
type EncodeJob struct {
	req     EncodeRequest
	encoder Encoder
	timeout time.Duration

	mu       sync.Mutex
	state    JobState
	err      error
	started  time.Time
	finished time.Time
}

// NewEncodeJob creates a pending job. timeout <= 0 means no deadline.
func NewEncodeJob(encoder Encoder, req EncodeRequest, timeout time.Duration) *EncodeJob {
	return &EncodeJob{
		req:     req,
		encoder: encoder,
		timeout: timeout,
		state:   JobPending,
	}
}

// Rendition returns the target rendition.
func (j *EncodeJob) Rendition() Rendition {
	return j.req.Rendition
}

// State returns the current state.
func (j *EncodeJob) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the failure, if any.
func (j *EncodeJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Duration is the wall time of a finished job.
func (j *EncodeJob) Duration() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished.IsZero() {
		return 0
	}
	return j.finished.Sub(j.started)
}

// Run invokes the encoder once and returns the terminal state. A failure,
// including an expired deadline, is reported as *EncodeError.
func (j *EncodeJob) Run(ctx context.Context) (JobState, error) {
	j.mu.Lock()
	if j.state != JobPending {
		j.mu.Unlock()
		return "", ErrJobAlreadyRun
	}
	j.state = JobRunning
	j.started = time.Now()
	j.mu.Unlock()

	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	err := j.encoder.Encode(ctx, j.req)
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// The engine returned cleanly but only after the deadline passed.
		err = ctx.Err()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = time.Now()
	if err != nil {
		j.state = JobFailed
		j.err = &EncodeError{Rendition: j.req.Rendition.Name(), Err: err}
		return j.state, j.err
	}
	j.state = JobSucceeded
	return j.state, nil
}
