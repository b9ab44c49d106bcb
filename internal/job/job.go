// Package job provides the render job aggregate: the state machine a job
// moves through, the immutable parameter snapshot it carries, and the
// repository port used to store it.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/clipforge/render-api/internal/job/id"
	"github.com/clipforge/render-api/internal/pipeline"
)

// Status represents the current state of a render job.
type Status string

const (
	// StatusQueued indicates the job is waiting for a concurrency slot.
	StatusQueued Status = "queued"
	// StatusProcessing indicates the job is being executed by a worker.
	StatusProcessing Status = "processing"
	// StatusDone indicates the job finished and its output exists on disk.
	StatusDone Status = "done"
	// StatusError indicates the job failed; Error carries the diagnostic.
	StatusError Status = "error"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
// Terminal states are absorbing; a job never re-enters the queue.
var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing, StatusError},
	StatusProcessing: {StatusDone, StatusError},
	StatusDone:       {},
	StatusError:      {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Params is the immutable request snapshot a job is created with.
// It is owned exclusively by the job and never mutated after creation.
type Params struct {
	// VideoURL is the remote location of the source video. Required.
	VideoURL string
	// AudioURL is the remote location of the narration track. Required.
	AudioURL string
	// SubtitlesURL is the optional remote location of a subtitle file.
	SubtitlesURL string
	// MusicURL is the optional remote location of a background music track.
	MusicURL string
	// Effects are the normalized rendering parameters.
	Effects pipeline.Params
	// Upload requests an S3 upload of the finished artifact when the
	// deployment has S3 configured.
	Upload bool
}

// Job represents a single render job. All state mutation happens through
// methods holding the internal mutex; readers get Clone()d snapshots.
// Each job is executed by at most one worker, so there are no concurrent
// writers beyond the heartbeat, which only touches UpdatedAt.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Params is the immutable request snapshot.
	Params Params
	// OutputPath is where the finished artifact lives. It is derived
	// deterministically from the ID at submission time so result queries
	// can consult the disk even after the in-memory record is gone.
	OutputPath string
	// ResultURL is the S3 URL of the artifact, set only when the job
	// requested an upload and the deployment has S3 configured.
	ResultURL string
	// Error is the last failure description, present only in the error state.
	Error string
	// CreatedAt is when the job was submitted.
	CreatedAt time.Time
	// UpdatedAt is refreshed on every transition and by the worker
	// heartbeat while processing, so pollers can spot stalled jobs.
	UpdatedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a job in the queued state with a generated ID.
func New(params Params, outputPath string) *Job {
	now := time.Now()
	return &Job{
		ID:         id.Generate(),
		Status:     StatusQueued,
		Params:     params,
		OutputPath: outputPath,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusDone, StatusError:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from queued to processing.
func (j *Job) Start() error {
	return j.TransitionTo(StatusProcessing)
}

// Complete transitions the job to done.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusDone)
}

// Fail transitions the job to the error state with a diagnostic message.
// A rejected transition leaves the job untouched, diagnostic included.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, StatusError) {
		return ErrInvalidTransition
	}

	j.Status = StatusError
	j.Error = errMsg
	j.UpdatedAt = time.Now()
	j.CompletedAt = j.UpdatedAt
	return nil
}

// Heartbeat refreshes UpdatedAt while the job is processing. It is a
// no-op in any other state.
func (j *Job) Heartbeat() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == StatusProcessing {
		j.UpdatedAt = time.Now()
	}
}

// SetResultURL records the S3 URL of the uploaded artifact.
func (j *Job) SetResultURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ResultURL = url
	j.UpdatedAt = time.Now()
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusDone || j.Status == StatusError
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		Status:      j.Status,
		Params:      j.Params,
		OutputPath:  j.OutputPath,
		ResultURL:   j.ResultURL,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		CompletedAt: j.CompletedAt,
	}
}
