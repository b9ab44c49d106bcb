package job

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestJob() *Job {
	return New(Params{
		VideoURL: "https://example.com/video.mp4",
		AudioURL: "https://example.com/narration.mp3",
	}, "/var/renders/out.mp4")
}

func TestNew(t *testing.T) {
	j := newTestJob()

	if j.ID == "" {
		t.Error("expected non-empty ID")
	}
	if !strings.HasPrefix(j.ID, "job-") {
		t.Errorf("expected ID with job- prefix, got %s", j.ID)
	}
	if j.Status != StatusQueued {
		t.Errorf("expected status %s, got %s", StatusQueued, j.Status)
	}
	if j.OutputPath != "/var/renders/out.mp4" {
		t.Errorf("unexpected output path %s", j.OutputPath)
	}
	if j.CreatedAt.IsZero() || j.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
	if !j.CompletedAt.IsZero() {
		t.Error("CompletedAt must be zero before the job finishes")
	}
}

func TestUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		j := newTestJob()
		if seen[j.ID] {
			t.Fatalf("duplicate ID generated: %s", j.ID)
		}
		seen[j.ID] = true
	}
}

func TestLifecycle(t *testing.T) {
	j := newTestJob()

	if err := j.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if j.GetStatus() != StatusProcessing {
		t.Errorf("expected %s, got %s", StatusProcessing, j.GetStatus())
	}
	if j.IsTerminal() {
		t.Error("processing job must not be terminal")
	}

	if err := j.Complete(); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if j.GetStatus() != StatusDone {
		t.Errorf("expected %s, got %s", StatusDone, j.GetStatus())
	}
	if !j.IsTerminal() {
		t.Error("done job must be terminal")
	}
	if j.CompletedAt.IsZero() {
		t.Error("CompletedAt must be set on completion")
	}
}

func TestFail(t *testing.T) {
	j := newTestJob()
	if err := j.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := j.Fail("source video: upstream returned 404"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if j.GetStatus() != StatusError {
		t.Errorf("expected %s, got %s", StatusError, j.GetStatus())
	}
	if j.Error != "source video: upstream returned 404" {
		t.Errorf("unexpected error message: %s", j.Error)
	}
	if j.CompletedAt.IsZero() {
		t.Error("CompletedAt must be set on failure")
	}
}

func TestFailFromQueued(t *testing.T) {
	// Validation failures kill a job before any worker picks it up.
	j := newTestJob()
	if err := j.Fail("rejected"); err != nil {
		t.Fatalf("Fail from queued failed: %v", err)
	}
	if j.GetStatus() != StatusError {
		t.Errorf("expected %s, got %s", StatusError, j.GetStatus())
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
	}{
		{"queued to done", StatusQueued, StatusDone},
		{"done to processing", StatusDone, StatusProcessing},
		{"done to error", StatusDone, StatusError},
		{"error to processing", StatusError, StatusProcessing},
		{"error to done", StatusError, StatusDone},
		{"processing to queued", StatusProcessing, StatusQueued},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newTestJob()
			j.Status = tt.from
			err := j.TransitionTo(tt.to)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestTerminalStatesAbsorb(t *testing.T) {
	j := newTestJob()
	if err := j.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := j.Complete(); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := j.Fail("too late"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition after completion, got %v", err)
	}
	if j.GetStatus() != StatusDone {
		t.Errorf("terminal status changed to %s", j.GetStatus())
	}
	if got := j.Clone().Error; got != "" {
		t.Errorf("rejected Fail must not record a diagnostic, got %q", got)
	}
}

func TestHeartbeat(t *testing.T) {
	j := newTestJob()
	if err := j.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	before := j.Clone().UpdatedAt
	time.Sleep(5 * time.Millisecond)
	j.Heartbeat()
	if !j.Clone().UpdatedAt.After(before) {
		t.Error("heartbeat must refresh UpdatedAt while processing")
	}

	if err := j.Complete(); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	done := j.Clone().UpdatedAt
	time.Sleep(5 * time.Millisecond)
	j.Heartbeat()
	if !j.Clone().UpdatedAt.Equal(done) {
		t.Error("heartbeat must be a no-op on a terminal job")
	}
}

func TestSetResultURL(t *testing.T) {
	j := newTestJob()
	j.SetResultURL("https://bucket.s3.amazonaws.com/out.mp4")
	if j.Clone().ResultURL != "https://bucket.s3.amazonaws.com/out.mp4" {
		t.Error("result URL not recorded")
	}
}

func TestClone(t *testing.T) {
	j := newTestJob()
	if err := j.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	c := j.Clone()
	if c.ID != j.ID || c.Status != j.Status || c.OutputPath != j.OutputPath {
		t.Error("clone fields differ from original")
	}

	// Mutating the clone must not leak into the original.
	c.Status = StatusError
	c.Error = "clone only"
	if j.GetStatus() != StatusProcessing {
		t.Error("mutating the clone affected the original")
	}
	if j.Error != "" {
		t.Error("mutating the clone leaked an error message")
	}
}
