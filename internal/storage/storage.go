// Package storage owns the service's two directories: a temp directory of
// per-job workspaces holding fetched assets, and an output directory of
// finished artifacts named by job ID. It defines the Store port and
// implementations for local disk and local-disk-plus-S3.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrS3NotConfigured is returned when an upload is requested but the
// deployment has no S3 configuration.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// Artifact describes one finished output file on disk.
type Artifact struct {
	// JobID is derived from the file name.
	JobID string
	// Path is the absolute location of the artifact.
	Path string
	// ModTime is the artifact's last modification time, used by the
	// retention sweeper as the age of record when no in-memory job exists.
	ModTime time.Time
	// Size in bytes.
	Size int64
}

// Store defines file storage for render jobs.
type Store interface {
	// Workspace creates (if needed) and returns the scratch directory for
	// a job. Fetched assets live here for the duration of the render.
	Workspace(ctx context.Context, jobID string) (string, error)

	// CleanupWorkspace removes a job's scratch directory and everything in
	// it. Missing directories are not an error.
	CleanupWorkspace(ctx context.Context, jobID string) error

	// OutputPath returns the deterministic artifact location for a job ID.
	// It does not touch the disk.
	OutputPath(jobID string) string

	// StatOutput reports the artifact for a job ID, or an error satisfying
	// os.IsNotExist if none exists.
	StatOutput(jobID string) (Artifact, error)

	// RemoveOutput deletes a job's artifact. Missing files are not an error.
	RemoveOutput(ctx context.Context, jobID string) error

	// ListOutputs returns every artifact currently in the output
	// directory, including ones left by a previous process.
	ListOutputs(ctx context.Context) ([]Artifact, error)

	// Upload copies a job's artifact to S3 and returns its public URL.
	// Returns ErrS3NotConfigured when the deployment has no S3.
	Upload(ctx context.Context, jobID string) (string, error)
}
