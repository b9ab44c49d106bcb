package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipforge/render-api/internal/job/id"
)

// outputExt is the artifact container extension. The encoder always
// produces MP4, so the extension is fixed rather than negotiated.
const outputExt = ".mp4"

// Compile-time check that LocalStore implements Store.
var _ Store = (*LocalStore)(nil)

// LocalStore implements Store on the local filesystem. Workspaces live
// under tempDir/<jobID>/, artifacts under outputDir/<jobID>.mp4. S3
// uploads are not supported unless wrapped with S3Store.
type LocalStore struct {
	tempDir   string
	outputDir string
}

// NewLocalStore creates a LocalStore. Empty directories default to
// subdirectories of os.TempDir(). Both directories are created if missing.
func NewLocalStore(tempDir, outputDir string) (*LocalStore, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "clipforge", "work")
	}
	if outputDir == "" {
		outputDir = filepath.Join(os.TempDir(), "clipforge", "out")
	}

	for _, dir := range []string{tempDir, outputDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return &LocalStore{tempDir: tempDir, outputDir: outputDir}, nil
}

// TempDir returns the workspace root.
func (s *LocalStore) TempDir() string {
	return s.tempDir
}

// OutputDir returns the artifact directory.
func (s *LocalStore) OutputDir() string {
	return s.outputDir
}

// Workspace creates and returns the scratch directory for a job.
// The job ID is validated before it touches a path.
func (s *LocalStore) Workspace(ctx context.Context, jobID string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if !id.Valid(jobID) {
		return "", fmt.Errorf("invalid job ID %q", jobID)
	}

	dir := filepath.Join(s.tempDir, jobID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// CleanupWorkspace removes a job's scratch directory. Best effort in the
// sense that a missing directory is fine, but real removal failures are
// reported so the caller can log them.
func (s *LocalStore) CleanupWorkspace(_ context.Context, jobID string) error {
	if !id.Valid(jobID) {
		return fmt.Errorf("invalid job ID %q", jobID)
	}
	if err := os.RemoveAll(filepath.Join(s.tempDir, jobID)); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

// OutputPath returns the deterministic artifact location for a job ID.
func (s *LocalStore) OutputPath(jobID string) string {
	return filepath.Join(s.outputDir, jobID+outputExt)
}

// StatOutput reports the artifact for a job ID.
func (s *LocalStore) StatOutput(jobID string) (Artifact, error) {
	if !id.Valid(jobID) {
		return Artifact{}, os.ErrNotExist
	}
	path := s.OutputPath(jobID)
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{JobID: jobID, Path: path, ModTime: info.ModTime(), Size: info.Size()}, nil
}

// RemoveOutput deletes a job's artifact.
func (s *LocalStore) RemoveOutput(_ context.Context, jobID string) error {
	if !id.Valid(jobID) {
		return fmt.Errorf("invalid job ID %q", jobID)
	}
	if err := os.Remove(s.OutputPath(jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove output: %w", err)
	}
	return nil
}

// ListOutputs returns every artifact in the output directory. Files that
// do not look like job artifacts are skipped.
func (s *LocalStore) ListOutputs(ctx context.Context) ([]Artifact, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	var result []Artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		jobID := strings.TrimSuffix(e.Name(), outputExt)
		if jobID == e.Name() || !id.Valid(jobID) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		result = append(result, Artifact{
			JobID:   jobID,
			Path:    filepath.Join(s.outputDir, e.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	return result, nil
}

// Upload is not supported by LocalStore and returns ErrS3NotConfigured.
func (s *LocalStore) Upload(_ context.Context, _ string) (string, error) {
	return "", ErrS3NotConfigured
}
