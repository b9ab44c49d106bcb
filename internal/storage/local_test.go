package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/clipforge/render-api/internal/job/id"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	base := t.TempDir()
	s, err := NewLocalStore(filepath.Join(base, "work"), filepath.Join(base, "out"))
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	return s
}

func TestNewLocalStore_CreatesDirectories(t *testing.T) {
	s := newTestStore(t)
	for _, dir := range []string{s.TempDir(), s.OutputDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestWorkspace(t *testing.T) {
	s := newTestStore(t)
	jobID := id.Generate()

	dir, err := s.Workspace(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Workspace failed: %v", err)
	}
	if filepath.Dir(dir) != s.TempDir() {
		t.Errorf("workspace %s not under temp dir %s", dir, s.TempDir())
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("workspace not created: %v", err)
	}

	// Second call returns the same directory.
	again, err := s.Workspace(context.Background(), jobID)
	if err != nil {
		t.Fatalf("second Workspace call failed: %v", err)
	}
	if again != dir {
		t.Errorf("workspace not stable: %s vs %s", again, dir)
	}
}

func TestWorkspace_RejectsInvalidID(t *testing.T) {
	s := newTestStore(t)
	for _, bad := range []string{"", "../../etc", "job-..", "not-a-job"} {
		if _, err := s.Workspace(context.Background(), bad); err == nil {
			t.Errorf("expected error for job ID %q", bad)
		}
	}
}

func TestCleanupWorkspace(t *testing.T) {
	s := newTestStore(t)
	jobID := id.Generate()

	dir, err := s.Workspace(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Workspace failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "video.mp4"), []byte("data"), 0600); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	if err := s.CleanupWorkspace(context.Background(), jobID); err != nil {
		t.Fatalf("CleanupWorkspace failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("workspace still exists after cleanup")
	}

	// Cleaning an already-removed workspace is fine.
	if err := s.CleanupWorkspace(context.Background(), jobID); err != nil {
		t.Errorf("repeat cleanup failed: %v", err)
	}
}

func TestOutputLifecycle(t *testing.T) {
	s := newTestStore(t)
	jobID := id.Generate()

	path := s.OutputPath(jobID)
	if filepath.Dir(path) != s.OutputDir() {
		t.Errorf("output path %s not under output dir", path)
	}

	if _, err := s.StatOutput(jobID); !os.IsNotExist(err) {
		t.Errorf("expected not-exist before write, got %v", err)
	}

	if err := os.WriteFile(path, []byte("encoded video"), 0600); err != nil {
		t.Fatalf("write output: %v", err)
	}

	art, err := s.StatOutput(jobID)
	if err != nil {
		t.Fatalf("StatOutput failed: %v", err)
	}
	if art.JobID != jobID || art.Path != path || art.Size != int64(len("encoded video")) {
		t.Errorf("unexpected artifact: %+v", art)
	}

	if err := s.RemoveOutput(context.Background(), jobID); err != nil {
		t.Fatalf("RemoveOutput failed: %v", err)
	}
	if _, err := s.StatOutput(jobID); !os.IsNotExist(err) {
		t.Error("artifact still exists after removal")
	}
	if err := s.RemoveOutput(context.Background(), jobID); err != nil {
		t.Errorf("repeat removal failed: %v", err)
	}
}

func TestListOutputs(t *testing.T) {
	s := newTestStore(t)

	first := id.Generate()
	second := id.Generate()
	for _, jobID := range []string{first, second} {
		if err := os.WriteFile(s.OutputPath(jobID), []byte("x"), 0600); err != nil {
			t.Fatalf("write output: %v", err)
		}
	}
	// Stray files in the output directory must be ignored.
	if err := os.WriteFile(filepath.Join(s.OutputDir(), "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	arts, err := s.ListOutputs(context.Background())
	if err != nil {
		t.Fatalf("ListOutputs failed: %v", err)
	}
	if len(arts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(arts))
	}
	seen := map[string]bool{}
	for _, a := range arts {
		seen[a.JobID] = true
	}
	if !seen[first] || !seen[second] {
		t.Errorf("missing artifacts in listing: %v", seen)
	}
}

func TestLocalStore_UploadNotConfigured(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Upload(context.Background(), id.Generate())
	if !errors.Is(err, ErrS3NotConfigured) {
		t.Errorf("expected ErrS3NotConfigured, got %v", err)
	}
}
