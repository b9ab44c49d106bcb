package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryRepository_SaveAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	j := newTestJob()
	if err := repo.Save(ctx, j); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	found, err := repo.FindByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.ID != j.ID {
		t.Errorf("expected ID %s, got %s", j.ID, found.ID)
	}
	if found.Status != StatusQueued {
		t.Errorf("expected status %s, got %s", StatusQueued, found.Status)
	}
}

func TestMemoryRepository_FindNotFound(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.FindByID(context.Background(), "job-0000")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_SaveStoresSnapshot(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	j := newTestJob()
	if err := repo.Save(ctx, j); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Worker mutations after Save must not be visible until re-saved.
	if err := j.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	found, err := repo.FindByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.Status != StatusQueued {
		t.Errorf("stored snapshot changed without a Save: %s", found.Status)
	}

	if err := repo.Save(ctx, j); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	found, err = repo.FindByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.Status != StatusProcessing {
		t.Errorf("expected %s after re-save, got %s", StatusProcessing, found.Status)
	}
}

func TestMemoryRepository_FindReturnsClone(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	j := newTestJob()
	if err := repo.Save(ctx, j); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	found, _ := repo.FindByID(ctx, j.ID)
	found.Status = StatusError

	again, _ := repo.FindByID(ctx, j.ID)
	if again.Status != StatusQueued {
		t.Error("mutating a returned job affected the stored copy")
	}
}

func TestMemoryRepository_ListOldestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first := newTestJob()
	first.CreatedAt = time.Now().Add(-2 * time.Hour)
	second := newTestJob()
	second.CreatedAt = time.Now().Add(-time.Hour)
	third := newTestJob()

	for _, j := range []*Job{third, first, second} {
		if err := repo.Save(ctx, j); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	jobs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID || jobs[1].ID != second.ID || jobs[2].ID != third.ID {
		t.Error("jobs not ordered oldest first")
	}
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	j := newTestJob()
	if err := repo.Save(ctx, j); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := repo.Delete(ctx, j.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.FindByID(ctx, j.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, j.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound for repeat delete, got %v", err)
	}
}

func TestMemoryRepository_ConcurrentAccess(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j := newTestJob()
			if err := repo.Save(ctx, j); err != nil {
				t.Errorf("Save failed: %v", err)
				return
			}
			if _, err := repo.FindByID(ctx, j.ID); err != nil {
				t.Errorf("FindByID failed: %v", err)
			}
			if _, err := repo.List(ctx); err != nil {
				t.Errorf("List failed: %v", err)
			}
		}()
	}
	wg.Wait()

	jobs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 20 {
		t.Errorf("expected 20 jobs, got %d", len(jobs))
	}
}
