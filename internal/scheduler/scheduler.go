// Package scheduler owns job execution: a FIFO queue drained by a
// dispatcher under a concurrency limit, the per-job render run, and the
// retention sweeper that expires finished work. Submission returns
// immediately; everything after happens on scheduler goroutines.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clipforge/render-api/internal/job"
	"github.com/clipforge/render-api/internal/pipeline"
	"github.com/clipforge/render-api/internal/storage"
)

// ErrQueueFull is returned by Submit when the backlog is at capacity.
var ErrQueueFull = errors.New("scheduler: job queue is full")

// Fetcher downloads one remote asset to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string, allowedTypes []string) error
}

// Transcoder runs a pipeline graph and produces one output file.
type Transcoder interface {
	Execute(ctx context.Context, g *pipeline.Graph, in pipeline.Inputs, enc pipeline.EncodeParams, output string) error
}

// Options tunes scheduler behavior. Zero values fall back to defaults.
type Options struct {
	// MaxConcurrentJobs bounds how many renders run at once.
	MaxConcurrentJobs int
	// QueueSize bounds the submission backlog.
	QueueSize int
	// JobTimeout caps a whole job run: fetches plus up to two transcodes.
	JobTimeout time.Duration
	// HeartbeatInterval is how often a processing job's UpdatedAt is refreshed.
	HeartbeatInterval time.Duration
	// FallbackEnabled allows one retry with the reduced pipeline after a
	// resource-exhausted transcode.
	FallbackEnabled bool
	// MaxThreads caps the encoder threads of every job, whatever the
	// submission asked for. Zero means no cap beyond normalization.
	MaxThreads int
	// Retention is how long finished artifacts and job records are kept.
	Retention time.Duration
	// ErrorRetention is the shorter window for failed job records.
	ErrorRetention time.Duration
	// SweepInterval is how often the retention sweeper runs.
	SweepInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrentJobs < 1 {
		o.MaxConcurrentJobs = 1
	}
	if o.QueueSize < 1 {
		o.QueueSize = 64
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 30 * time.Minute
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 15 * time.Second
	}
	if o.Retention <= 0 {
		o.Retention = time.Hour
	}
	if o.ErrorRetention <= 0 {
		o.ErrorRetention = 10 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
}

// Stats is a point-in-time view of scheduler load.
type Stats struct {
	QueueDepth int `json:"queue_depth"`
	InFlight   int `json:"in_flight"`
}

// Scheduler coordinates job execution.
type Scheduler struct {
	repo       job.Repository
	store      storage.Store
	fetcher    Fetcher
	transcoder Transcoder
	logger     *slog.Logger
	opts       Options

	queue    chan *job.Job
	sem      chan struct{}
	inFlight atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler. Start must be called before submitted jobs run.
func New(repo job.Repository, store storage.Store, fetcher Fetcher, transcoder Transcoder, logger *slog.Logger, opts Options) *Scheduler {
	opts.applyDefaults()
	return &Scheduler{
		repo:       repo,
		store:      store,
		fetcher:    fetcher,
		transcoder: transcoder,
		logger:     logger,
		opts:       opts,
		queue:      make(chan *job.Job, opts.QueueSize),
		sem:        make(chan struct{}, opts.MaxConcurrentJobs),
	}
}

// Start launches the dispatcher and the retention sweeper.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go s.dispatch(ctx)
	go s.sweepLoop(ctx)
}

// Stop cancels all running work and waits for scheduler goroutines to
// exit. Jobs interrupted mid-run end in the error state; queued jobs are
// simply lost with the in-memory index.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

// Submit validates nothing beyond what the job carries: params are
// normalized by the caller. It creates the job, pins its output path to
// the deterministic per-ID location, persists it and enqueues it.
func (s *Scheduler) Submit(ctx context.Context, params job.Params) (*job.Job, error) {
	s.capThreads(&params)
	j := job.New(params, "")
	j.OutputPath = s.store.OutputPath(j.ID)

	if err := s.repo.Save(ctx, j); err != nil {
		return nil, err
	}

	select {
	case s.queue <- j:
		return j.Clone(), nil
	default:
		_ = s.repo.Delete(ctx, j.ID)
		return nil, ErrQueueFull
	}
}

// RenderSync runs a job to completion on the caller's goroutine, bound to
// the caller's context: if the client goes away the render is killed and
// its leftovers cleaned up. It waits for a concurrency slot like any
// queued job, so synchronous renders cannot oversubscribe the host.
func (s *Scheduler) RenderSync(ctx context.Context, params job.Params) (*job.Job, error) {
	s.capThreads(&params)
	j := job.New(params, "")
	j.OutputPath = s.store.OutputPath(j.ID)

	if err := s.repo.Save(ctx, j); err != nil {
		return nil, err
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		_ = s.repo.Delete(context.Background(), j.ID)
		return nil, ctx.Err()
	}
	defer func() { <-s.sem }()

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	s.process(ctx, j)
	return j.Clone(), nil
}

// capThreads applies the operator-configured thread ceiling to a job's
// encoder parameters.
func (s *Scheduler) capThreads(params *job.Params) {
	if s.opts.MaxThreads > 0 && params.Effects.Encode.Threads > s.opts.MaxThreads {
		params.Effects.Encode.Threads = s.opts.MaxThreads
	}
}

// Stats reports current queue depth and in-flight renders.
func (s *Scheduler) Stats() Stats {
	return Stats{
		QueueDepth: len(s.queue),
		InFlight:   int(s.inFlight.Load()),
	}
}

// dispatch drains the queue in FIFO order, holding each job until a
// concurrency slot frees up.
func (s *Scheduler) dispatch(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			select {
			case s.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			s.wg.Add(1)
			go func(j *job.Job) {
				defer s.wg.Done()
				defer func() { <-s.sem }()

				s.inFlight.Add(1)
				defer s.inFlight.Add(-1)

				s.process(ctx, j)
			}(j)
		}
	}
}

// sweepLoop periodically expires finished jobs and orphaned artifacts.
func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce applies the retention policy. Finished jobs expire after
// Retention, failed ones after the shorter ErrorRetention. Artifacts with
// no job record, left behind by a previous process, expire by file age.
func (s *Scheduler) sweepOnce(ctx context.Context) {
	now := time.Now()

	jobs, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Warn("retention sweep: list jobs", "error", err)
		return
	}

	known := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		known[j.ID] = true

		if j.Status != job.StatusDone && j.Status != job.StatusError {
			continue
		}
		ttl := s.opts.Retention
		if j.Status == job.StatusError {
			ttl = s.opts.ErrorRetention
		}
		if now.Sub(j.CompletedAt) < ttl {
			continue
		}

		if err := s.store.RemoveOutput(ctx, j.ID); err != nil {
			s.logger.Warn("retention sweep: remove output", "job_id", j.ID, "error", err)
		}
		if err := s.store.CleanupWorkspace(ctx, j.ID); err != nil {
			s.logger.Warn("retention sweep: cleanup workspace", "job_id", j.ID, "error", err)
		}
		if err := s.repo.Delete(ctx, j.ID); err != nil && !errors.Is(err, job.ErrJobNotFound) {
			s.logger.Warn("retention sweep: delete job", "job_id", j.ID, "error", err)
		}
		s.logger.Info("expired job swept", "job_id", j.ID, "status", j.Status)
	}

	arts, err := s.store.ListOutputs(ctx)
	if err != nil {
		s.logger.Warn("retention sweep: list outputs", "error", err)
		return
	}
	for _, a := range arts {
		if known[a.JobID] || now.Sub(a.ModTime) < s.opts.Retention {
			continue
		}
		if err := s.store.RemoveOutput(ctx, a.JobID); err != nil {
			s.logger.Warn("retention sweep: remove orphan", "job_id", a.JobID, "error", err)
			continue
		}
		s.logger.Info("orphaned artifact swept", "job_id", a.JobID)
	}
}
