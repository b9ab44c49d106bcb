package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"time"

	"github.com/clipforge/render-api/internal/job"
	"github.com/clipforge/render-api/internal/pipeline"
	"github.com/clipforge/render-api/internal/storage"
	"github.com/clipforge/render-api/internal/transcode"
)

// Allowed content-type substrings per asset kind. Octet-stream is accepted
// everywhere because object stores commonly serve media under it; HTML is
// rejected unconditionally by the fetcher.
var (
	videoContentTypes = []string{"video/", "application/octet-stream"}
	audioContentTypes = []string{"audio/", "video/", "application/octet-stream"}
)

// process runs one job end to end: fetch assets into the workspace, build
// and execute the pipeline, optionally retry with the fallback graph, then
// record the outcome. The workspace is removed on every path; a partial
// output is removed on failure.
func (s *Scheduler) process(ctx context.Context, j *job.Job) {
	log := s.logger.With("job_id", j.ID)

	if err := j.Start(); err != nil {
		log.Error("job start rejected", "error", err)
		return
	}
	s.save(j)
	log.Info("job started")

	jobCtx, cancel := context.WithTimeout(ctx, s.opts.JobTimeout)
	defer cancel()

	stopBeat := s.startHeartbeat(j)
	defer stopBeat()

	dir, err := s.store.Workspace(jobCtx, j.ID)
	if err != nil {
		s.fail(j, fmt.Sprintf("workspace: %v", err))
		return
	}
	defer func() {
		if err := s.store.CleanupWorkspace(context.Background(), j.ID); err != nil {
			log.Warn("workspace cleanup failed", "error", err)
		}
	}()

	in, err := s.fetchAssets(jobCtx, j.Params, dir)
	if err != nil {
		s.fail(j, err.Error())
		return
	}

	effects := j.Params.Effects
	graph, err := pipeline.Build(effects, in, pipeline.ModePrimary)
	if err != nil {
		s.fail(j, fmt.Sprintf("pipeline: %v", err))
		return
	}

	execErr := s.transcoder.Execute(jobCtx, graph, in, effects.Encode, j.OutputPath)
	if execErr != nil && errors.Is(execErr, transcode.ErrResourceExhausted) &&
		s.opts.FallbackEnabled && jobCtx.Err() == nil {
		log.Warn("transcode hit resource limits, retrying with reduced pipeline", "error", execErr)
		if err := s.store.RemoveOutput(jobCtx, j.ID); err != nil {
			log.Warn("remove partial output before retry", "error", err)
		}

		fallback, err := pipeline.Build(effects, in, pipeline.ModeFallback)
		if err != nil {
			s.fail(j, fmt.Sprintf("fallback pipeline: %v", err))
			return
		}
		execErr = s.transcoder.Execute(jobCtx, fallback, in, effects.Encode, j.OutputPath)
	}
	if execErr != nil {
		if err := s.store.RemoveOutput(context.Background(), j.ID); err != nil {
			log.Warn("remove partial output", "error", err)
		}
		s.fail(j, execErr.Error())
		return
	}

	if j.Params.Upload {
		url, err := s.store.Upload(jobCtx, j.ID)
		switch {
		case errors.Is(err, storage.ErrS3NotConfigured):
			log.Warn("upload requested but S3 is not configured")
		case err != nil:
			log.Warn("artifact upload failed, serving from local disk only", "error", err)
		default:
			j.SetResultURL(url)
			log.Info("artifact uploaded", "url", url)
		}
	}

	if err := j.Complete(); err != nil {
		log.Error("job completion rejected", "error", err)
		return
	}
	s.save(j)
	log.Info("job completed", "output", j.OutputPath)
}

// fetchAssets downloads the job's remote assets into the workspace
// sequentially, returning the local input set for the pipeline. The first
// failure aborts the job; its error names the asset.
func (s *Scheduler) fetchAssets(ctx context.Context, params job.Params, dir string) (pipeline.Inputs, error) {
	assets := []struct {
		label   string
		url     string
		name    string
		allowed []string
		dest    *string
	}{
		{"source video", params.VideoURL, "source" + assetExt(params.VideoURL, ".mp4"), videoContentTypes, nil},
		{"narration", params.AudioURL, "narration" + assetExt(params.AudioURL, ".mp3"), audioContentTypes, nil},
		{"subtitles", params.SubtitlesURL, "subtitles" + assetExt(params.SubtitlesURL, ".srt"), nil, nil},
		{"music", params.MusicURL, "music" + assetExt(params.MusicURL, ".mp3"), audioContentTypes, nil},
	}

	var in pipeline.Inputs
	assets[0].dest = &in.Video
	assets[1].dest = &in.Narration
	assets[2].dest = &in.Subtitles
	assets[3].dest = &in.Music

	for _, a := range assets {
		if a.url == "" {
			continue
		}
		dest := filepath.Join(dir, a.name)
		if err := s.fetcher.Fetch(ctx, a.url, dest, a.allowed); err != nil {
			return pipeline.Inputs{}, fmt.Errorf("%s: %w", a.label, err)
		}
		*a.dest = dest
	}
	return in, nil
}

// startHeartbeat refreshes the job's UpdatedAt on an interval while it is
// processing, so pollers can distinguish a long render from a dead one.
// The returned func stops the heartbeat.
func (s *Scheduler) startHeartbeat(j *job.Job) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				j.Heartbeat()
				s.save(j)
			}
		}
	}()
	return func() { close(done) }
}

// fail moves the job to the error state with a diagnostic and persists it.
func (s *Scheduler) fail(j *job.Job, msg string) {
	if err := j.Fail(msg); err != nil {
		s.logger.Error("job fail rejected", "job_id", j.ID, "error", err)
		return
	}
	s.save(j)
	s.logger.Warn("job failed", "job_id", j.ID, "reason", msg)
}

// save persists a job snapshot. A background context is used so state
// still gets recorded when the job's own context is already cancelled.
func (s *Scheduler) save(j *job.Job) {
	if err := s.repo.Save(context.Background(), j); err != nil {
		s.logger.Error("save job", "job_id", j.ID, "error", err)
	}
}

// assetExt extracts a plausible file extension from a URL path, falling
// back to def. The extension matters mainly for subtitle files, where the
// engine keys its demuxer choice off the name.
func assetExt(rawURL, def string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return def
	}
	ext := path.Ext(u.Path)
	if len(ext) < 2 || len(ext) > 5 {
		return def
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return def
		}
	}
	return ext
}
