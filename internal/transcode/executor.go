// Package transcode invokes the external transcoding engine with a
// constructed pipeline graph and classifies the outcome. The engine is an
// opaque collaborator: it is judged only by exit code, stderr and the
// wall-clock timeout, never by inspecting the artifact.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/clipforge/render-api/internal/pipeline"
)

// ErrResourceExhausted is returned when the engine was killed, ran out of
// memory, or exceeded the wall-clock timeout. It signals the scheduler to
// retry once with the fallback pipeline. The stderr patterns behind it are
// a best-effort heuristic, not a guaranteed-accurate signal.
var ErrResourceExhausted = errors.New("transcode: resource exhausted")

// maxStderrExcerpt bounds the diagnostic kept from engine output so a
// chatty engine cannot grow job records without limit.
const maxStderrExcerpt = 4096

// DefaultTimeout bounds a single engine invocation.
const DefaultTimeout = 10 * time.Minute

// ExecError is a generic engine failure: non-zero exit for any reason
// other than resource exhaustion.
type ExecError struct {
	ExitCode int
	Stderr   string // truncated excerpt
	Err      error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("transcode: engine failed (exit=%d): %s", e.ExitCode, e.Stderr)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Executor runs the transcoding engine binary.
type Executor struct {
	enginePath string
	timeout    time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout sets the wall-clock limit for a single invocation.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// NewExecutor creates an Executor. If enginePath is empty, "ffmpeg" is
// resolved via PATH.
func NewExecutor(enginePath string, opts ...Option) *Executor {
	if enginePath == "" {
		enginePath = "ffmpeg"
	}
	e := &Executor{
		enginePath: enginePath,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the engine with the given graph and inputs, writing exactly
// one output file. On failure the partial output is the caller's to
// delete. The returned error is ErrResourceExhausted, an *ExecError, or a
// context error from the parent being cancelled.
func (e *Executor) Execute(ctx context.Context, g *pipeline.Graph, in pipeline.Inputs, enc pipeline.EncodeParams, output string) error {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := buildArgs(g, in, enc, output)

	// #nosec G204 - enginePath is operator configuration, args are built
	// from the typed graph, never raw user strings.
	cmd := exec.CommandContext(runCtx, e.enginePath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	excerpt := truncateTail(stderr.String(), maxStderrExcerpt)

	// Timeout expiry counts as resource exhaustion; cancellation of the
	// parent context does not.
	if runCtx.Err() != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: engine exceeded %s timeout", ErrResourceExhausted, e.timeout)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("transcode: cancelled: %w", ctx.Err())
	}

	// Only a process that actually ran and exited can signal a resource
	// kill. Start failures, a missing binary among them, are generic.
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return &ExecError{ExitCode: -1, Stderr: excerpt, Err: err}
	}
	exitCode := exitErr.ExitCode()
	if killedByResourceLimit(exitCode, excerpt) {
		return fmt.Errorf("%w: engine killed (exit=%d): %s", ErrResourceExhausted, exitCode, excerpt)
	}

	return &ExecError{ExitCode: exitCode, Stderr: excerpt, Err: err}
}

// buildArgs translates the typed graph into the engine's argument syntax.
// Kept separate from Execute so the translation is testable without
// running a process.
func buildArgs(g *pipeline.Graph, in pipeline.Inputs, enc pipeline.EncodeParams, output string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
	}
	if enc.LoopVideo {
		// Applies to the next input only: the source video loops until
		// -shortest cuts the result at the narration length.
		args = append(args, "-stream_loop", "-1")
	}
	for _, path := range in.List() {
		args = append(args, "-i", path)
	}
	args = append(args,
		"-filter_complex", g.FilterComplex(),
		"-map", "["+pipeline.VideoOutPad+"]",
		"-map", "["+pipeline.AudioOutPad+"]",
		"-c:v", "libx264",
		"-preset", enc.Preset,
		"-crf", strconv.Itoa(enc.CRF),
	)
	if enc.VideoBitrate != "" {
		args = append(args, "-b:v", enc.VideoBitrate)
	}
	args = append(args,
		"-g", strconv.Itoa(enc.KeyframeInterval),
		"-threads", strconv.Itoa(enc.Threads),
		"-c:a", "aac",
		"-b:a", "192k",
	)
	if enc.LoopVideo {
		args = append(args, "-shortest")
	}
	args = append(args, "-movflags", "+faststart", output)
	return args
}

// oomPatterns are the stderr phrases that indicate the process was killed
// for memory, matched case-insensitively.
var oomPatterns = []string{
	"killed",
	"out of memory",
	"cannot allocate memory",
	"oom",
}

// killedByResourceLimit decides whether a non-zero exit was a resource
// kill: death by signal (exit -1), the conventional SIGKILL code 137, or
// a recognizable phrase in stderr.
func killedByResourceLimit(exitCode int, stderr string) bool {
	if exitCode == -1 || exitCode == 137 {
		return true
	}
	lower := strings.ToLower(stderr)
	for _, p := range oomPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// truncateTail keeps the last max bytes of s; engine errors land at the
// end of its output.
func truncateTail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
