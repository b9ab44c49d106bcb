// Package fetch downloads remote assets to local files with bounded
// waiting at every point: a connect timeout for the response headers and a
// stall timeout measured from the last received chunk, so a connection
// that stays open but stops making progress is cut off. Responses are
// validated by status and declared content type before a byte is written.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Static errors classifying fetch failures. They are wrapped inside
// *Error; match with errors.Is.
var (
	// ErrUpstreamStatus is returned when the remote responds non-2xx.
	ErrUpstreamStatus = errors.New("fetch: upstream returned error status")
	// ErrHTMLContent is returned when the response looks like an HTML
	// page. That is the signature of a share-link landing page rather
	// than a direct asset URL, so it gets its own diagnosable error.
	ErrHTMLContent = errors.New("fetch: response is an HTML page, not a media asset")
	// ErrContentType is returned when the declared content type matches
	// none of the allowed types.
	ErrContentType = errors.New("fetch: unexpected content type")
	// ErrConnectTimeout is returned when response headers do not arrive
	// within the connect timeout.
	ErrConnectTimeout = errors.New("fetch: timed out waiting for response headers")
	// ErrStallTimeout is returned when no body chunk arrives within the
	// stall timeout of the previous one.
	ErrStallTimeout = errors.New("fetch: transfer stalled")
)

// Error carries the failure classification plus the request context.
type Error struct {
	URL         string
	StatusCode  int
	ContentType string
	Err         error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%v (url=%s, status=%d)", e.Err, e.URL, e.StatusCode)
	case e.ContentType != "":
		return fmt.Sprintf("%v (url=%s, content-type=%s)", e.Err, e.URL, e.ContentType)
	default:
		return fmt.Sprintf("%v (url=%s)", e.Err, e.URL)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Default timeouts, overridable via options.
const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultStallTimeout   = 30 * time.Second
)

// Fetcher downloads remote assets. The zero value is not usable; create
// one with NewFetcher.
type Fetcher struct {
	client         *http.Client
	connectTimeout time.Duration
	stallTimeout   time.Duration
	userAgent      string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithConnectTimeout bounds the wait for response headers.
func WithConnectTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.connectTimeout = d
	}
}

// WithStallTimeout bounds the wait for the next body chunk.
func WithStallTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.stallTimeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with requests.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// NewFetcher creates a Fetcher with the given options applied.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		// No overall client timeout: large assets may legitimately take
		// long, progress is enforced by the stall timer instead.
		client:         &http.Client{},
		connectTimeout: DefaultConnectTimeout,
		stallTimeout:   DefaultStallTimeout,
		userAgent:      "render-api/1.0",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url to dest. allowedTypes are substrings matched
// against the declared Content-Type; an empty list accepts anything that
// is not HTML. On failure the destination file may hold partial data and
// deleting it is the caller's responsibility; the file handle is always
// closed.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string, allowedTypes []string) error {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	// The connect timer covers dialing plus waiting for headers. It is
	// disarmed as soon as the response arrives; afterwards the stall
	// timer takes over.
	var connectExpired atomic.Bool
	connectTimer := time.AfterFunc(f.connectTimeout, func() {
		connectExpired.Store(true)
		cancel()
	})

	resp, err := f.client.Do(req)
	connectTimer.Stop()
	if err != nil {
		if connectExpired.Load() {
			return &Error{URL: url, Err: ErrConnectTimeout}
		}
		return &Error{URL: url, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{URL: url, StatusCode: resp.StatusCode, Err: ErrUpstreamStatus}
	}

	contentType := resp.Header.Get("Content-Type")
	if err := checkContentType(contentType, allowedTypes); err != nil {
		return &Error{URL: url, ContentType: contentType, Err: err}
	}

	out, err := os.Create(dest) // #nosec G304 - dest is derived from the job workspace
	if err != nil {
		return fmt.Errorf("fetch: create %s: %w", dest, err)
	}

	var stallExpired atomic.Bool
	stallTimer := time.AfterFunc(f.stallTimeout, func() {
		stallExpired.Store(true)
		cancel()
	})
	defer stallTimer.Stop()

	body := &stallResetReader{r: resp.Body, timer: stallTimer, d: f.stallTimeout}
	_, copyErr := io.Copy(out, body)
	closeErr := out.Close()

	if copyErr != nil {
		if stallExpired.Load() {
			return &Error{URL: url, Err: ErrStallTimeout}
		}
		return &Error{URL: url, Err: fmt.Errorf("read body: %w", copyErr)}
	}
	if closeErr != nil {
		return fmt.Errorf("fetch: close %s: %w", dest, closeErr)
	}
	return nil
}

// checkContentType applies the coarse header heuristic: HTML is always
// rejected, everything else must contain one of the allowed substrings.
func checkContentType(contentType string, allowedTypes []string) error {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "text/html") {
		return ErrHTMLContent
	}
	if len(allowedTypes) == 0 {
		return nil
	}
	for _, allowed := range allowedTypes {
		if strings.Contains(ct, strings.ToLower(allowed)) {
			return nil
		}
	}
	return ErrContentType
}

// stallResetReader resets the stall timer on every received chunk, so the
// timeout measures silence between chunks rather than total transfer time.
type stallResetReader struct {
	r     io.Reader
	timer *time.Timer
	d     time.Duration
}

func (s *stallResetReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.timer.Reset(s.d)
	}
	return n, err
}
