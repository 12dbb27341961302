package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/zatekoja/medical-mirrors/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

// Backoff windows applied after a failed attempt.
const (
	RateLimitBackoff = time.Hour
	NetworkBackoff   = 15 * time.Minute
	DefaultBackoff   = 5 * time.Minute

	DefaultDailyRetryCap = 5
	partialSuffix        = ".part"
)

// Options configures a Downloader.
type Options struct {
	UserAgent      string
	DailyRetryCap  int
	ForceFresh     bool
	RequestTimeout time.Duration
	Metrics        *observability.Metrics
	Logger         zerolog.Logger
	// Now is the clock used for backoff bookkeeping.
	Now func() time.Time
}

// FileSpec is one file to fetch.
type FileSpec struct {
	URL  string
	Path string
	// ID is the completion key; defaults to the base name of Path.
	ID string
}

func (f FileSpec) id() string {
	if f.ID != "" {
		return f.ID
	}
	return filepath.Base(f.Path)
}

// FileFailure reports one file that did not complete.
type FileFailure struct {
	File FileSpec
	Err  error
}

// BatchResult summarizes a DownloadBatch call.
type BatchResult struct {
	Downloaded int
	Skipped    int
	Cancelled  int
	Bytes      int64
	Failures   []FileFailure
}

// Downloader fetches the files of one source and owns its persisted state.
// The state lock is never held across network I/O.
type Downloader struct {
	source string
	client *http.Client
	store  *StateStore
	opts   Options
	logger zerolog.Logger

	mu    sync.Mutex
	state *State
}

// NewDownloader loads the persisted state of source.
func NewDownloader(source string, client *http.Client, store *StateStore, opts Options) (*Downloader, error) {
	if client == nil {
		client = &http.Client{}
	}
	if opts.DailyRetryCap < 1 {
		opts.DailyRetryCap = DefaultDailyRetryCap
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Minute
	}
	st, err := store.Load(source)
	if err != nil {
		return nil, err
	}
	return &Downloader{
		source: source,
		client: client,
		store:  store,
		opts:   opts,
		logger: opts.Logger.With().Str("source", source).Logger(),
		state:  st,
	}, nil
}

// Source returns the source name.
func (d *Downloader) Source() string {
	return d.source
}

// Snapshot returns a copy of the current state.
func (d *Downloader) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Clone()
}

// IsRateLimited reports whether the source is inside a backoff window.
func (d *Downloader) IsRateLimited(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.IsRateLimited(d.source, now)
}

// ReadyForRetry reports whether an attempt may start now.
func (d *Downloader) ReadyForRetry(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.ReadyForRetry(d.source, now, d.opts.DailyRetryCap)
}

// EffectiveStatus resolves the status at now.
func (d *Downloader) EffectiveStatus(now time.Time) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.EffectiveStatus(now, d.opts.DailyRetryCap)
}

// Begin marks the source in progress under runID.
func (d *Downloader) Begin(runID string) error {
	return d.update(func(st *State, now time.Time) {
		st.RunID = runID
		st.Status = StatusInProgress
		st.LastAttempt = &now
	})
}

// RecordSuccess marks the source completed and clears its backoff.
func (d *Downloader) RecordSuccess() error {
	return d.update(func(st *State, now time.Time) {
		st.Status = StatusCompleted
		st.LastError = ""
		st.LastSuccess = &now
		delete(st.RetryAfter, d.source)
	})
}

// RecordFailure classifies err, moves the retry window forward and counts
// the attempt against today's cap. It returns the resulting status.
func (d *Downloader) RecordFailure(err error) (Status, error) {
	var status Status
	saveErr := d.update(func(st *State, now time.Time) {
		backoff, rateLimited := Backoff(err)
		st.RetryAfter[d.source] = now.Add(backoff)
		st.LastError = err.Error()
		count := st.recordRetry(d.source, now)
		switch {
		case count >= d.opts.DailyRetryCap:
			status = StatusFailedToday
		case rateLimited:
			status = StatusRateLimited
		default:
			status = StatusFailed
		}
		st.Status = status
	})
	d.add(context.Background(), func(m *observability.Metrics) metric.Int64Counter { return m.DownloadFailures }, 1)
	d.logger.Warn().Err(err).Str("status", string(status)).Msg("download attempt failed")
	return status, saveErr
}

// Reset clears all progress for the source, including the file on disk.
func (d *Downloader) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.Reset(d.source); err != nil {
		return err
	}
	d.state = NewState(d.source)
	return nil
}

// Reload replaces the in-memory state with what is on disk, picking up
// progress written by another process.
func (d *Downloader) Reload() error {
	st, err := d.store.Load(d.source)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.state = st
	d.mu.Unlock()
	return nil
}

// IsCompleted reports whether id was recorded as a completed file.
func (d *Downloader) IsCompleted(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.CompletedFiles.Has(id)
}

// IsBatchCompleted reports whether batch id was recorded as completed.
func (d *Downloader) IsBatchCompleted(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.CompletedBatches.Has(id)
}

// MarkBatchCompleted records batch id and the cursor to resume from.
func (d *Downloader) MarkBatchCompleted(id, cursor string) error {
	return d.update(func(st *State, _ time.Time) {
		st.CompletedBatches[id] = struct{}{}
		st.Cursor = cursor
	})
}

// Cursor returns the saved resume cursor.
func (d *Downloader) Cursor() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Cursor
}

func (d *Downloader) markFileCompleted(id string, bytes int64) error {
	return d.update(func(st *State, _ time.Time) {
		st.CompletedFiles[id] = struct{}{}
		st.FilesDownloaded++
		st.BytesDownloaded += bytes
	})
}

func (d *Downloader) markFileFailed() error {
	return d.update(func(st *State, _ time.Time) {
		st.FilesFailed++
	})
}

func (d *Downloader) add(ctx context.Context, pick func(m *observability.Metrics) metric.Int64Counter, n int64) {
	if d.opts.Metrics == nil {
		return
	}
	observability.Add(ctx, pick(d.opts.Metrics), n, "source", d.source)
}

func (d *Downloader) update(fn func(st *State, now time.Time)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.state, d.opts.Now().UTC())
	d.state.UpdatedAt = d.opts.Now().UTC()
	return d.store.Save(d.state)
}

// DownloadBatch fetches files with at most maxWorkers in flight. A failing
// file never stops the others. Once ctx is cancelled or the upstream rate
// limits us no new file starts. Failures are recorded against the source
// once per batch, using the most severe classification seen.
func (d *Downloader) DownloadBatch(ctx context.Context, files []FileSpec, maxWorkers int) BatchResult {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	var (
		g           errgroup.Group
		mu          sync.Mutex
		result      BatchResult
		rateLimited atomic.Bool
	)
	g.SetLimit(maxWorkers)

	for _, f := range files {
		if ctx.Err() != nil || rateLimited.Load() {
			result.Cancelled++
			continue
		}
		if !d.opts.ForceFresh && d.IsCompleted(f.id()) && fileExists(f.Path) {
			result.Skipped++
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil || rateLimited.Load() {
				mu.Lock()
				result.Cancelled++
				mu.Unlock()
				return nil
			}
			n, err := d.DownloadFile(ctx, f.URL, f.Path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if apperrors.IsType(err, apperrors.ErrorTypeRateLimit) {
					rateLimited.Store(true)
				}
				result.Failures = append(result.Failures, FileFailure{File: f, Err: err})
				if markErr := d.markFileFailed(); markErr != nil {
					d.logger.Error().Err(markErr).Msg("failed to persist download state")
				}
				return nil
			}
			result.Downloaded++
			result.Bytes += n
			if markErr := d.markFileCompleted(f.id(), n); markErr != nil {
				d.logger.Error().Err(markErr).Msg("failed to persist download state")
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(result.Failures) > 0 {
		if _, err := d.RecordFailure(worstFailure(result.Failures)); err != nil {
			d.logger.Error().Err(err).Msg("failed to persist download state")
		}
	}
	d.logger.Info().
		Int("downloaded", result.Downloaded).
		Int("skipped", result.Skipped).
		Int("cancelled", result.Cancelled).
		Int("failed", len(result.Failures)).
		Int64("bytes", result.Bytes).
		Msg("download batch finished")
	return result
}

func worstFailure(failures []FileFailure) error {
	worst := failures[0].Err
	for _, f := range failures {
		switch {
		case apperrors.IsType(f.Err, apperrors.ErrorTypeRateLimit):
			return f.Err
		case apperrors.IsType(f.Err, apperrors.ErrorTypeNetwork):
			worst = f.Err
		}
	}
	return worst
}

// DownloadFile fetches url into path, resuming from path+".part" when a
// partial file exists. The request runs detached from ctx cancellation so a
// file already in flight finishes; RequestTimeout still bounds it.
func (d *Downloader) DownloadFile(ctx context.Context, url, path string) (int64, error) {
	unlock := lockPath(path)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, apperrors.NewInternalError("create download dir", err)
	}
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.RequestTimeout)
	defer cancel()

	written, err := d.fetch(reqCtx, url, path+partialSuffix, true)
	if err != nil {
		return 0, err
	}
	if err := os.Rename(path+partialSuffix, path); err != nil {
		return 0, apperrors.NewInternalError("finalize download", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, apperrors.NewInternalError("stat download", err)
	}

	d.add(ctx, func(m *observability.Metrics) metric.Int64Counter { return m.FilesDownloaded }, 1)
	d.add(ctx, func(m *observability.Metrics) metric.Int64Counter { return m.BytesDownloaded }, written)
	d.logger.Debug().Str("url", url).Str("path", path).Int64("written", written).Int64("size", info.Size()).Msg("file downloaded")
	return info.Size(), nil
}

// fetch streams url into partial, returning the bytes written by this call.
func (d *Downloader) fetch(ctx context.Context, url, partial string, allowRestart bool) (int64, error) {
	offset := int64(0)
	if info, err := os.Stat(partial); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, apperrors.NewValidationError(fmt.Sprintf("invalid url %q: %v", url, err))
	}
	if d.opts.UserAgent != "" {
		req.Header.Set("User-Agent", d.opts.UserAgent)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, apperrors.NewNetworkError("request "+url, err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		if start, ok := contentRangeStart(resp.Header.Get("Content-Range")); !ok || start != offset {
			return d.restart(ctx, url, partial, allowRestart, "content range mismatch")
		}
		flags |= os.O_APPEND
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return d.restart(ctx, url, partial, allowRestart, "range not satisfiable")
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		flags |= os.O_TRUNC
	default:
		return 0, StatusError(resp)
	}

	f, err := os.OpenFile(partial, flags, 0o644)
	if err != nil {
		return 0, apperrors.NewInternalError("open partial file", err)
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return n, apperrors.NewNetworkError("read body of "+url, copyErr)
	}
	if closeErr != nil {
		return n, apperrors.NewInternalError("close partial file", closeErr)
	}
	return n, nil
}

func (d *Downloader) restart(ctx context.Context, url, partial string, allowRestart bool, reason string) (int64, error) {
	if !allowRestart {
		return 0, apperrors.NewExternalError("resume of "+url+" failed twice", errors.New(reason))
	}
	d.logger.Warn().Str("url", url).Str("reason", reason).Msg("discarding partial file and restarting")
	if err := os.Remove(partial); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, apperrors.NewInternalError("remove partial file", err)
	}
	return d.fetch(ctx, url, partial, false)
}

// StatusError converts a non-success response into a classified error.
func StatusError(resp *http.Response) error {
	msg := fmt.Sprintf("%s returned %s", resp.Request.URL.Redacted(), resp.Status)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewRateLimitError(msg, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return apperrors.NewNetworkError(msg, nil)
	default:
		return apperrors.NewExternalError(msg, nil)
	}
}

// Backoff returns the wait after err and whether it was a rate limit. A
// Retry-After longer than the default window wins.
func Backoff(err error) (time.Duration, bool) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case apperrors.ErrorTypeRateLimit:
			if appErr.RetryAfter > RateLimitBackoff {
				return appErr.RetryAfter, true
			}
			return RateLimitBackoff, true
		case apperrors.ErrorTypeNetwork:
			return NetworkBackoff, false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return NetworkBackoff, false
	}
	return DefaultBackoff, false
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// contentRangeStart extracts the first byte position of "bytes a-b/n".
func contentRangeStart(header string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return 0, false
	}
	startStr, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	return start, err == nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

var pathLocks sync.Map

// lockPath serializes writers of one destination path.
func lockPath(path string) func() {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	m, _ := pathLocks.LoadOrStore(abs, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
