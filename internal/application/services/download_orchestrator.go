package services

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	"github.com/zatekoja/medical-mirrors/internal/domain/repositories"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/downloader"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/observability"
	"github.com/zatekoja/medical-mirrors/pkg/config"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

// SourceResult is the outcome of one source in a run.
type SourceResult struct {
	Source     string            `json:"source"`
	Status     downloader.Status `json:"status"`
	Deferred   bool              `json:"deferred,omitempty"`
	Downloaded int               `json:"downloaded"`
	Skipped    int               `json:"skipped"`
	Cancelled  int               `json:"cancelled"`
	Failed     int               `json:"failed"`
	Bytes      int64             `json:"bytes"`
	Error      string            `json:"error,omitempty"`
}

// RunSummary reports one orchestrated download run.
type RunSummary struct {
	RunID    string         `json:"run_id"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Sources  []SourceResult `json:"sources"`
}

// SourceStatus is a point-in-time view of one source.
type SourceStatus struct {
	Source          string            `json:"source"`
	Status          downloader.Status `json:"status"`
	Large           bool              `json:"large"`
	Running         bool              `json:"running"`
	FilesDownloaded int64             `json:"files_downloaded"`
	FilesFailed     int64             `json:"files_failed"`
	BytesDownloaded int64             `json:"bytes_downloaded"`
	RetriesToday    int               `json:"retries_today"`
	RetryAfter      *time.Time        `json:"retry_after,omitempty"`
	LastError       string            `json:"last_error,omitempty"`
	LastSuccess     *time.Time        `json:"last_success,omitempty"`
}

// OrchestratorStatus summarizes every configured source.
type OrchestratorStatus struct {
	RunID                string               `json:"run_id,omitempty"`
	Running              bool                 `json:"running"`
	TotalSources         int                  `json:"total_sources"`
	CompletedSources     int                  `json:"completed_sources"`
	CompletionPercentage float64              `json:"completion_percentage"`
	ReadyForRetry        []string             `json:"ready_for_retry"`
	NextRetry            map[string]time.Time `json:"next_retry"`
	Sources              []SourceStatus       `json:"sources"`
}

// DownloadOrchestrator schedules the per-source downloaders. Large sources
// start one after another with a stagger delay; small sources share a
// bounded pool. A source that is backing off is deferred and never holds up
// the others.
type DownloadOrchestrator struct {
	sources []downloader.Source
	cfg     config.MirrorsConfig
	client  *http.Client
	store   *downloader.StateStore
	drugs   repositories.DrugRepository
	events  providers.EventBus
	metrics *observability.Metrics
	now     func() time.Time
	logger  zerolog.Logger

	mu          sync.RWMutex
	downloaders map[string]*downloader.Downloader
	running     map[string]bool
	runID       string
}

// OrchestratorOption customizes a DownloadOrchestrator.
type OrchestratorOption func(*DownloadOrchestrator)

// WithDrugRepository supplies generic names for drug class sources.
func WithDrugRepository(drugs repositories.DrugRepository) OrchestratorOption {
	return func(o *DownloadOrchestrator) { o.drugs = drugs }
}

// WithEventBus publishes source progress events.
func WithEventBus(events providers.EventBus) OrchestratorOption {
	return func(o *DownloadOrchestrator) { o.events = events }
}

// WithMetrics records download metrics.
func WithMetrics(metrics *observability.Metrics) OrchestratorOption {
	return func(o *DownloadOrchestrator) { o.metrics = metrics }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *DownloadOrchestrator) { o.now = now }
}

// NewDownloadOrchestrator loads the persisted state of every enabled source.
func NewDownloadOrchestrator(
	sources []downloader.Source,
	cfg config.MirrorsConfig,
	client *http.Client,
	store *downloader.StateStore,
	opts ...OrchestratorOption,
) (*DownloadOrchestrator, error) {
	o := &DownloadOrchestrator{
		cfg:         cfg,
		client:      client,
		store:       store,
		now:         time.Now,
		logger:      observability.Component("orchestrator"),
		downloaders: make(map[string]*downloader.Downloader),
		running:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.client == nil {
		o.client = &http.Client{}
	}

	for _, src := range sources {
		if src.Disabled {
			continue
		}
		d, err := downloader.NewDownloader(src.Name, o.client, store, downloader.Options{
			UserAgent:      cfg.UserAgent,
			DailyRetryCap:  cfg.DailyRetryCap,
			ForceFresh:     cfg.ForceFresh,
			RequestTimeout: cfg.RequestTimeout,
			Metrics:        o.metrics,
			Logger:         o.logger,
			Now:            o.now,
		})
		if err != nil {
			return nil, fmt.Errorf("load state for %s: %w", src.Name, err)
		}
		o.sources = append(o.sources, src)
		o.downloaders[src.Name] = d
	}
	return o, nil
}

// Sources returns the enabled sources.
func (o *DownloadOrchestrator) Sources() []downloader.Source {
	return append([]downloader.Source(nil), o.sources...)
}

// schedule splits sources into large ones, biggest first, and small ones in
// catalog order.
func (o *DownloadOrchestrator) schedule(sources []downloader.Source) (large, small []downloader.Source) {
	for _, src := range sources {
		if src.IsLarge(o.cfg.LargeSourceThresholdMB) {
			large = append(large, src)
		} else {
			small = append(small, src)
		}
	}
	sort.SliceStable(large, func(i, j int) bool { return large[i].SizeEstimateMB > large[j].SizeEstimateMB })
	return large, small
}

func (o *DownloadOrchestrator) selectSources(names []string) ([]downloader.Source, error) {
	if len(names) == 0 {
		return o.Sources(), nil
	}
	var selected []downloader.Source
	for _, name := range names {
		src, ok := downloader.Find(o.sources, name)
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("unknown or disabled source %q", name))
		}
		selected = append(selected, src)
	}
	return selected, nil
}

// Run downloads the named sources, or all enabled sources when names is
// empty. Per-source failures are reported in the summary, not returned.
func (o *DownloadOrchestrator) Run(ctx context.Context, names ...string) (*RunSummary, error) {
	selected, err := o.selectSources(names)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	o.mu.Lock()
	o.runID = runID
	o.mu.Unlock()

	summary := &RunSummary{RunID: runID, Started: o.now().UTC()}
	var resultsMu sync.Mutex
	record := func(r SourceResult) {
		resultsMu.Lock()
		summary.Sources = append(summary.Sources, r)
		resultsMu.Unlock()
	}

	var runnable []downloader.Source
	now := o.now()
	for _, src := range selected {
		d := o.downloaders[src.Name]
		switch {
		case !src.Configured():
			o.logger.Warn().Str("source", src.Name).Msg("source has no upstream configured, skipping")
			record(SourceResult{Source: src.Name, Status: d.EffectiveStatus(now), Deferred: true, Error: "not configured"})
		case !d.ReadyForRetry(now):
			status := d.EffectiveStatus(now)
			o.logger.Info().Str("source", src.Name).Str("status", string(status)).Msg("source backing off, deferred")
			record(SourceResult{Source: src.Name, Status: status, Deferred: true})
			publish(ctx, o.events, o.logger, entities.NewIngestionEvent(runID, src.Name, entities.IngestionEventSourceDeferred, map[string]any{"status": string(status)}))
		default:
			runnable = append(runnable, src)
		}
	}

	large, small := o.schedule(runnable)
	o.logger.Info().Str("run_id", runID).Int("large", len(large)).Int("small", len(small)).
		Int("deferred", len(selected)-len(runnable)).Msg("download run started")

	var wg sync.WaitGroup
	for i, src := range large {
		if i > 0 && !sleepContext(ctx, o.cfg.StaggerDelay) {
			for _, rest := range large[i:] {
				record(SourceResult{Source: rest.Name, Status: o.downloaders[rest.Name].EffectiveStatus(o.now()), Deferred: true, Error: "cancelled"})
			}
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(o.runSource(ctx, runID, src))
		}()
	}

	var g errgroup.Group
	g.SetLimit(max(1, o.cfg.MaxConcurrentSources))
	for _, src := range small {
		g.Go(func() error {
			record(o.runSource(ctx, runID, src))
			return nil
		})
	}
	_ = g.Wait()
	wg.Wait()

	sort.Slice(summary.Sources, func(i, j int) bool { return summary.Sources[i].Source < summary.Sources[j].Source })
	summary.Finished = o.now().UTC()
	o.logger.Info().Str("run_id", runID).Dur("elapsed", summary.Finished.Sub(summary.Started)).Msg("download run finished")
	return summary, nil
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (o *DownloadOrchestrator) setRunning(source string, running bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if running {
		o.running[source] = true
	} else {
		delete(o.running, source)
	}
}

// runSource drives one source to completion or failure.
func (o *DownloadOrchestrator) runSource(ctx context.Context, runID string, src downloader.Source) SourceResult {
	d := o.downloaders[src.Name]
	logger := o.logger.With().Str("source", src.Name).Logger()
	o.setRunning(src.Name, true)
	defer o.setRunning(src.Name, false)

	if err := d.Begin(runID); err != nil {
		logger.Error().Err(err).Msg("failed to persist download state")
	}
	publish(ctx, o.events, logger, entities.NewIngestionEvent(runID, src.Name, entities.IngestionEventSourceStarted, nil))

	batch, err := o.download(ctx, src, d)
	result := SourceResult{
		Source:     src.Name,
		Downloaded: batch.Downloaded,
		Skipped:    batch.Skipped,
		Cancelled:  batch.Cancelled,
		Failed:     len(batch.Failures),
		Bytes:      batch.Bytes,
	}
	switch {
	case err != nil:
		result.Error = err.Error()
	case len(batch.Failures) > 0:
		result.Error = batch.Failures[0].Err.Error()
	}

	switch {
	case err == nil && len(batch.Failures) == 0 && batch.Cancelled == 0 && ctx.Err() == nil:
		if saveErr := d.RecordSuccess(); saveErr != nil {
			logger.Error().Err(saveErr).Msg("failed to persist download state")
		}
		publish(ctx, o.events, logger, entities.NewIngestionEvent(runID, src.Name, entities.IngestionEventSourceCompleted, map[string]any{
			"downloaded": batch.Downloaded,
			"skipped":    batch.Skipped,
			"bytes":      batch.Bytes,
		}))
	case ctx.Err() != nil && len(batch.Failures) == 0:
		logger.Info().Int("cancelled", batch.Cancelled).Msg("source interrupted, will resume")
	default:
		publish(ctx, o.events, logger, entities.NewIngestionEvent(runID, src.Name, entities.IngestionEventSourceFailed, map[string]any{
			"error":  result.Error,
			"failed": result.Failed,
		}))
	}
	result.Status = d.EffectiveStatus(o.now())
	return result
}

// download produces the file list for the source's kind and fetches it.
// Failures before any file is attempted are recorded against the source here.
func (o *DownloadOrchestrator) download(ctx context.Context, src downloader.Source, d *downloader.Downloader) (downloader.BatchResult, error) {
	dir := src.Dir(o.cfg.DataDir)
	var (
		files []downloader.FileSpec
		err   error
	)
	switch src.Kind {
	case downloader.KindClinicalTrialsAPI:
		pager := &downloader.ClinicalTrialsPager{BaseURL: src.BaseURL, PageSize: src.PageSize, MaxPages: src.MaxFiles}
		return pager.Run(ctx, d, dir)
	case downloader.KindPubMedListing:
		var urls []string
		urls, err = downloader.ListPubMedFiles(ctx, o.client, src.ListingURL, o.cfg.UserAgent, src.MaxFiles)
		files = downloader.FilesFromURLs(dir, urls)
	case downloader.KindRxClassAPI:
		var names []string
		names, err = o.rxClassNames(ctx, src.MaxFiles)
		files = downloader.RxClassFiles(src.BaseURL, dir, names)
	default:
		for _, f := range src.Files {
			files = append(files, downloader.FileSpec{URL: f.URL, Path: filepath.Join(dir, f.FileName())})
		}
	}
	if err != nil {
		if _, recErr := d.RecordFailure(err); recErr != nil {
			o.logger.Error().Err(recErr).Str("source", src.Name).Msg("failed to persist download state")
		}
		return downloader.BatchResult{}, err
	}
	return d.DownloadBatch(ctx, files, o.cfg.DownloadWorkers), nil
}

// rxClassNames returns the lowercased distinct generic names to classify.
func (o *DownloadOrchestrator) rxClassNames(ctx context.Context, limit int) ([]string, error) {
	if o.drugs == nil {
		return nil, apperrors.NewValidationError("drug class download needs a drug repository")
	}
	raw, err := o.drugs.ListGenericNames(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(raw))
	var names []string
	for _, name := range raw {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

// GetStatus reports every source at now. It reads state snapshots and never
// waits on a transfer.
func (o *DownloadOrchestrator) GetStatus(now time.Time) OrchestratorStatus {
	o.mu.RLock()
	runID := o.runID
	running := make(map[string]bool, len(o.running))
	for name := range o.running {
		running[name] = true
	}
	o.mu.RUnlock()

	status := OrchestratorStatus{
		RunID:         runID,
		Running:       len(running) > 0,
		TotalSources:  len(o.sources),
		ReadyForRetry: []string{},
		NextRetry:     map[string]time.Time{},
	}
	for _, src := range o.sources {
		d := o.downloaders[src.Name]
		snap := d.Snapshot()
		effective := snap.EffectiveStatus(now, o.cfg.DailyRetryCap)
		s := SourceStatus{
			Source:          src.Name,
			Status:          effective,
			Large:           src.IsLarge(o.cfg.LargeSourceThresholdMB),
			Running:         running[src.Name],
			FilesDownloaded: snap.FilesDownloaded,
			FilesFailed:     snap.FilesFailed,
			BytesDownloaded: snap.BytesDownloaded,
			RetriesToday:    snap.RetryCount(src.Name, now),
			LastError:       snap.LastError,
			LastSuccess:     snap.LastSuccess,
		}
		if at, ok := snap.RetryAfter[src.Name]; ok && at.After(now) {
			at := at
			s.RetryAfter = &at
			status.NextRetry[src.Name] = at
		}
		if effective == downloader.StatusCompleted {
			status.CompletedSources++
		}
		if !s.Running && effective != downloader.StatusCompleted && snap.ReadyForRetry(src.Name, now, o.cfg.DailyRetryCap) {
			status.ReadyForRetry = append(status.ReadyForRetry, src.Name)
		}
		status.Sources = append(status.Sources, s)
	}
	if status.TotalSources > 0 {
		status.CompletionPercentage = float64(status.CompletedSources) / float64(status.TotalSources) * 100
	}
	return status
}

// Refresh reloads the persisted state of every source not running in this
// process. Readers such as the API call it before GetStatus.
func (o *DownloadOrchestrator) Refresh() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for name, d := range o.downloaders {
		if o.running[name] {
			continue
		}
		if err := d.Reload(); err != nil {
			return fmt.Errorf("reload state for %s: %w", name, err)
		}
	}
	return nil
}

// ResetState deletes all persisted download state. It refuses while a run
// is in progress.
func (o *DownloadOrchestrator) ResetState() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.running) > 0 {
		return apperrors.NewConflictError("cannot reset download state while sources are running")
	}
	for _, d := range o.downloaders {
		if err := d.Reset(); err != nil {
			return err
		}
	}
	if _, err := o.store.ResetAll(); err != nil {
		return err
	}
	o.runID = ""
	o.logger.Info().Int("sources", len(o.downloaders)).Msg("download state reset")
	return nil
}

// ResetSource deletes the persisted state of one source.
func (o *DownloadOrchestrator) ResetSource(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.downloaders[name]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("source %q not found", name))
	}
	if o.running[name] {
		return apperrors.NewConflictError(fmt.Sprintf("source %q is running", name))
	}
	return d.Reset()
}
