package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"periodetl/internal/config"
	"periodetl/internal/domain"
	"periodetl/internal/etl"
	_ "periodetl/internal/etl/sources"
	"periodetl/internal/fieldref"
	"periodetl/internal/manifest"
	"periodetl/internal/metrics"
)

// ─────────────────────────────────────────────────────────────
// Pipeline Service: manifest → transform → artifacts → load
// ─────────────────────────────────────────────────────────────

// ErrRunInProgress is returned when a run of the same family is underway.
var ErrRunInProgress = errors.New("a run of this family is already in progress")

// PipelineService runs the pipeline of one family, on demand or on triggers.
type PipelineService struct {
	cfg     *config.Config
	store   domain.ConsolidatedStore
	runLogs domain.RunLogStore
	emitter EventEmitter
	log     zerolog.Logger
	metrics *metrics.Metrics
	hook    etl.RowHook
	running runGuard

	// watcher / cron lifecycle
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// Option customises a PipelineService.
type Option func(*PipelineService)

// WithHook installs a row hook applied to every dataset entry.
func WithHook(h etl.RowHook) Option {
	return func(s *PipelineService) { s.hook = h }
}

// WithRunLogs records every run in store.
func WithRunLogs(store domain.RunLogStore) Option {
	return func(s *PipelineService) { s.runLogs = store }
}

// WithMetrics records pipeline metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *PipelineService) { s.metrics = m }
}

// WithEmitter sends lifecycle events to e instead of the log.
func WithEmitter(e EventEmitter) Option {
	return func(s *PipelineService) { s.emitter = e }
}

// NewPipelineService creates a PipelineService ready for use.
func NewPipelineService(cfg *config.Config, store domain.ConsolidatedStore, log zerolog.Logger, opts ...Option) *PipelineService {
	s := &PipelineService{
		cfg:     cfg,
		store:   store,
		log:     log,
		emitter: LogEmitter{Log: log},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TransformSummary is the outcome of the transform phase.
type TransformSummary struct {
	Entries   []*etl.EntryResult
	Skipped   []string // periods skipped because they were already loaded
	Artifacts []string
}

// Rows returns every transformed row in manifest order.
func (t *TransformSummary) Rows() []domain.TransformedRow {
	var rows []domain.TransformedRow
	for _, e := range t.Entries {
		rows = append(rows, e.Rows...)
	}
	return rows
}

func (t *TransformSummary) totals() (read, written, failures int) {
	for _, e := range t.Entries {
		read += e.Report.RowsRead
		written += e.Report.RowsWritten
		failures += len(e.Report.Failures)
	}
	return read, written, failures
}

// RunResult is the outcome of a full run.
type RunResult struct {
	RunLog    domain.RunLog
	Transform *TransformSummary
	Load      *etl.LoadResult
}

// loadInputs reads the manifest and every field reference it names.
func (s *PipelineService) loadInputs() ([]domain.DatasetEntry, fieldref.Set, error) {
	available, err := fieldref.Available(s.cfg.ConfDir())
	if err != nil {
		return nil, nil, err
	}
	entries, err := manifest.LoadFile(s.cfg.ManifestPath(), func(id string) bool {
		_, ok := available[id]
		return ok
	})
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.FieldReferenceID)
	}
	refs, err := fieldref.LoadSet(s.cfg.ConfDir(), ids)
	if err != nil {
		return nil, nil, err
	}
	return entries, refs, nil
}

// Transform runs the transform phase: every manifest entry is transformed
// and written as an artifact under the output directory.
func (s *PipelineService) Transform(ctx context.Context) (*TransformSummary, error) {
	start := time.Now()
	defer func() { s.metrics.ObservePhase(s.cfg.Family, "transform", time.Since(start)) }()

	entries, refs, err := s.loadInputs()
	if err != nil {
		return nil, err
	}

	summary := &TransformSummary{}
	if s.cfg.Run.SkipLoaded {
		entries, summary.Skipped, err = s.skipLoaded(ctx, entries)
		if err != nil {
			return nil, err
		}
	}

	opts := etl.Options{Hook: s.hook}
	if s.cfg.Run.FailFast {
		opts.Policy = etl.AbortOnError
	}
	engine := &etl.Engine{
		Family:     s.cfg.Family,
		SourceRoot: s.cfg.SourceRoot(),
		Refs:       refs,
		Options:    opts,
		Log:        s.log,
		Metrics:    s.metrics,
	}

	for _, entry := range entries {
		res, err := engine.TransformEntry(ctx, entry)
		if err != nil {
			return summary, err
		}
		path, err := etl.WriteArtifact(s.cfg.OutputDir(), s.cfg.Family, res)
		if err != nil {
			return summary, fmt.Errorf("period %s: %w", entry.PeriodKey, err)
		}
		summary.Entries = append(summary.Entries, res)
		summary.Artifacts = append(summary.Artifacts, path)
	}
	return summary, nil
}

// skipLoaded drops entries whose period the store already holds.
func (s *PipelineService) skipLoaded(ctx context.Context, entries []domain.DatasetEntry) ([]domain.DatasetEntry, []string, error) {
	loaded, err := s.store.ListPeriods(ctx, s.cfg.Family)
	if err != nil {
		return nil, nil, fmt.Errorf("list loaded periods: %w", err)
	}
	have := make(map[string]bool, len(loaded))
	for _, p := range loaded {
		have[p] = true
	}

	var keep []domain.DatasetEntry
	var skipped []string
	for _, e := range entries {
		if have[e.PeriodKey] {
			skipped = append(skipped, e.PeriodKey)
			continue
		}
		keep = append(keep, e)
	}
	if len(skipped) > 0 {
		s.log.Info().Strs("periods", skipped).Msg("skipping periods already loaded")
	}
	return keep, skipped, nil
}

// Load runs the load phase alone, from the artifacts a previous Transform left.
func (s *PipelineService) Load(ctx context.Context) (*etl.LoadResult, error) {
	rows, err := etl.ReadArtifacts(s.cfg.OutputDir(), s.cfg.Family)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, rows)
}

func (s *PipelineService) load(ctx context.Context, rows []domain.TransformedRow) (*etl.LoadResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObservePhase(s.cfg.Family, "load", time.Since(start)) }()

	loader := &etl.Loader{Store: s.store, Log: s.log, Metrics: s.metrics}
	return loader.Load(ctx, s.cfg.Family, rows)
}

// Run executes transform then load for the configured family and records the
// run. Only the rows transformed in this run are loaded.
func (s *PipelineService) Run(ctx context.Context, trigger string) (*RunResult, error) {
	family := s.cfg.Family
	if !s.running.TryLock(family) {
		s.emitter.Emit(ctx, EventRunSkipped, map[string]string{"family": family, "trigger": trigger})
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock(family)

	s.emitter.Emit(ctx, EventRunStarted, map[string]string{"family": family, "trigger": trigger})
	result := &RunResult{RunLog: domain.RunLog{
		Family:    family,
		Trigger:   trigger,
		StartedAt: time.Now(),
		Status:    domain.RunStatusRunning,
	}}

	summary, runErr := s.Transform(ctx)
	result.Transform = summary
	if runErr == nil {
		result.Load, runErr = s.load(ctx, summary.Rows())
	}

	rl := &result.RunLog
	rl.FinishedAt = time.Now()
	if summary != nil {
		rl.Entries = len(summary.Entries)
		rl.RowsRead, rl.RowsWritten, rl.RowFailures = summary.totals()
	}
	switch {
	case runErr != nil:
		rl.Status = domain.RunStatusError
		rl.Error = runErr.Error()
	case rl.RowFailures > 0:
		rl.Status = domain.RunStatusPartial
	default:
		rl.Status = domain.RunStatusSuccess
	}

	if s.runLogs != nil {
		if err := s.runLogs.CreateRunLog(rl); err != nil {
			s.log.Error().Err(err).Msg("failed to record run log")
		}
	}
	s.metrics.RecordRun(family, rl.Status)

	ev := s.log.Info()
	if runErr != nil {
		ev = s.log.Error().Err(runErr)
	}
	ev.Str("family", family).
		Str("trigger", trigger).
		Str("status", rl.Status).
		Int("entries", rl.Entries).
		Int("rows_read", rl.RowsRead).
		Int("rows_written", rl.RowsWritten).
		Int("row_failures", rl.RowFailures).
		Dur("duration", rl.FinishedAt.Sub(rl.StartedAt)).
		Msg("run finished")

	if runErr != nil {
		s.emitter.Emit(ctx, EventRunFailed, *rl)
		return result, runErr
	}
	s.emitter.Emit(ctx, EventRunCompleted, *rl)
	return result, nil
}

// ListRunLogs returns the last limit runs of the configured family.
func (s *PipelineService) ListRunLogs(limit int) ([]domain.RunLog, error) {
	if s.runLogs == nil {
		return nil, nil
	}
	return s.runLogs.ListRunLogs(s.cfg.Family, limit)
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *PipelineService) WaitRunning(ctx context.Context) {
	s.running.WaitAll(ctx)
}
