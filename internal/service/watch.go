package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"periodetl/internal/domain"
)

// ── Watchers (cron + file watch) ──────────────────────────

// Watch re-runs the pipeline whenever a file under conf/ changes and on the
// configured cron schedule, serving /metrics when an address is set. It
// blocks until ctx is cancelled, then waits for an in-flight run to finish.
func (s *PipelineService) Watch(ctx context.Context) error {
	if err := s.StartWatchers(ctx); err != nil {
		return err
	}
	defer s.Stop()

	var srv *http.Server
	if addr := s.cfg.Watch.MetricsAddr; addr != "" && s.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
			}
		}()
		s.log.Info().Str("addr", addr).Msg("serving metrics")
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if srv != nil {
		srv.Shutdown(shutdownCtx)
	}
	s.WaitRunning(shutdownCtx)
	return nil
}

// StartWatchers tears down the current watcher/cron and rebuilds them.
func (s *PipelineService) StartWatchers(ctx context.Context) error {
	s.stopWatchers()

	if expr := s.cfg.Watch.Schedule; expr != "" {
		c := cron.New()
		_, err := c.AddFunc(expr, func() {
			s.log.Info().Str("schedule", expr).Msg("scheduled run")
			s.trigger(ctx, domain.TriggerSchedule)
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", expr, err)
		}
		c.Start()
		s.cronSched = c
		s.log.Info().Str("schedule", expr).Msg("cron scheduled")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.stopWatchers()
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.cfg.ConfDir()); err != nil {
		watcher.Close()
		s.stopWatchers()
		return fmt.Errorf("watch %s: %w", s.cfg.ConfDir(), err)
	}
	s.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel

	debounce := s.cfg.Watch.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	go func() {
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				name := event.Name
				timer = time.AfterFunc(debounce, func() {
					s.log.Info().Str("file", name).Msg("configuration changed")
					s.trigger(watchCtx, domain.TriggerWatch)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn().Err(err).Msg("watcher error")
			}
		}
	}()

	s.log.Info().Str("dir", s.cfg.ConfDir()).Msg("watching configuration")
	return nil
}

// trigger runs the pipeline, logging rather than returning failures.
func (s *PipelineService) trigger(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.Run(ctx, trigger); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.log.Info().Str("trigger", trigger).Msg("run already in progress, skipped")
			return
		}
		s.log.Error().Err(err).Str("trigger", trigger).Msg("triggered run failed")
	}
}

// Stop tears down all watchers and schedulers.
func (s *PipelineService) Stop() {
	s.stopWatchers()
}

func (s *PipelineService) stopWatchers() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
