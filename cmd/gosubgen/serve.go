package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/jo-hoe/gosubgen/internal/common"
	"github.com/jo-hoe/gosubgen/internal/config"
	"github.com/jo-hoe/gosubgen/internal/dispatch"
	"github.com/jo-hoe/gosubgen/internal/engine"
	"github.com/jo-hoe/gosubgen/internal/engine/mock"
	"github.com/jo-hoe/gosubgen/internal/engine/whisperx"
	"github.com/jo-hoe/gosubgen/internal/jobs"
	"github.com/jo-hoe/gosubgen/internal/media"
	"github.com/jo-hoe/gosubgen/internal/metrics"
	"github.com/jo-hoe/gosubgen/internal/probe"
	"github.com/jo-hoe/gosubgen/internal/processor"
	"github.com/jo-hoe/gosubgen/internal/resolver"
	"github.com/jo-hoe/gosubgen/internal/server"
	"github.com/jo-hoe/gosubgen/internal/storage"
	"github.com/jo-hoe/gosubgen/internal/subtitles"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and the transcription workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

// app is the wired service. Only one may run per data directory.
type app struct {
	log        *slog.Logger
	cfg        *config.Config
	lock       *flock.Flock
	store      *jobs.SQLiteStore
	queue      *jobs.Queue
	dispatcher *dispatch.Dispatcher
	worker     *processor.Worker
	metrics    *metrics.Metrics
	httpSrv    *http.Server
}

func newApp(log *slog.Logger, cfg *config.Config) (*app, error) {
	lock := flock.New(filepath.Join(cfg.Server.DataDir, common.LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another gosubgen instance is already using %s", cfg.Server.DataDir)
	}

	store, err := jobs.NewSQLiteStore(cfg.Server.DatabasePath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open job history: %w", err)
	}

	scratch := storage.NewScratch(cfg.Server.DataDir)
	if err := scratch.Reset(); err != nil {
		log.Warn("could not clear scratch directory", "dir", scratch.BaseDir(), "err", err)
	}

	eng, err := newEngine(log, cfg, scratch)
	if err != nil {
		_ = store.Close()
		_ = lock.Unlock()
		return nil, err
	}

	reg := resolver.NewRegistry()
	reg.Add(resolver.Tautulli{})
	if cfg.Plex.Configured() {
		reg.Add(resolver.NewPlex(cfg.Plex.URL, cfg.Plex.Token, nil))
	}
	if cfg.Jellyfin.Configured() {
		reg.Add(resolver.NewJellyfin(cfg.Jellyfin.URL, cfg.Jellyfin.Token, nil))
	}

	m := metrics.New()
	queue := jobs.NewQueue(log, cfg.Transcription.QueueCapacity, cfg.Transcription.Concurrency)
	checker := newChecker(log, cfg)
	d := dispatch.New(log, checker, queue, store, m)
	pipeline := dispatch.NewPipeline(log, cfg.Events, reg, pathMapper(cfg), d)

	svc := &server.Service{
		Log:      log,
		Cfg:      cfg,
		Store:    store,
		Events:   pipeline,
		InFlight: d,
		Metrics:  m,
	}

	a := &app{
		log:        log,
		cfg:        cfg,
		lock:       lock,
		store:      store,
		queue:      queue,
		dispatcher: d,
		metrics:    m,
		httpSrv:    server.NewHTTPServer(svc),
	}
	a.worker = processor.New(log, cfg, store, eng, m)

	providers := make([]string, 0, 3)
	for _, p := range reg.Providers() {
		providers = append(providers, string(p))
	}
	log.Info("gosubgen configured",
		"engine", eng.Name(),
		"model", cfg.Transcription.Model,
		"device", cfg.Transcription.Device,
		"threads", cfg.Transcription.Threads,
		"concurrency", queue.Workers(),
		"skip_internal_language", checker.SkipLanguage(),
		"providers", strings.Join(providers, ","),
		"path_mapping", cfg.PathMapping.Enabled)
	return a, nil
}

func newEngine(log *slog.Logger, cfg *config.Config, scratch *storage.Scratch) (engine.Engine, error) {
	switch cfg.Transcription.Engine {
	case "whisperx":
		return whisperx.New(log, cfg.Transcription, scratch), nil
	case "mock":
		return mock.New(cfg.Transcription.Mock), nil
	default:
		return nil, fmt.Errorf("unsupported transcription engine %q", cfg.Transcription.Engine)
	}
}

func newChecker(log *slog.Logger, cfg *config.Config) *subtitles.Checker {
	return subtitles.NewChecker(log, probe.New(cfg.Subtitles.FFprobePath), subtitles.Options{
		Model:        cfg.Transcription.Model,
		NameLanguage: cfg.Subtitles.NameLanguage,
		SkipLanguage: cfg.Subtitles.SkipIfInternalLanguage,
		FailOpen:     cfg.Subtitles.ProbeFailOpen,
	})
}

func pathMapper(cfg *config.Config) media.PathMapper {
	return media.PathMapper{
		Enabled: cfg.PathMapping.Enabled,
		From:    cfg.PathMapping.From,
		To:      cfg.PathMapping.To,
	}
}

// start launches the workers. ctx only cancels running transcriptions
// outright; close gives them the shutdown grace period first.
func (a *app) start(ctx context.Context) error {
	return a.queue.Start(ctx, a.worker)
}

// close stops the HTTP server, drains the queue and releases the data directory.
func (a *app) close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownGrace)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", "err", err)
	}
	a.queue.Shutdown(a.cfg.Server.ShutdownGrace)
	if err := a.store.Close(); err != nil {
		a.log.Warn("close job history", "err", err)
	}
	if err := a.lock.Unlock(); err != nil {
		a.log.Warn("release lock", "err", err)
	}
}

func runServe(parent context.Context, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.logger()
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}

	a, err := newApp(logger, cfg)
	if err != nil {
		return err
	}

	rootCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	// Signals must not reach running engines directly; close drains them.
	if err := a.start(context.WithoutCancel(parent)); err != nil {
		a.close()
		return fmt.Errorf("start queue: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "address", cfg.Server.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("server error", "err", serveErr)
		}
	}

	a.close()
	logger.Info("server stopped")
	return serveErr
}
