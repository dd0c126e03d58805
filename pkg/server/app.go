package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"LobCast/internal/domain/repository"
	domsvc "LobCast/internal/domain/service"
	"LobCast/internal/usecase"
	pkgch "LobCast/pkg/clickhouse"
	"LobCast/pkg/config"
	xhttp "LobCast/pkg/http"
	pkgkafka "LobCast/pkg/kafka"
	applogger "LobCast/pkg/logger"
	pkgqueue "LobCast/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    xhttp.Handler
	collector  *usecase.SnapshotCollector
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	queue      *pkgqueue.RedisQueue
	runtime    domsvc.Runtime
	archiver   repository.Archiver
	metrics    repository.Metrics
	chClient   *pkgch.Client
	httpServer *xhttp.Server

	// SnapshotProc is set by DI so shutdown can release the publisher,
	// store and archive behind the feed.
	SnapshotProc *usecase.SnapshotProcessor
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	handler xhttp.Handler,
	collector *usecase.SnapshotCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	queue *pkgqueue.RedisQueue,
	runtime domsvc.Runtime,
	archiver repository.Archiver,
	metrics repository.Metrics,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		handler:   handler,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		queue:     queue,
		runtime:   runtime,
		archiver:  archiver,
		metrics:   metrics,
		chClient:  chClient,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.pingRuntime(ctx)

	// Start feed collector
	if a.cfg.Feed.Enabled && a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.log.Error("snapshot collector error", applogger.Error(err))
			}
		}()
		a.log.Info("snapshot collector started",
			applogger.Strings("instruments", a.cfg.Feed.Instruments),
			applogger.Int("depth", a.cfg.Feed.Depth))
	}

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Start training queue
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return fmt.Errorf("start queue: %w", err)
		}
		go a.pollQueueDepth(ctx)
	}

	if a.archiver != nil {
		go a.flushArchive(ctx)
	}

	// Start HTTP server
	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.log),
	}
	if !a.cfg.Metrics.Enabled {
		// Empty path suppresses the default /metrics route.
		opts = append(opts, xhttp.WithMetricsPath(""))
	} else if a.cfg.Metrics.Path != "" {
		opts = append(opts, xhttp.WithMetricsPath(a.cfg.Metrics.Path))
	}
	a.httpServer = xhttp.NewServer(a.handler, opts...)

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// pingRuntime probes the tensor runtime once at boot. Training and
// inference re-initialize it on demand, so an unreachable runtime here is
// a warning, not a startup failure.
func (a *App) pingRuntime(ctx context.Context) {
	if a.runtime == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.runtime.Ping(pctx); err != nil {
		a.log.Warn("tensor runtime unreachable",
			applogger.String("base_url", a.cfg.Runtime.BaseURL),
			applogger.Error(err))
		return
	}
	a.log.Info("tensor runtime ready", applogger.String("base_url", a.cfg.Runtime.BaseURL))
}

// pollQueueDepth samples the pending-run backlog into the gauge.
func (a *App) pollQueueDepth(ctx context.Context) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.queue.Depth(ctx)
			if err != nil {
				continue
			}
			a.metrics.SetQueueDepth(int(n))
		}
	}
}

// flushArchive pushes buffered archive rows to disk so part files stay
// readable while the process runs.
func (a *App) flushArchive(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := a.archiver.Flush(); err != nil {
				a.log.Warn("archive flush error", applogger.Error(err))
			}
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	// Stop ingest first so nothing new enters the pipeline.
	if a.cfg.Feed.Enabled && a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.queue != nil {
		if err := a.queue.Stop(shutdownCtx); err != nil {
			a.log.Warn("queue stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Close snapshot pipeline resources (publisher/store/archive)
	if a.SnapshotProc != nil {
		a.SnapshotProc.Close()
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
