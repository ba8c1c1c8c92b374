package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"content-automation-pipeline/internal/config"
	"content-automation-pipeline/internal/dedup"
	"content-automation-pipeline/internal/ledger"
	"content-automation-pipeline/internal/media"
	"content-automation-pipeline/internal/pipeline"
	"content-automation-pipeline/internal/providers"
	"content-automation-pipeline/internal/publish"
	"content-automation-pipeline/internal/queue"
	"content-automation-pipeline/internal/scheduler"
	"content-automation-pipeline/internal/store"
	"content-automation-pipeline/internal/telemetry"
	"content-automation-pipeline/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	q := queue.NewRedisQueue(cfg)

	// Social posts attach media only when an S3 bucket is configured.
	var resolver publish.MediaResolver
	if cfg.MediaS3Bucket != "" {
		r, err := media.NewResolver(ctx, cfg)
		if err != nil {
			log.Fatalf("init media resolver: %v", err)
		}
		resolver = r
	}

	dispatcher := publish.NewDispatcher(st, logger, cfg.PublishTimeout,
		publish.NewWordPressChannel(cfg),
		publish.NewSocialChannel(cfg, resolver),
	)

	orch := pipeline.New(cfg, pipeline.Deps{
		Store:     st,
		Generator: providers.NewGenerationClient(cfg),
		Detector:  providers.NewDetectionClient(cfg),
		Ledger:    ledger.New(st),
		Dedup:     dedup.New(st, cfg.DedupWindow),
		Publisher: dispatcher,
		Logger:    logger,
	})

	// Internal ticker backs up the external /scheduler/tick invoker. The
	// per-automation lock makes the overlap harmless.
	sched := scheduler.New(st, q, logger)
	go func() {
		ticker := time.NewTicker(cfg.SchedulerTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := sched.Tick(ctx, time.Now().UTC()); err != nil {
					logger.Warn("scheduler tick", "error", err)
				}
			}
		}
	}()

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("worker started with visibility=%s poll=%s", cfg.VisibilityTimeout, cfg.WorkerPollInterval)
	w := worker.New(cfg, q, st, orch, logger)
	if err := w.Run(ctx); err != nil {
		log.Printf("worker stopped: %v", err)
	}
}
