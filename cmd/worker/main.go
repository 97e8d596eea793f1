package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facewatch/internal/bootstrap"
	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/detection"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/queue"
	"github.com/your-org/facewatch/internal/storage"
	"github.com/your-org/facewatch/internal/tasks"
	"github.com/your-org/facewatch/internal/vision"
)

const (
	taskConsumer       = "detection-workers"
	queueDepthInterval = 10 * time.Second
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}

// run wires the worker and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting facewatch detection worker",
		"workers", cfg.Vision.WorkerCount,
		"cpu_cores", runtime.NumCPU(),
		"detector", cfg.Vision.Detector,
	)

	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	images, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("connect to minio: %w", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer producer.Close()
	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	localizer := bootstrap.InitLocalizer(cfg.Vision)
	defer localizer.Close()
	if !localizer.Ready() {
		return fmt.Errorf("face detector not ready: %s", localizer.Status())
	}

	pool := tasks.NewPool(cfg.Background.Workers, cfg.Background.QueueSize)
	dispatcher := bootstrap.NewDispatcher(cfg.Notify, db)
	pipeline := detection.NewPipeline(detection.Options{
		Normalizer:    bootstrap.NewNormalizer(cfg.Vision, images),
		Localizer:     localizer,
		Matcher:       vision.NewMatcher(cfg.Vision.MatchThreshold),
		Store:         db,
		Notifier:      dispatcher,
		Publisher:     producer,
		Background:    pool,
		Objects:       images,
		MaxConcurrent: int64(cfg.Vision.WorkerCount),
		DetectTimeout: cfg.Vision.DetectTimeout,
	})
	runner := detection.NewTaskRunner(images, pipeline)

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	defer consumer.Close()

	err = consumer.ConsumeDetections(ctx, taskConsumer, func(ctx context.Context, msg jetstream.Msg) error {
		return runner.Handle(ctx, msg.Data())
	}, cfg.Vision.WorkerCount)
	if err != nil {
		return fmt.Errorf("start detection consumer: %w", err)
	}

	go detection.NewSweeper(db, dispatcher, cfg.Notify).Run(ctx)
	go reportQueueDepth(ctx, producer)
	metricsSrv := serveMetrics(cfg.Server.MetricsPort)

	<-ctx.Done()
	slog.Info("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		slog.Warn("background tasks did not drain", "error", err)
	}
	return metricsSrv.Shutdown(shutdownCtx)
}

// serveMetrics exposes Prometheus metrics and a liveness check.
func serveMetrics(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker metrics listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server", "error", err)
		}
	}()
	return srv
}

func reportQueueDepth(ctx context.Context, producer *queue.Producer) {
	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := producer.QueueDepth(ctx)
			if err != nil {
				slog.Debug("read queue depth", "error", err)
				continue
			}
			observability.QueueDepth.Set(float64(depth))
		}
	}
}
