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
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/api"
	"github.com/your-org/facewatch/internal/api/handlers"
	"github.com/your-org/facewatch/internal/api/ws"
	"github.com/your-org/facewatch/internal/bootstrap"
	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/detection"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/queue"
	"github.com/your-org/facewatch/internal/storage"
	"github.com/your-org/facewatch/internal/tasks"
	"github.com/your-org/facewatch/internal/vision"
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
		slog.Error("api failed", "error", err)
		os.Exit(1)
	}
	slog.Info("API server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting facewatch API service", "port", cfg.Server.Port, "detector", cfg.Vision.Detector)

	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	images, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("connect to minio: %w", err)
	}
	if err := images.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	producer := connectQueue(ctx, cfg.NATS.URL)
	if producer != nil {
		defer producer.Close()
		if consumer := relayEvents(ctx, cfg.NATS.URL, hub); consumer != nil {
			defer consumer.Close()
		}
	}

	localizer := bootstrap.InitLocalizer(cfg.Vision)
	defer localizer.Close()
	normalizer := bootstrap.NewNormalizer(cfg.Vision, images)

	pool := tasks.NewPool(cfg.Background.Workers, cfg.Background.QueueSize)
	pipeline := detection.NewPipeline(detection.Options{
		Normalizer:    normalizer,
		Localizer:     localizer,
		Matcher:       vision.NewMatcher(cfg.Vision.MatchThreshold),
		Store:         db,
		Notifier:      bootstrap.NewDispatcher(cfg.Notify, db),
		Publisher:     hub,
		Background:    pool,
		Objects:       images,
		MaxConcurrent: int64(cfg.Vision.WorkerCount),
		DetectTimeout: cfg.Vision.DetectTimeout,
	})

	routes := api.RouterConfig{
		APIKey:         cfg.Server.APIKey,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Detector:       pipeline,
		Enroller:       detection.NewEnroller(normalizer, localizer, db, images),
		Profiles:       db,
		Detections:     db,
		Images:         images,
		DetectorStatus: localizer,
		Hub:            hub,
		Checks: map[string]handlers.Pinger{
			"postgres": db,
			"minio":    images,
		},
	}
	// a nil *Producer must not end up inside the Queue interface
	if producer != nil {
		routes.Queue = producer
		routes.Checks["nats"] = handlers.PingFunc(func(context.Context) error { return producer.Ping() })
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(routes),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	// in-flight notifications finish before the stores close
	if err := pool.Shutdown(shutdownCtx); err != nil {
		slog.Warn("background tasks did not drain", "error", err)
	}
	return nil
}

// connectQueue returns nil when NATS is unreachable. Synchronous detection
// keeps working without it.
func connectQueue(ctx context.Context, url string) *queue.Producer {
	producer, err := queue.NewProducer(url)
	if err != nil {
		slog.Warn("connect to nats, asynchronous detection disabled", "error", err)
		return nil
	}
	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}
	return producer
}

// relayEvents forwards worker results and errors from NATS to this
// instance's WebSocket subscribers.
func relayEvents(ctx context.Context, url string, hub *ws.Hub) *queue.Consumer {
	consumer, err := queue.NewConsumer(url)
	if err != nil {
		slog.Warn("create event consumer", "error", err)
		return nil
	}
	name := "api-events-" + uuid.NewString()[:8]
	if err := consumer.ConsumeEvents(ctx, name, queue.NewRelay(hub).Handler()); err != nil {
		slog.Warn("start event consumer", "error", err)
	}
	return consumer
}
