package main

import (
	"context"
	"encoding/json"
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
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facewatch/internal/api"
	"github.com/your-org/facewatch/internal/api/ws"
	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/engine"
	"github.com/your-org/facewatch/internal/ingest"
	"github.com/your-org/facewatch/internal/learner"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/queue"
	"github.com/your-org/facewatch/internal/resolve"
	"github.com/your-org/facewatch/internal/storage"
	"github.com/your-org/facewatch/internal/track"
	"github.com/your-org/facewatch/internal/vision"
	"github.com/your-org/facewatch/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	sourceURL := flag.String("source", "", "video source URL (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *sourceURL != "" {
		cfg.Source.URL = *sourceURL
	}
	if cfg.Source.URL == "" {
		fmt.Fprintln(os.Stderr, "no video source configured (set source.url or -source)")
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facewatch engine",
		"source", cfg.Source.URL,
		"fps", cfg.Source.FPS,
		"port", cfg.Server.Port,
	)

	// Initialize ONNX Runtime
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Vision models
	adapter, err := vision.NewAdapter(cfg.Vision, nil)
	if err != nil {
		slog.Error("init vision models", "error", err)
		os.Exit(1)
	}
	defer adapter.Close()

	// Learner: restore persisted thresholds if present
	l := learner.New(cfg.Learner)
	if l.Load() {
		slog.Info("learner state restored",
			"global_threshold", l.GlobalThreshold(),
			"path", cfg.Learner.StatePath,
		)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Frame source and the engine itself
	source := ingest.NewFFmpegSource(cfg.Source.URL, cfg.Source.FPS, cfg.Source.Width)
	coordinator := engine.NewCoordinator(engine.Options{
		Source:     source,
		Detector:   adapter,
		Embedder:   adapter,
		Cropper:    adapter,
		Enrollment: db,
		Tracker:    track.NewManager(cfg.Tracking.TTL, cfg.Tracking.HistorySize),
		Resolver:   resolve.NewResolver(l),
		Learner:    l,
		Sinks: []engine.DecisionSink{
			&engine.LogSink{},
			producer,
			storage.NewSnapshotSink(minioStore),
			hub,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Apply queued feedback from remote producers
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create feedback consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	feedbackCtx, feedbackCancel := context.WithCancel(ctx)
	defer feedbackCancel()

	feedbackDone, err := consumer.ConsumeFeedback(feedbackCtx, "engine-feedback", func(ctx context.Context, msg jetstream.Msg) error {
		var req dto.FeedbackRequest
		if err := json.Unmarshal(msg.Data(), &req); err != nil {
			slog.Error("unmarshal feedback", "error", err)
			return nil // Don't retry on unmarshal errors
		}
		if req.Correct == nil {
			slog.Warn("feedback without verdict ignored")
			return nil
		}
		if _, err := coordinator.ProvideFeedback(req.FrameID, *req.Correct, req.TrueName); err != nil {
			slog.Warn("queued feedback rejected", "frame_id", req.FrameID, "error", err)
		}
		return nil
	})
	if err != nil {
		slog.Warn("start feedback consumer", "error", err)
		closed := make(chan struct{})
		close(closed)
		feedbackDone = closed
	}

	// Control surface
	router := api.NewRouter(api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		DB:         db,
		MinIO:      minioStore,
		Producer:   producer,
		Hub:        hub,
		Learner:    l,
		Engine:     coordinator,
		StopSource: source.Stop,
		EmbedFn:    adapter.EmbedImage,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("engine API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Frame loop
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := coordinator.Run(ctx); err != nil {
			slog.Error("engine loop error", "error", err)
		}
	}()

	// Wait for shutdown or source exhaustion
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down engine...")
		// Drain queued verdicts before the frame loop exits and the learner
		// state is saved.
		feedbackCancel()
		select {
		case <-feedbackDone:
		case <-time.After(6 * time.Second):
			slog.Warn("feedback drain did not finish in time")
		}
		source.Stop()
		cancel()
		select {
		case <-engineDone:
		case <-time.After(10 * time.Second):
			slog.Warn("engine loop did not stop in time")
		}
	case <-engineDone:
		slog.Info("video source exhausted, shutting down")
		feedbackCancel()
		select {
		case <-feedbackDone:
		case <-time.After(6 * time.Second):
			slog.Warn("feedback drain did not finish in time")
		}
		cancel()
		// The loop already saved on exit; late verdicts need another save.
		if err := l.Save(); err != nil {
			slog.Warn("save learner state", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("engine stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
