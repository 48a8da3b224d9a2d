package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/raaihank/voice-sentinel/internal/audiostore"
	"github.com/raaihank/voice-sentinel/internal/biometric"
	"github.com/raaihank/voice-sentinel/internal/cache"
	"github.com/raaihank/voice-sentinel/internal/config"
	"github.com/raaihank/voice-sentinel/internal/embedder"
	"github.com/raaihank/voice-sentinel/internal/logger"
	"github.com/raaihank/voice-sentinel/internal/notify"
	"github.com/raaihank/voice-sentinel/internal/pipeline"
	"github.com/raaihank/voice-sentinel/internal/server"
	"github.com/raaihank/voice-sentinel/internal/store"
	"github.com/raaihank/voice-sentinel/internal/validate"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Voice-Sentinel %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Voice-Sentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port))

	// Sample repository
	repo, err := store.NewPostgresStore(&cfg.Database, log.WithComponent("store").Logger)
	if err != nil {
		log.Fatal("Failed to connect to sample repository", zap.Error(err))
	}
	defer repo.Close()

	// Redis cache and event queue. The cache is advisory; a Redis failure
	// only disables it. The queue is required when the worker is enabled.
	var analysisCache *cache.AnalysisCache
	analysisCache, err = cache.NewAnalysisCache(&cfg.Cache, log.WithComponent("cache").Logger)
	if err != nil {
		log.Warn("Analysis cache unavailable, continuing without it", zap.Error(err))
		analysisCache = nil
	} else {
		defer analysisCache.Close()
	}

	var queue *cache.EventQueue
	if cfg.Worker.Enabled {
		queue, err = cache.NewEventQueue(&cfg.Cache, log.WithComponent("queue").Logger)
		if err != nil {
			log.Fatal("Failed to connect to event queue", zap.Error(err))
		}
		defer queue.Close()
	}

	// WebSocket hub for enrollment notifications
	hub := notify.NewHub(&cfg.Notifications, log.WithComponent("notify").Logger)
	go hub.Run()

	// Embedding generator
	backend := embedder.NewAudioBackend(log.WithComponent("embedder").Logger,
		cfg.Embedder.ModelPath, cfg.Embedder.Dimensions)
	generator := embedder.NewSpectralGenerator(cfg.Embedder, backend, log.WithComponent("embedder").Logger)
	defer generator.Close()

	// Completion analyzer, cached when Redis is up
	analyzer := biometric.NewAnalyzer(cfg.Completion, log.WithComponent("biometric").Logger)
	var pipelineAnalyzer pipeline.Analyzer = pipeline.LocalAnalyzer{Analyzer: analyzer}
	if analysisCache != nil {
		pipelineAnalyzer = cache.NewCachedAnalyzer(analyzer, analysisCache, log.WithComponent("cache").Logger)
	}

	// Audio bucket
	audio := audiostore.NewS3Store(newS3Client(cfg.Audio), cfg.Audio.Bucket,
		cfg.Audio.MaxSizeBytes, log.WithComponent("audiostore").Logger)

	validator := validate.NewValidator(cfg.Validation, log.WithComponent("validate").Logger)

	pipe := pipeline.New(cfg.Pipeline, audio, validator, generator, repo,
		pipelineAnalyzer, hub, log.WithComponent("pipeline").Logger)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()

	workerDone := make(chan struct{})
	if cfg.Worker.Enabled {
		worker := pipeline.NewWorker(pipe, queue, cfg.Worker.Concurrency, log.WithComponent("worker").Logger)
		go func() {
			defer close(workerDone)
			if err := worker.Run(workerCtx); err != nil {
				log.Error("Event worker stopped with error", zap.Error(err))
			}
		}()
	} else {
		close(workerDone)
	}

	srv := server.New(cfg, log, hub, repo, analysisCache, queue)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	// Stop consuming events, let in-flight runs finish, then stop the server.
	cancelWorker()
	select {
	case <-workerDone:
	case <-time.After(60 * time.Second):
		log.Warn("Timed out waiting for in-flight pipeline runs")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Error("Failed to shutdown server gracefully", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Server shutdown complete")
}

// newS3Client builds the bucket client from config plus the standard AWS
// environment credentials.
func newS3Client(cfg audiostore.S3Config) *s3.Client {
	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			}, nil
		}),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
