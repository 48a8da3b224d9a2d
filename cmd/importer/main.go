package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/voice-sentinel/internal/biometric"
	"github.com/raaihank/voice-sentinel/internal/cache"
	"github.com/raaihank/voice-sentinel/internal/config"
	"github.com/raaihank/voice-sentinel/internal/importer"
	"github.com/raaihank/voice-sentinel/internal/logger"
	"github.com/raaihank/voice-sentinel/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSON-lines)")
		batchSize  = flag.Int("batch-size", 1000, "Batch size for reading records")
		skipCache  = flag.Bool("skip-cache", false, "Skip Redis cache invalidation")
		skipIndex  = flag.Bool("skip-index", false, "Skip creating vector index")
		skipStatus = flag.Bool("skip-status", false, "Skip re-evaluating registration status")
		clearCache = flag.Bool("clear-cache", false, "Clear the analysis cache and exit")
		showStats  = flag.Bool("stats", false, "Show repository statistics and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*clearCache && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input samples.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input samples.parquet --skip-status\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --clear-cache\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Voice-Sentinel dataset importer",
		zap.String("version", "0.1.0"),
		zap.String("config", *configPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling import...")
		cancel()
	}()

	repo, err := store.NewPostgresStore(&cfg.Database, log.WithComponent("store").Logger)
	if err != nil {
		log.Fatal("Failed to connect to sample repository", zap.Error(err))
	}
	defer repo.Close()

	var analysisCache *cache.AnalysisCache
	if !*skipCache {
		analysisCache, err = cache.NewAnalysisCache(&cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			log.Warn("Analysis cache unavailable, continuing without it", zap.Error(err))
			analysisCache = nil
		} else {
			defer analysisCache.Close()
		}
	}

	switch {
	case *showStats:
		if err := showRepositoryStats(ctx, repo, analysisCache); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
	case *clearCache:
		if analysisCache == nil {
			log.Fatal("Analysis cache is not available")
		}
		if err := analysisCache.Clear(ctx); err != nil {
			log.Fatal("Failed to clear cache", zap.Error(err))
		}
		log.Info("Analysis cache cleared")
	default:
		if _, err := os.Stat(*inputFile); os.IsNotExist(err) {
			log.Fatal("Input file does not exist", zap.String("file", *inputFile))
		}

		importConfig := importer.DefaultConfig()
		importConfig.BatchSize = *batchSize
		importConfig.CreateIndex = !*skipIndex
		importConfig.ReevaluateStatus = !*skipStatus
		importConfig.ExpectedDims = cfg.Embedder.Dimensions

		analyzer := biometric.NewAnalyzer(cfg.Completion, log.WithComponent("biometric").Logger)
		imp := importer.New(repo, analyzer, analysisCache, &importConfig, log.WithComponent("importer").Logger)

		result, err := imp.ImportFile(ctx, *inputFile)
		if err != nil {
			log.Fatal("Dataset import failed", zap.Error(err))
		}

		log.Info("Dataset import finished",
			zap.String("file", *inputFile),
			zap.Int64("total_records", result.TotalRecords),
			zap.Int64("imported", result.Imported),
			zap.Int64("skipped", result.Skipped),
			zap.Int64("failed", result.Failed),
			zap.Int("users_affected", result.UsersAffected),
			zap.Int("users_completed", result.UsersCompleted),
			zap.Duration("duration", result.Duration),
			zap.Float64("records_per_second", float64(result.TotalRecords)/result.Duration.Seconds()))

		if len(result.Errors) > 0 {
			log.Warn("Import completed with errors", zap.Strings("errors", result.Errors))
		}
	}

	log.Info("Importer completed successfully")
}

// showRepositoryStats displays current repository and cache statistics
func showRepositoryStats(ctx context.Context, repo *store.PostgresStore, analysisCache *cache.AnalysisCache) error {
	stats, err := repo.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get repository stats: %w", err)
	}

	fmt.Printf("\n=== Voice-Sentinel Repository Statistics ===\n")
	fmt.Printf("Total Samples:       %d\n", stats.TotalSamples)
	fmt.Printf("Enrolled Users:      %d\n", stats.TotalUsers)
	fmt.Printf("Completed Users:     %d\n", stats.CompletedUsers)
	fmt.Printf("Average Quality:     %.3f\n", stats.AverageQuality)

	if analysisCache != nil {
		cacheStats, err := analysisCache.GetStats(ctx)
		if err == nil {
			fmt.Printf("\n=== Cache Statistics ===\n")
			fmt.Printf("Cache Hits:          %d\n", cacheStats.Hits)
			fmt.Printf("Cache Misses:        %d\n", cacheStats.Misses)
			fmt.Printf("Hit Rate:            %.1f%%\n", cacheStats.HitRate)
			fmt.Printf("Total Keys:          %d\n", cacheStats.TotalKeys)
			fmt.Printf("Memory Usage:        %.2f MB\n", float64(cacheStats.MemoryUsage)/1024/1024)
		}
	}

	return nil
}
