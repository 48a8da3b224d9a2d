package importer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/raaihank/voice-sentinel/internal/biometric"
	"github.com/raaihank/voice-sentinel/internal/cache"
	"github.com/raaihank/voice-sentinel/internal/store"
)

// IndexCreator is implemented by repositories that can build a vector
// similarity index after a large import.
type IndexCreator interface {
	CreateIndex(ctx context.Context) error
}

// Importer backfills enrollments from datasets of pre-computed embeddings.
// Samples go through the same repository append as live pipeline runs, so
// counts stay authoritative and completion is re-derived per user.
type Importer struct {
	repo     store.SampleRepository
	analyzer *biometric.Analyzer
	cache    *cache.AnalysisCache
	config   *Config
	logger   *zap.Logger
}

// New creates a dataset importer. cache may be nil; invalidation is skipped.
func New(repo store.SampleRepository, analyzer *biometric.Analyzer, analysisCache *cache.AnalysisCache,
	config *Config, logger *zap.Logger) *Importer {
	return &Importer{
		repo:     repo,
		analyzer: analyzer,
		cache:    analysisCache,
		config:   config,
		logger:   logger,
	}
}

// ImportFile imports a dataset file (CSV, Parquet, or JSON-lines).
func (i *Importer) ImportFile(ctx context.Context, filePath string) (*Result, error) {
	i.logger.Info("Starting dataset import",
		zap.String("file", filePath),
		zap.Int("batch_size", i.config.BatchSize))

	start := time.Now()
	result := &Result{}
	affected := make(map[string]struct{})

	format := DetectFileFormat(filePath)
	i.logger.Info("Detected file format", zap.String("format", string(format)))

	var err error
	switch format {
	case FormatCSV:
		err = i.importCSV(ctx, filePath, result, affected)
	case FormatParquet:
		err = i.importParquet(ctx, filePath, result, affected)
	case FormatJSON:
		err = i.importJSON(ctx, filePath, result, affected)
	default:
		return result, fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return result, fmt.Errorf("%s import failed: %w", format, err)
	}

	result.UsersAffected = len(affected)

	if i.config.ReevaluateStatus {
		if err := i.reevaluateUsers(ctx, affected, result); err != nil {
			i.logger.Warn("Status re-evaluation incomplete", zap.Error(err))
		}
	}

	if i.config.CreateIndex && result.Imported > 1000 {
		if creator, ok := i.repo.(IndexCreator); ok {
			i.logger.Info("Creating vector similarity index...")
			indexStart := time.Now()
			if err := creator.CreateIndex(ctx); err != nil {
				i.logger.Warn("Failed to create vector index", zap.Error(err))
			} else {
				i.logger.Info("Vector index created", zap.Duration("duration", time.Since(indexStart)))
			}
		}
	}

	result.Duration = time.Since(start)

	i.logger.Info("Dataset import completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("imported", result.Imported),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("failed", result.Failed),
		zap.Int("users_affected", result.UsersAffected),
		zap.Int("users_completed", result.UsersCompleted),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// importCSV imports CSV datasets with columns user_id, quality, embedding.
// The embedding column is a semicolon-separated float list.
func (i *Importer) importCSV(ctx context.Context, filePath string, result *Result, affected map[string]struct{}) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 3

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	i.logger.Info("CSV header detected", zap.Strings("columns", header))

	return i.importBatches(ctx, func() ([]DatasetRecord, error) {
		var batch []DatasetRecord
		for len(batch) < i.config.BatchSize {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				i.logger.Warn("Failed to read CSV record", zap.Error(err))
				result.Failed++
				continue
			}
			record, err := parseCSVRecord(row)
			if err != nil {
				i.logger.Warn("Malformed CSV record", zap.Error(err))
				result.Failed++
				continue
			}
			batch = append(batch, record)
		}
		return batch, nil
	}, result, affected)
}

// importParquet imports Parquet datasets.
func (i *Importer) importParquet(ctx context.Context, filePath string, result *Result, affected map[string]struct{}) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	return i.importBatches(ctx, func() ([]DatasetRecord, error) {
		var batch []DatasetRecord
		for len(batch) < i.config.BatchSize {
			var record DatasetRecord
			err := reader.Read(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				i.logger.Warn("Failed to read Parquet record", zap.Error(err))
				result.Failed++
				continue
			}
			batch = append(batch, record)
		}
		return batch, nil
	}, result, affected)
}

// importJSON imports JSON-lines datasets (one object per line).
func (i *Importer) importJSON(ctx context.Context, filePath string, result *Result, affected map[string]struct{}) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	return i.importBatches(ctx, func() ([]DatasetRecord, error) {
		var batch []DatasetRecord
		for len(batch) < i.config.BatchSize {
			var record DatasetRecord
			err := decoder.Decode(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				i.logger.Warn("Failed to read JSON record", zap.Error(err))
				result.Failed++
				continue
			}
			batch = append(batch, record)
		}
		return batch, nil
	}, result, affected)
}

// importBatches drains the reader function and appends valid records.
func (i *Importer) importBatches(ctx context.Context, readBatch func() ([]DatasetRecord, error),
	result *Result, affected map[string]struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, record := range batch {
			result.TotalRecords++

			if !i.validateRecord(record) {
				result.Skipped++
				continue
			}

			sample := biometric.StoredSample{
				Embedding: record.Embedding,
				Quality:   record.Quality,
				Metadata:  map[string]string{"source": "import"},
			}

			dbStart := time.Now()
			if _, err := i.repo.AppendSample(ctx, record.UserID, sample); err != nil {
				i.logger.Warn("Failed to append sample",
					zap.String("user_id", record.UserID),
					zap.Error(err))
				result.Failed++
				result.Errors = appendBounded(result.Errors, err.Error())
				continue
			}
			result.DatabaseTime += time.Since(dbStart)

			result.Imported++
			affected[record.UserID] = struct{}{}

			if i.config.ProgressReport > 0 && result.Imported%int64(i.config.ProgressReport) == 0 {
				i.logger.Info("Import progress",
					zap.Int64("imported", result.Imported),
					zap.Int64("skipped", result.Skipped),
					zap.Int64("failed", result.Failed))
			}
		}
	}

	return nil
}

// reevaluateUsers re-derives completion for every affected user and persists
// status flips, mirroring the live pipeline's final stage.
func (i *Importer) reevaluateUsers(ctx context.Context, affected map[string]struct{}, result *Result) error {
	for userID := range affected {
		samples, err := i.repo.GetSamples(ctx, userID)
		if err != nil {
			return fmt.Errorf("get samples for %s: %w", userID, err)
		}

		analysis := i.analyzer.Analyze(samples)

		status, err := i.repo.GetStatus(ctx, userID)
		if err != nil {
			return fmt.Errorf("get status for %s: %w", userID, err)
		}

		if i.analyzer.ShouldTriggerUpdate(analysis, status) {
			update := store.StatusUpdate{
				Complete:   store.Bool(analysis.IsComplete),
				Confidence: store.Float64(analysis.CompletionConfidence),
			}
			if analysis.IsComplete && !status.Complete {
				update.CompletedAt = store.Time(time.Now().UTC())
			}
			if err := i.repo.SetStatus(ctx, userID, update); err != nil {
				return fmt.Errorf("set status for %s: %w", userID, err)
			}
		}

		if analysis.IsComplete {
			result.UsersCompleted++
		}

		if i.cache != nil {
			if err := i.cache.Invalidate(ctx, userID); err != nil {
				i.logger.Warn("Cache invalidation failed",
					zap.String("user_id", userID),
					zap.Error(err))
			}
		}
	}
	return nil
}

// validateRecord validates a dataset record
func (i *Importer) validateRecord(record DatasetRecord) bool {
	if !i.config.ValidateData {
		return true
	}

	if strings.TrimSpace(record.UserID) == "" {
		i.logger.Debug("Invalid record: empty user_id")
		return false
	}
	if len(record.Embedding) == 0 {
		i.logger.Debug("Invalid record: empty embedding", zap.String("user_id", record.UserID))
		return false
	}
	if i.config.ExpectedDims > 0 && len(record.Embedding) != i.config.ExpectedDims {
		i.logger.Debug("Invalid record: dimension mismatch",
			zap.String("user_id", record.UserID),
			zap.Int("dims", len(record.Embedding)),
			zap.Int("expected", i.config.ExpectedDims))
		return false
	}
	if record.Quality < 0 || record.Quality > 1 {
		i.logger.Debug("Invalid record: quality out of range",
			zap.String("user_id", record.UserID),
			zap.Float64("quality", record.Quality))
		return false
	}

	return true
}

// parseCSVRecord parses one user_id, quality, embedding row.
func parseCSVRecord(row []string) (DatasetRecord, error) {
	if len(row) != 3 {
		return DatasetRecord{}, fmt.Errorf("expected 3 columns, got %d", len(row))
	}

	quality, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
	if err != nil {
		return DatasetRecord{}, fmt.Errorf("invalid quality %q: %w", row[1], err)
	}

	parts := strings.Split(strings.TrimSpace(row[2]), ";")
	embedding := make([]float32, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return DatasetRecord{}, fmt.Errorf("invalid embedding component %q: %w", part, err)
		}
		embedding = append(embedding, float32(v))
	}

	return DatasetRecord{
		UserID:    strings.TrimSpace(row[0]),
		Quality:   quality,
		Embedding: embedding,
	}, nil
}

// appendBounded keeps the error list from growing without bound on bad files.
func appendBounded(errs []string, msg string) []string {
	if len(errs) >= 100 {
		return errs
	}
	return append(errs, msg)
}
