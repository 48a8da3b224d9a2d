package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/voice-sentinel/internal/biometric"
)

// PostgresStore persists voice samples and registration status in
// PostgreSQL with pgvector embeddings.
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresStore connects to the database and verifies the pgvector
// extension is installed.
func NewPostgresStore(config *Config, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &PostgresStore{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Sample store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// initialize checks database connection and ensures pgvector extension
func (s *PostgresStore) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var extensionExists bool
	query := "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')"
	if err := s.db.GetContext(ctx, &extensionExists, query); err != nil {
		return fmt.Errorf("failed to check pgvector extension: %w", err)
	}

	if !extensionExists {
		return fmt.Errorf("pgvector extension is not installed")
	}

	s.logger.Info("Database initialized with pgvector extension")
	return nil
}

// GetSamples returns all samples for a user in insertion order.
func (s *PostgresStore) GetSamples(ctx context.Context, userID string) ([]biometric.StoredSample, error) {
	query := `
		SELECT id, embedding, quality, metadata, created_at
		FROM voice_samples
		WHERE user_id = $1
		ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []biometric.StoredSample
	for rows.Next() {
		var sample biometric.StoredSample
		var embeddingStr string
		var metadataJSON []byte

		if err := rows.Scan(&sample.ID, &embeddingStr, &sample.Quality, &metadataJSON, &sample.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}

		sample.Embedding, err = parseEmbedding(embeddingStr)
		if err != nil {
			s.logger.Error("Failed to parse stored embedding",
				zap.Int64("sample_id", sample.ID),
				zap.Error(err))
			continue
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &sample.Metadata); err != nil {
				s.logger.Warn("Failed to parse sample metadata",
					zap.Int64("sample_id", sample.ID),
					zap.Error(err))
			}
		}

		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}

	return samples, nil
}

// AppendSample inserts a sample and counts the user's samples in one
// transaction. The count is authoritative: concurrent appends for the same
// user serialize on the row inserts and each caller sees a count that
// includes its own write.
func (s *PostgresStore) AppendSample(ctx context.Context, userID string, sample biometric.StoredSample) (int, error) {
	metadataJSON, err := json.Marshal(sample.Metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to encode metadata: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertQuery := `
		INSERT INTO voice_samples (user_id, embedding, quality, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err = tx.QueryRowContext(ctx, insertQuery,
		userID,
		formatEmbedding(sample.Embedding),
		sample.Quality,
		metadataJSON,
	).Scan(&sample.ID, &sample.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sample: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM voice_samples WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit append: %w", err)
	}

	s.logger.Debug("Sample appended",
		zap.String("user_id", userID),
		zap.Int64("sample_id", sample.ID),
		zap.Float64("quality", sample.Quality),
		zap.Int("total_samples", count))

	return count, nil
}

// GetStatus returns the persisted registration status. Users without a
// status row get the zero status, not an error.
func (s *PostgresStore) GetStatus(ctx context.Context, userID string) (biometric.RegistrationStatus, error) {
	var status biometric.RegistrationStatus

	query := `
		SELECT registration_complete, completion_confirmed, completion_confidence, completed_at
		FROM registration_status
		WHERE user_id = $1`

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&status.Complete,
		&status.Confirmed,
		&status.Confidence,
		&status.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return biometric.RegistrationStatus{}, nil
	}
	if err != nil {
		return biometric.RegistrationStatus{}, fmt.Errorf("failed to query registration status: %w", err)
	}

	return status, nil
}

// SetStatus upserts a partial status update. Nil fields keep their stored
// values.
func (s *PostgresStore) SetStatus(ctx context.Context, userID string, update StatusUpdate) error {
	query := `
		INSERT INTO registration_status (user_id, registration_complete, completion_confirmed, completion_confidence, completed_at, updated_at)
		VALUES ($1, COALESCE($2, FALSE), COALESCE($3, FALSE), COALESCE($4, 0), $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			registration_complete = COALESCE($2, registration_status.registration_complete),
			completion_confirmed  = COALESCE($3, registration_status.completion_confirmed),
			completion_confidence = COALESCE($4, registration_status.completion_confidence),
			completed_at          = COALESCE($5, registration_status.completed_at),
			updated_at            = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		userID,
		update.Complete,
		update.Confirmed,
		update.Confidence,
		update.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update registration status: %w", err)
	}

	s.logger.Debug("Registration status updated", zap.String("user_id", userID))
	return nil
}

// DeleteSample removes one sample for a user.
func (s *PostgresStore) DeleteSample(ctx context.Context, userID string, sampleID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM voice_samples WHERE user_id = $1 AND id = $2`, userID, sampleID)
	if err != nil {
		return fmt.Errorf("failed to delete sample: %w", err)
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("%w: user %s sample %d", ErrSampleNotFound, userID, sampleID)
	}

	s.logger.Info("Sample deleted",
		zap.String("user_id", userID),
		zap.Int64("sample_id", sampleID))
	return nil
}

// GetStats returns repository statistics for the ops endpoints.
func (s *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	query := `
		SELECT
			COUNT(*) as total_samples,
			COUNT(DISTINCT user_id) as total_users,
			COALESCE(AVG(quality), 0) as average_quality
		FROM voice_samples`

	if err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalSamples,
		&stats.TotalUsers,
		&stats.AverageQuality,
	); err != nil {
		return nil, fmt.Errorf("failed to get sample stats: %w", err)
	}

	err := s.db.GetContext(ctx, &stats.CompletedUsers,
		`SELECT COUNT(*) FROM registration_status WHERE registration_complete = TRUE`)
	if err != nil && err != sql.ErrNoRows {
		s.logger.Warn("Failed to get completion stats", zap.Error(err))
	}

	return stats, nil
}

// CreateIndex creates the vector similarity index for better performance.
func (s *PostgresStore) CreateIndex(ctx context.Context) error {
	var count int64
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM voice_samples"); err != nil {
		return fmt.Errorf("failed to count samples: %w", err)
	}

	if count < 1000 {
		s.logger.Info("Skipping index creation, not enough samples", zap.Int64("count", count))
		return nil
	}

	s.logger.Info("Creating vector similarity index...", zap.Int64("sample_count", count))

	query := `
		CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_voice_samples_embedding
		ON voice_samples USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	s.logger.Info("Vector similarity index created successfully")
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Helper functions

// formatEmbedding converts float32 slice to PostgreSQL vector format
func formatEmbedding(embedding biometric.Embedding) string {
	if len(embedding) == 0 {
		return "[]"
	}

	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseEmbedding converts PostgreSQL vector format back to float32 slice
func parseEmbedding(embeddingStr string) (biometric.Embedding, error) {
	embeddingStr = strings.Trim(embeddingStr, "[]")
	if embeddingStr == "" {
		return biometric.Embedding{}, nil
	}

	parts := strings.Split(embeddingStr, ",")
	embedding := make(biometric.Embedding, len(parts))

	for i, part := range parts {
		var val float32
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%g", &val); err != nil {
			return nil, fmt.Errorf("failed to parse embedding value: %w", err)
		}
		embedding[i] = val
	}

	return embedding, nil
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
