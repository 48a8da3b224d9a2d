package store

import (
	"context"
	"errors"
	"time"

	"github.com/raaihank/voice-sentinel/internal/biometric"
)

// SampleRepository is the persistence boundary for enrolled voice samples and
// registration status. Implementations must make AppendSample atomic: the
// insert and the returned authoritative count happen in one transaction, so
// concurrent appends for the same user never lose samples.
type SampleRepository interface {
	// GetSamples returns all enrolled samples for a user in insertion order.
	GetSamples(ctx context.Context, userID string) ([]biometric.StoredSample, error)

	// AppendSample inserts one sample and returns the authoritative sample
	// count for the user after the insert.
	AppendSample(ctx context.Context, userID string, sample biometric.StoredSample) (int, error)

	// GetStatus returns the persisted registration status for a user.
	// A user with samples but no status row gets the zero status.
	GetStatus(ctx context.Context, userID string) (biometric.RegistrationStatus, error)

	// SetStatus applies a partial status update. Nil fields are left untouched.
	SetStatus(ctx context.Context, userID string, update StatusUpdate) error

	// DeleteSample removes one sample, for re-recording flows.
	DeleteSample(ctx context.Context, userID string, sampleID int64) error

	// Close releases the underlying resources.
	Close() error
}

// StatusUpdate is a partial update of a user's registration status.
// Only non-nil fields are written.
type StatusUpdate struct {
	Complete    *bool
	Confirmed   *bool
	Confidence  *float64
	CompletedAt *time.Time
}

// Config contains database configuration.
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// Stats summarizes repository contents for the ops endpoints.
type Stats struct {
	TotalSamples   int64   `json:"total_samples"`
	TotalUsers     int64   `json:"total_users"`
	CompletedUsers int64   `json:"completed_users"`
	AverageQuality float64 `json:"average_quality"`
}

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrSampleNotFound = errors.New("sample not found")
)

// Bool, Float64, and Time build pointer fields for StatusUpdate.
func Bool(v bool) *bool { return &v }

func Float64(v float64) *float64 { return &v }

func Time(v time.Time) *time.Time { return &v }
