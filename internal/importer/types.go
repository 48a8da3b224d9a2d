package importer

import (
	"strings"
	"time"
)

// DatasetRecord is one pre-computed enrollment sample from a backfill
// dataset. CSV datasets carry the embedding as a semicolon-separated float
// list in the third column; Parquet and JSON-lines carry it natively.
type DatasetRecord struct {
	UserID    string    `parquet:"user_id" json:"user_id"`
	Quality   float64   `parquet:"quality" json:"quality"`
	Embedding []float32 `parquet:"embedding" json:"embedding"`
}

// Result summarizes one dataset import.
type Result struct {
	TotalRecords   int64         `json:"total_records"`
	Imported       int64         `json:"imported"`
	Skipped        int64         `json:"skipped"`
	Failed         int64         `json:"failed"`
	UsersAffected  int           `json:"users_affected"`
	UsersCompleted int           `json:"users_completed"`
	Duration       time.Duration `json:"duration"`
	DatabaseTime   time.Duration `json:"database_time"`
	Errors         []string      `json:"errors,omitempty"`
}

// Config contains importer configuration
type Config struct {
	BatchSize        int  `yaml:"batch_size" mapstructure:"batch_size"`
	ValidateData     bool `yaml:"validate_data" mapstructure:"validate_data"`
	CreateIndex      bool `yaml:"create_index" mapstructure:"create_index"`
	ReevaluateStatus bool `yaml:"reevaluate_status" mapstructure:"reevaluate_status"`
	ProgressReport   int  `yaml:"progress_report" mapstructure:"progress_report"`
	ExpectedDims     int  `yaml:"expected_dims" mapstructure:"expected_dims"`
}

// DefaultConfig returns the default importer settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:        1000,
		ValidateData:     true,
		CreateIndex:      true,
		ReevaluateStatus: true,
		ProgressReport:   1000,
		ExpectedDims:     256,
	}
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch {
	case strings.HasSuffix(filename, ".csv"):
		return FormatCSV
	case strings.HasSuffix(filename, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(filename, ".json") || strings.HasSuffix(filename, ".jsonl"):
		return FormatJSON
	default:
		return FormatCSV
	}
}
