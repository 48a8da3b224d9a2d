package audiostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Metadata describes a stored audio object.
type Metadata struct {
	Key          string    `json:"key"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Store fetches uploaded audio for the registration pipeline. The audio
// bucket is an external system: objects appear via client uploads and the
// pipeline only ever reads them.
type Store interface {
	// Fetch downloads the object at key. Returns ErrNotFound for missing
	// keys and ErrTooLarge when the object exceeds the store's size ceiling.
	Fetch(ctx context.Context, key string) ([]byte, Metadata, error)

	// Exists reports whether the object is present without downloading it.
	Exists(ctx context.Context, key string) (bool, error)
}

var (
	ErrNotFound   = errors.New("audio object not found")
	ErrTooLarge   = errors.New("audio object too large")
	ErrInvalidKey = errors.New("invalid audio object key")
)

// ExtractUserID parses the user identity out of an upload key. Keys follow
// the scheme {prefix}/{user_id}/{filename}; the user ID is the path segment
// directly after the upload prefix.
func ExtractUserID(key, prefix string) (string, error) {
	trimmed := strings.TrimPrefix(key, "/")
	if prefix != "" {
		cleanPrefix := strings.Trim(prefix, "/")
		if !strings.HasPrefix(trimmed, cleanPrefix+"/") {
			return "", fmt.Errorf("%w: key %q lacks prefix %q", ErrInvalidKey, key, cleanPrefix)
		}
		trimmed = strings.TrimPrefix(trimmed, cleanPrefix+"/")
	}

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 || parts[0] == "" {
		return "", fmt.Errorf("%w: cannot extract user id from %q", ErrInvalidKey, key)
	}
	return parts[0], nil
}
