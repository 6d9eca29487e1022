package storage

import (
	"context"
	"fmt"
	"strings"
)

// Store is the contract implemented by all storage backends. Write persists
// data under key and returns the final location string.
type Store interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// ForDestination picks a backend from the destination's scheme: s3:// maps to
// the S3 backend, everything else is treated as a local directory path.
// Unknown remote schemes fail fast.
func ForDestination(ctx context.Context, destination string) (Store, error) {
	switch {
	case strings.HasPrefix(destination, "s3://"):
		return NewS3Store(ctx, destination)
	case strings.Contains(destination, "://"):
		scheme := destination[:strings.Index(destination, "://")]
		return nil, fmt.Errorf("storage: unsupported destination scheme %q", scheme)
	default:
		return NewFileStore(destination)
	}
}
