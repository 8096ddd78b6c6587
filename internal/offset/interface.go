package offset

import (
	"context"
)

// OffsetStore stores and retrieves the number of bytes of a monitored file already consumed
// Implementations: plain-text side file (primary), BoltDB (optional)
type OffsetStore interface {
	// Get retrieves the offset for a given file
	// Returns 0 if no offset is stored
	Get(ctx context.Context, filePath string) (int64, error)

	// Set stores the offset for a given file
	// The value must be durable when Set returns
	Set(ctx context.Context, filePath string, offset int64) error

	// Delete removes the offset for a given file
	Delete(ctx context.Context, filePath string) error

	// Close closes the offset store
	Close() error
}
