package history

import (
	"context"

	"github.com/SteelMorgan/log-alert-monitor/internal/domain"
)

// Recorder mirrors alert outcomes and reading progress to an external store
// Implementations must not fail the monitor: errors are logged, not returned
type Recorder interface {
	// RecordAlert stores the outcome of one dispatch attempt
	RecordAlert(ctx context.Context, event domain.AlertEvent, result domain.DispatchResult)

	// RecordProgress stores the persisted offset after a poll cycle
	RecordProgress(ctx context.Context, progress domain.FileReadingProgress)

	// Close flushes and releases resources
	Close() error
}

// NopRecorder discards everything
type NopRecorder struct{}

func (NopRecorder) RecordAlert(context.Context, domain.AlertEvent, domain.DispatchResult) {}

func (NopRecorder) RecordProgress(context.Context, domain.FileReadingProgress) {}

func (NopRecorder) Close() error { return nil }
