package history

import (
	"context"
	"fmt"
	"time"

	"github.com/SteelMorgan/log-alert-monitor/internal/domain"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 10 * time.Second

var schema = []string{
	`CREATE TABLE IF NOT EXISTS alert_history (
		event_id UUID,
		detected_at DateTime64(3),
		source String,
		offset_bytes Int64,
		line String,
		transport LowCardinality(String),
		success Bool,
		reason String,
		duration_ms UInt32
	) ENGINE = MergeTree
	ORDER BY (source, detected_at)`,
	`CREATE TABLE IF NOT EXISTS file_reading_progress (
		timestamp DateTime64(3),
		file_path String,
		file_name String,
		offset_bytes Int64,
		lines_read UInt64,
		alerts_matched UInt64
	) ENGINE = ReplacingMergeTree(timestamp)
	ORDER BY file_path`,
}

// Execer runs statements against ClickHouse
type Execer interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
}

// ClickHouseRecorder writes alert outcomes and reading progress to ClickHouse
type ClickHouseRecorder struct {
	conn Execer
}

// NewClickHouseRecorder creates the tables if needed and returns a recorder
func NewClickHouseRecorder(ctx context.Context, conn Execer) (*ClickHouseRecorder, error) {
	for _, stmt := range schema {
		if err := conn.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create history schema: %w", err)
		}
	}
	return &ClickHouseRecorder{conn: conn}, nil
}

// RecordAlert inserts one alert outcome
func (r *ClickHouseRecorder) RecordAlert(ctx context.Context, event domain.AlertEvent, result domain.DispatchResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	err := r.conn.Exec(ctx,
		`INSERT INTO alert_history (event_id, detected_at, source, offset_bytes, line, transport, success, reason, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.DetectedAt,
		event.Source,
		event.Offset,
		event.Line,
		result.Transport,
		result.Success,
		result.Reason,
		uint32(result.Duration.Milliseconds()),
	)
	if err != nil {
		log.Warn().
			Err(err).
			Str("alert_id", event.ID.String()).
			Msg("Failed to record alert history")
	}
}

// RecordProgress inserts the latest reading progress
func (r *ClickHouseRecorder) RecordProgress(ctx context.Context, progress domain.FileReadingProgress) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	err := r.conn.Exec(ctx,
		`INSERT INTO file_reading_progress (timestamp, file_path, file_name, offset_bytes, lines_read, alerts_matched)
		VALUES (?, ?, ?, ?, ?, ?)`,
		progress.Timestamp,
		progress.FilePath,
		progress.FileName,
		progress.OffsetBytes,
		progress.LinesRead,
		progress.AlertsMatched,
	)
	if err != nil {
		log.Warn().
			Err(err).
			Str("file", progress.FilePath).
			Msg("Failed to record reading progress")
	}
}

// Close is a no-op, the connection is owned by the caller
func (r *ClickHouseRecorder) Close() error {
	return nil
}
