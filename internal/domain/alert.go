package domain

import (
	"time"

	"github.com/google/uuid"
)

// AlertEvent is a matched line waiting to be dispatched
type AlertEvent struct {
	ID         uuid.UUID
	Line       string    // Matched line text
	Source     string    // Monitored file path
	Offset     int64     // Byte offset of the matched line
	DetectedAt time.Time // Detection timestamp
}

// NewAlertEvent builds an event for a matched line
func NewAlertEvent(line LogLine, source string, detectedAt time.Time) AlertEvent {
	return AlertEvent{
		ID:         uuid.New(),
		Line:       line.Text,
		Source:     source,
		Offset:     line.Start,
		DetectedAt: detectedAt,
	}
}

// DispatchResult is the outcome of a single notification attempt
type DispatchResult struct {
	EventID   uuid.UUID
	Transport string
	Success   bool
	Reason    string // Failure reason, empty on success
	Duration  time.Duration
}
