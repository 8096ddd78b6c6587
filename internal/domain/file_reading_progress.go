package domain

import "time"

// FileReadingProgress represents the current reading progress of the monitored file
type FileReadingProgress struct {
	Timestamp     time.Time
	FilePath      string // Full path to the file
	FileName      string // Just filename for easier queries
	OffsetBytes   int64  // Persisted reading position
	LinesRead     uint64 // Lines read since the monitor started
	AlertsMatched uint64 // Matched lines since the monitor started
}
