package domain

import "time"

// LogLine is one complete line read from the monitored file
type LogLine struct {
	Text   string    // Line content without the trailing newline
	Start  int64     // Byte offset of the first byte of the line
	End    int64     // Byte offset just past the terminating newline
	ReadAt time.Time // Wall-clock time the line was read
}

