package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewAlertEvent(t *testing.T) {
	line := LogLine{Text: "CRITICAL ERROR - disk full", Start: 46, End: 73}
	at := time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)

	event := NewAlertEvent(line, "/var/log/app.log", at)

	if event.ID == uuid.Nil {
		t.Errorf("expected a generated ID")
	}
	if event.Line != line.Text {
		t.Errorf("expected Line=%q, got %q", line.Text, event.Line)
	}
	if event.Offset != 46 {
		t.Errorf("expected Offset=46, got %d", event.Offset)
	}
	if !event.DetectedAt.Equal(at) {
		t.Errorf("expected DetectedAt=%v, got %v", at, event.DetectedAt)
	}

	other := NewAlertEvent(line, "/var/log/app.log", at)
	if other.ID == event.ID {
		t.Errorf("every event must get its own ID")
	}
}
