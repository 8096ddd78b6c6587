package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SteelMorgan/log-alert-monitor/internal/domain"
	"github.com/SteelMorgan/log-alert-monitor/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultSubject is the subject line of every alert
	DefaultSubject = "CRITICAL ERROR Alert"

	// SourceMarker identifies the sending system in the alert body
	SourceMarker = "This is an automated alert from your Log Monitoring System."

	// TimestampFormat is used for the detection timestamp in the body
	TimestampFormat = "2006-01-02 15:04:05"

	defaultDispatchTimeout = 30 * time.Second
)

// DispatchError reports a failed notification attempt
type DispatchError struct {
	EventID   uuid.UUID
	Transport string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s via %s failed: %v", e.EventID, e.Transport, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Dispatcher turns alert events into notifications
// Each call makes exactly one transport attempt and keeps no state across calls
type Dispatcher struct {
	transport Transport
	subject   string
	timeout   time.Duration
}

// NewDispatcher creates a dispatcher over transport
// Empty subject uses DefaultSubject, timeout <= 0 uses 30s
func NewDispatcher(transport Transport, subject string, timeout time.Duration) *Dispatcher {
	if subject == "" {
		subject = DefaultSubject
	}
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Dispatcher{
		transport: transport,
		subject:   subject,
		timeout:   timeout,
	}
}

// FormatBody renders the fixed-shape alert body
func FormatBody(event domain.AlertEvent) string {
	var b strings.Builder
	b.WriteString("Critical Error Detected!\n\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", event.DetectedAt.Format(TimestampFormat))
	fmt.Fprintf(&b, "Error Message: %s\n", event.Line)
	if event.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", event.Source)
	}
	b.WriteString("\n")
	b.WriteString(SourceMarker)
	b.WriteString("\n")
	return b.String()
}

// Dispatch sends one notification for event.
//
// The send runs on a context detached from ctx cancellation and bounded by the dispatch
// timeout, so shutdown never leaves a half-sent message. A failure is logged and returned
// as a *DispatchError together with a failed result; it never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.AlertEvent) (result domain.DispatchResult, err error) {
	result = domain.DispatchResult{
		EventID:   event.ID,
		Transport: d.transport.Name(),
	}

	ctx, span := observability.StartSpan(ctx, "notify.dispatch",
		attribute.String("alert.id", event.ID.String()),
		attribute.String("alert.transport", result.Transport),
	)

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}

		result.Duration = time.Since(start)
		if err != nil {
			err = &DispatchError{EventID: event.ID, Transport: result.Transport, Err: err}
			result.Success = false
			result.Reason = err.Error()

			log.Error().
				Err(err).
				Str("alert_id", event.ID.String()).
				Str("transport", result.Transport).
				Time("detected_at", event.DetectedAt).
				Str("line", event.Line).
				Msg("Failed to send alert")
		} else {
			result.Success = true

			log.Info().
				Str("alert_id", event.ID.String()).
				Str("transport", result.Transport).
				Dur("duration", result.Duration).
				Msg("Alert sent successfully")
		}

		observability.EndSpan(span, err, "dispatch")
	}()

	err = d.transport.Send(sendCtx, d.subject, FormatBody(event))
	return result, err
}
