package notify

import (
	"context"
)

// Transport delivers one notification
// Send performs a single attempt and reports failure as an error
type Transport interface {
	// Name returns the transport identifier ("smtp", "telegram")
	Name() string

	// Send delivers subject and body to the configured destination
	Send(ctx context.Context, subject, body string) error
}
