// Package notify delivers alerts to external channels.
package notify

import (
	"context"

	"betwatch/internal/models"
)

// Notifier delivers one alert and returns an opaque delivery reference
// (for Discord, the message id). Implementations must be safe for use from
// the dispatcher goroutine.
type Notifier interface {
	Send(ctx context.Context, alert models.Alert, marketQuestion string) (string, error)
	Close() error
}
