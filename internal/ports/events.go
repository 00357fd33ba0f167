package ports

import (
	"context"

	"github.com/nimbusworks/console-identity-service/internal/domain"
)

// EventPublisher is the outbound publish port for account lifecycle events.
// The application uses this abstraction to keep broker concerns in adapters.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte) error
}

// CodeSender delivers a verification code over an SMS or email gateway.
// A timeout from the gateway is never treated as delivered.
type CodeSender interface {
	Send(ctx context.Context, channel domain.ProviderType, recipient, code string, purpose domain.Purpose) error
}
