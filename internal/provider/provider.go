// Package provider is the outbound SMS delivery port.
//
// The dispatch engine talks to a Client; solapi.go implements it
// against the real HTTP API and Mock implements it for tests.
package provider

import (
	"context"
	"fmt"
)

// Message is one outbound SMS. To and From are normalized digit strings.
type Message struct {
	To   string
	From string
	Text string
}

// SendResult is the provider's answer to a successfully submitted message.
type SendResult struct {
	MessageID  string
	StatusCode int
}

// SendError is a provider-side rejection (non-2xx response).
// Message carries the provider's errorMessage verbatim when present.
type SendError struct {
	StatusCode int
	Message    string
}

func (e *SendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("provider error: status %d", e.StatusCode)
}

// Client submits a single message to the messaging provider.
// Implementations must be safe for sequential reuse; the dispatch
// engine guarantees at most one Send is in flight per client.
type Client interface {
	Send(ctx context.Context, msg Message) (*SendResult, error)
	Name() string
}
