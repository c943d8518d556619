package provider

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a test implementation of Client.
//
// FailFor marks recipient numbers whose sends should be rejected;
// Sent records every accepted call in order.
type Mock struct {
	mu      sync.Mutex
	FailFor map[string]string // recipient -> error message
	FailErr error             // transport-level failure for every call, wins over FailFor
	Sent    []Message
	calls   int
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.FailErr != nil {
		return nil, m.FailErr
	}
	if detail, ok := m.FailFor[msg.To]; ok {
		return nil, &SendError{StatusCode: 400, Message: detail}
	}
	m.Sent = append(m.Sent, msg)
	return &SendResult{MessageID: fmt.Sprintf("mock-%04d", m.calls), StatusCode: 200}, nil
}

// Calls reports how many Send attempts were made, failed ones included.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
