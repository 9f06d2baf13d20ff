package mailer

import (
	"context"
	"sync"
)

// Mock records sent emails; tests and the dry-run mode use it.
type Mock struct {
	mu   sync.Mutex
	sent []Email
	Err  error
}

func (m *Mock) Send(ctx context.Context, e Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, e)
	return nil
}

func (m *Mock) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}

func (m *Mock) SetErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}
