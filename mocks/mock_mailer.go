package mocks

import (
	"context"
	"sync"

	"github.com/campusmart/backend/mailer"
)

// MockMailer records sent messages and optionally fails via SendFunc.
type MockMailer struct {
	SendFunc func(ctx context.Context, msg mailer.Message) error

	mu   sync.Mutex
	sent []mailer.Message
}

var _ mailer.Mailer = (*MockMailer)(nil)

func (m *MockMailer) Send(ctx context.Context, msg mailer.Message) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

func (m *MockMailer) Sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mailer.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *MockMailer) Last() (mailer.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return mailer.Message{}, false
	}
	return m.sent[len(m.sent)-1], true
}
