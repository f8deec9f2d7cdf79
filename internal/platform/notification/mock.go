package notification

import (
	"context"
	"errors"
	"sync"
)

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// PushCall records a single call to SendPush.
type PushCall struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// MockPushSender is a test double for PushSender.
type MockPushSender struct {
	mu         sync.Mutex
	calls      []PushCall
	ShouldFail bool
	FailError  string
}

func (m *MockPushSender) SendPush(_ context.Context, token, title, body string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, PushCall{Token: token, Title: title, Body: body, Data: data})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded push calls.
func (m *MockPushSender) Calls() []PushCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Recorder is a Notifier that keeps every message it is given. Domain tests
// use it to assert which notifications a service emitted.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Notify(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}
