// Package notification delivers appointment and message notifications over
// email and mobile push. Delivery happens off the request path: callers hand a
// Message to a Dispatcher and never see a delivery failure.
package notification

import (
	"context"

	"github.com/google/uuid"
)

// Template identifiers.
const (
	TemplateAppointmentRequested = "appointment-requested"
	TemplateAppointmentAccepted  = "appointment-accepted"
	TemplateAppointmentRejected  = "appointment-rejected"
	TemplateAppointmentCancelled = "appointment-cancelled"
	TemplateAppointmentCompleted = "appointment-completed"
	TemplateAppointmentReminder  = "appointment-reminder"
	TemplateNewMessage           = "new-message"
)

// Recipient is the person a notification is addressed to. Channels with an
// empty address are skipped.
type Recipient struct {
	UserID    uuid.UUID
	Name      string
	Email     string
	PushToken string
}

// Message is a notification request: a template plus the values substituted
// into it.
type Message struct {
	Template  string
	Recipient Recipient
	Data      map[string]string
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// PushSender is the interface for sending mobile push notifications.
type PushSender interface {
	SendPush(ctx context.Context, token, title, body string, data map[string]string) error
}

// Notifier accepts notifications for asynchronous delivery.
type Notifier interface {
	Notify(msg Message)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(Message) {}
