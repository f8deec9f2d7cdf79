package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindmate/mindmate/internal/domain/identity"
	"github.com/mindmate/mindmate/internal/platform/notification"
	"github.com/mindmate/mindmate/internal/platform/websocket"
	"github.com/mindmate/mindmate/pkg/pagination"
)

const (
	resourceType  = "message"
	previewLength = 120
)

type Users interface {
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// Appointments resolves who is on an appointment.
type Appointments interface {
	ParticipantUserIDs(ctx context.Context, id uuid.UUID) (patientUserID, doctorUserID uuid.UUID, err error)
}

type Service struct {
	repo     Repository
	users    Users
	appts    Appointments
	notifier notification.Notifier
	events   websocket.Publisher
	logger   zerolog.Logger
}

func NewService(repo Repository, users Users, appts Appointments,
	notifier notification.Notifier, events websocket.Publisher, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	if events == nil {
		events = websocket.NopPublisher{}
	}
	return &Service{
		repo:     repo,
		users:    users,
		appts:    appts,
		notifier: notifier,
		events:   events,
		logger:   logger,
	}
}

// Send stores a message from senderID and pushes it to the receiver. When an
// appointment is referenced, sender and receiver must be its two participants.
func (s *Service) Send(ctx context.Context, senderID uuid.UUID, in SendInput) (*Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, &identity.FieldError{Field: "content", Message: "content is required"}
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, &identity.FieldError{
			Field:   "content",
			Message: fmt.Sprintf("content must be at most %d characters", MaxContentLength),
		}
	}
	if in.ReceiverID == senderID {
		return nil, &identity.FieldError{Field: "receiverId", Message: "cannot send a message to yourself"}
	}

	receiver, err := s.users.GetUser(ctx, in.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	sender, err := s.users.GetUser(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}

	if in.AppointmentID != nil {
		patientUser, doctorUser, err := s.appts.ParticipantUserIDs(ctx, *in.AppointmentID)
		if err != nil {
			return nil, err
		}
		pair := (senderID == patientUser && in.ReceiverID == doctorUser) ||
			(senderID == doctorUser && in.ReceiverID == patientUser)
		if !pair {
			return nil, ErrNotParticipant
		}
	}

	m := &Message{
		SenderID:      senderID,
		ReceiverID:    in.ReceiverID,
		Content:       content,
		AppointmentID: in.AppointmentID,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	s.events.PublishToUser(receiver.ID, websocket.EventMessageCreated, resourceType, m.ID.String(), m)
	s.events.PublishToUser(sender.ID, websocket.EventMessageCreated, resourceType, m.ID.String(), m)

	data := map[string]string{
		"sender_name":    sender.FullName,
		"recipient_name": receiver.FullName,
		"preview":        preview(content),
		"message_id":     m.ID.String(),
	}
	if m.AppointmentID != nil {
		data["appointment_id"] = m.AppointmentID.String()
	}
	s.notifier.Notify(notification.Message{
		Template: notification.TemplateNewMessage,
		Recipient: notification.Recipient{
			UserID:    receiver.ID,
			Name:      receiver.FullName,
			Email:     receiver.Email,
			PushToken: deref(receiver.PushToken),
		},
		Data: data,
	})
	return m, nil
}

// ListConversation returns a page of the conversation between the caller and
// otherID, oldest first. Messages on the page addressed to the caller are
// marked read.
func (s *Service) ListConversation(ctx context.Context, callerID, otherID uuid.UUID, page pagination.Params) ([]*Message, int, error) {
	if otherID == uuid.Nil {
		return nil, 0, &identity.FieldError{Field: "otherUserId", Message: "otherUserId is required"}
	}
	if _, err := s.users.GetUser(ctx, otherID); err != nil {
		return nil, 0, err
	}

	list, total, err := s.repo.ListConversation(ctx, callerID, otherID, page)
	if err != nil {
		return nil, 0, err
	}
	if list == nil {
		list = []*Message{}
	}

	var unread []uuid.UUID
	for _, m := range list {
		if m.ReceiverID == callerID && !m.Read {
			unread = append(unread, m.ID)
		}
	}
	if len(unread) > 0 {
		n, err := s.repo.MarkReadByID(ctx, callerID, unread)
		if err != nil {
			return nil, 0, fmt.Errorf("mark read: %w", err)
		}
		for _, m := range list {
			if m.ReceiverID == callerID {
				m.Read = true
			}
		}
		s.publishRead(callerID, otherID, n)
	}
	return list, total, nil
}

// MarkRead flags every message otherID sent the caller as read, across the
// whole conversation.
func (s *Service) MarkRead(ctx context.Context, callerID, otherID uuid.UUID) (int, error) {
	if otherID == uuid.Nil {
		return 0, &identity.FieldError{Field: "otherUserId", Message: "otherUserId is required"}
	}
	return s.markRead(ctx, callerID, otherID)
}

func (s *Service) markRead(ctx context.Context, callerID, otherID uuid.UUID) (int, error) {
	n, err := s.repo.MarkRead(ctx, callerID, otherID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	s.publishRead(callerID, otherID, n)
	return n, nil
}

func (s *Service) publishRead(readerID, senderID uuid.UUID, n int) {
	if n > 0 {
		s.events.PublishToUser(senderID, websocket.EventMessageRead, resourceType, "",
			map[string]any{"readerId": readerID.String(), "count": n})
	}
}

func (s *Service) UnreadCount(ctx context.Context, callerID uuid.UUID) (int, error) {
	return s.repo.UnreadCount(ctx, callerID)
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	r := []rune(content)
	return string(r[:previewLength]) + "..."
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// isUserNotFound reports whether err means a referenced user is missing.
func isUserNotFound(err error) bool {
	return errors.Is(err, identity.ErrUserNotFound) || errors.Is(err, ErrMissingTarget)
}
