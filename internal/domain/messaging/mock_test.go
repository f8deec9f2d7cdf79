package messaging

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mindmate/mindmate/internal/domain/appointment"
	"github.com/mindmate/mindmate/internal/domain/identity"
	"github.com/mindmate/mindmate/pkg/pagination"
)

// -- Mock Repository --

type mockRepo struct {
	messages []*Message
	clock    time.Time
}

func newMockRepo() *mockRepo {
	return &mockRepo{clock: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (m *mockRepo) Create(_ context.Context, msg *Message) error {
	m.clock = m.clock.Add(time.Second)
	msg.ID = uuid.New()
	msg.CreatedAt = m.clock
	cp := *msg
	m.messages = append(m.messages, &cp)
	return nil
}

func (m *mockRepo) ListConversation(_ context.Context, a, b uuid.UUID, page pagination.Params) ([]*Message, int, error) {
	var all []*Message
	for _, msg := range m.messages {
		if (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a) {
			cp := *msg
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	total := len(all)
	if page.Offset >= total {
		return nil, total, nil
	}
	end := page.Offset + page.Limit
	if end > total {
		end = total
	}
	return all[page.Offset:end], total, nil
}

func (m *mockRepo) MarkRead(_ context.Context, receiverID, senderID uuid.UUID) (int, error) {
	n := 0
	for _, msg := range m.messages {
		if msg.ReceiverID == receiverID && msg.SenderID == senderID && !msg.Read {
			msg.Read = true
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) MarkReadByID(_ context.Context, receiverID uuid.UUID, ids []uuid.UUID) (int, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	n := 0
	for _, msg := range m.messages {
		if want[msg.ID] && msg.ReceiverID == receiverID && !msg.Read {
			msg.Read = true
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) UnreadCount(_ context.Context, receiverID uuid.UUID) (int, error) {
	n := 0
	for _, msg := range m.messages {
		if msg.ReceiverID == receiverID && !msg.Read {
			n++
		}
	}
	return n, nil
}

// -- Fake users --

type fakeUsers map[uuid.UUID]*identity.User

func (f fakeUsers) add(name string) *identity.User {
	u := &identity.User{ID: uuid.New(), FullName: name, Email: name + "@example.com", IsActive: true}
	f[u.ID] = u
	return u
}

func (f fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// -- Fake appointments --

type fakeAppointments map[uuid.UUID][2]uuid.UUID

func (f fakeAppointments) ParticipantUserIDs(_ context.Context, id uuid.UUID) (uuid.UUID, uuid.UUID, error) {
	pair, ok := f[id]
	if !ok {
		return uuid.Nil, uuid.Nil, appointment.ErrNotFound
	}
	return pair[0], pair[1], nil
}

// -- Recording publisher --

type recordingPublisher struct {
	events map[uuid.UUID][]string
}

func (r *recordingPublisher) PublishToUser(userID uuid.UUID, eventType, _, _ string, _ any) {
	if r.events == nil {
		r.events = make(map[uuid.UUID][]string)
	}
	r.events[userID] = append(r.events[userID], eventType)
}

func (r *recordingPublisher) count(userID uuid.UUID, eventType string) int {
	n := 0
	for _, e := range r.events[userID] {
		if e == eventType {
			n++
		}
	}
	return n
}
