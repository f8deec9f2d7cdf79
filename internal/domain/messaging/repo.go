package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/mindmate/mindmate/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, m *Message) error
	// ListConversation returns one page of the messages exchanged between a
	// and b, oldest first, and the size of the whole conversation.
	ListConversation(ctx context.Context, a, b uuid.UUID, page pagination.Params) ([]*Message, int, error)
	// MarkRead flags every unread message from sender to receiver as read and
	// returns how many changed.
	MarkRead(ctx context.Context, receiverID, senderID uuid.UUID) (int, error)
	// MarkReadByID flags the given messages as read, skipping any not
	// addressed to receiverID, and returns how many changed.
	MarkReadByID(ctx context.Context, receiverID uuid.UUID, ids []uuid.UUID) (int, error)
	UnreadCount(ctx context.Context, receiverID uuid.UUID) (int, error)
}
