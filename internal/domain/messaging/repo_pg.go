package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/mindmate/mindmate/internal/platform/db"
	"github.com/mindmate/mindmate/pkg/pagination"
)

type repoPG struct {
	pool db.Querier
}

func NewRepo(pool db.Querier) Repository {
	return &repoPG{pool: pool}
}

const messageCols = `id, sender_id, receiver_id, content, appointment_id, read, created_at`

const pairWhere = `(sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)`

func (r *repoPG) Create(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, content, appointment_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING read, created_at`,
		m.ID, m.SenderID, m.ReceiverID, m.Content, m.AppointmentID,
	).Scan(&m.Read, &m.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return ErrMissingTarget
	}
	return err
}

func (r *repoPG) ListConversation(ctx context.Context, a, b uuid.UUID, page pagination.Params) ([]*Message, int, error) {
	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT count(*) FROM messages WHERE `+pairWhere, a, b).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn.Query(ctx, `SELECT `+messageCols+` FROM messages WHERE `+pairWhere+`
		ORDER BY created_at ASC, id ASC `+page.SQL(), a, b)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.AppointmentID, &m.Read, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &m)
	}
	return out, total, rows.Err()
}

func (r *repoPG) MarkRead(ctx context.Context, receiverID, senderID uuid.UUID) (int, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE messages SET read = true
		WHERE receiver_id = $1 AND sender_id = $2 AND NOT read`, receiverID, senderID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) MarkReadByID(ctx context.Context, receiverID uuid.UUID, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE messages SET read = true
		WHERE receiver_id = $1 AND id = ANY($2) AND NOT read`, receiverID, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) UnreadCount(ctx context.Context, receiverID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE receiver_id = $1 AND NOT read`, receiverID).Scan(&n)
	return n, err
}
