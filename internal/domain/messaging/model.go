package messaging

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const MaxContentLength = 5000

var (
	ErrNotParticipant = errors.New("sender and receiver must be the participants of the appointment")
	ErrMissingTarget  = errors.New("receiver or appointment no longer exists")
)

type Message struct {
	ID            uuid.UUID  `json:"id"`
	SenderID      uuid.UUID  `json:"senderId"`
	ReceiverID    uuid.UUID  `json:"receiverId"`
	Content       string     `json:"content"`
	AppointmentID *uuid.UUID `json:"appointmentId,omitempty"`
	Read          bool       `json:"read"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type SendInput struct {
	ReceiverID    uuid.UUID  `json:"receiverId" validate:"required"`
	Content       string     `json:"content" validate:"required,max=5000"`
	AppointmentID *uuid.UUID `json:"appointmentId"`
}

type ReadInput struct {
	OtherUserID uuid.UUID `json:"otherUserId" validate:"required"`
}
