package chat

import (
	"context"

	"socketchat/internal/message"
)

// Store is the persistence collaborator the hub depends on. The concrete
// implementation is assembled in cmd/server from the message and user
// repositories; tests substitute a fake.
type Store interface {
	// CreateMessage persists a message and returns it enriched with the
	// sender's (and recipient's, if private) display name. recipientID is
	// ignored unless isPrivate is true.
	CreateMessage(ctx context.Context, senderID int, content, room string, isPrivate bool, recipientID int) (*message.Message, error)

	// SetOnline updates a user's persisted online status.
	SetOnline(ctx context.Context, userID int, online bool) error
}
