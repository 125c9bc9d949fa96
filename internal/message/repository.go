package message

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound covers both a missing message and one the caller doesn't own;
// the API deliberately doesn't distinguish the two.
var ErrNotFound = errors.New("message not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const messageColumns = `
	m.id, m.sender_id, u.username, m.content, m.room, m.is_private,
	m.recipient_id, r.username, m.created_at`

// CreateMessage inserts a message and returns it with sender and recipient
// usernames resolved in the same round trip.
func (r *Repository) CreateMessage(ctx context.Context, senderID int, content, room string, isPrivate bool, recipientID int) (*Message, error) {
	if room == "" {
		room = "general"
	}
	var recipient any
	if isPrivate && recipientID > 0 {
		recipient = recipientID
	}

	query := `
		WITH inserted AS (
			INSERT INTO messages (sender_id, content, room, is_private, recipient_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, sender_id, content, room, is_private, recipient_id, created_at
		)
		SELECT m.id, m.sender_id, u.username, m.content, m.room, m.is_private,
		       m.recipient_id, r.username, m.created_at
		FROM inserted m
		JOIN users u ON u.id = m.sender_id
		LEFT JOIN users r ON r.id = m.recipient_id
	`
	row := r.db.QueryRowContext(ctx, query, senderID, content, room, isPrivate, recipient)
	return scanMessage(row)
}

// RoomMessages returns one page of a room's history in chronological order,
// plus the room's total message count.
func (r *Repository) RoomMessages(ctx context.Context, room string, page, limit int) ([]*Message, int, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		LEFT JOIN users r ON r.id = m.recipient_id
		WHERE m.room = $1 AND NOT m.is_private
		ORDER BY m.created_at DESC
		LIMIT $2 OFFSET $3
	`, messageColumns)

	msgs, err := r.queryMessages(ctx, query, room, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	reverse(msgs) // newest-first page, chronological output

	var total int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE room = $1 AND NOT is_private`, room).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// PrivateMessages returns one page of the private conversation between two
// users, in chronological order, plus the conversation's total.
func (r *Repository) PrivateMessages(ctx context.Context, userID, otherID, page, limit int) ([]*Message, int, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		LEFT JOIN users r ON r.id = m.recipient_id
		WHERE m.is_private
		  AND ((m.sender_id = $1 AND m.recipient_id = $2)
		    OR (m.sender_id = $2 AND m.recipient_id = $1))
		ORDER BY m.created_at ASC
		LIMIT $3 OFFSET $4
	`, messageColumns)

	msgs, err := r.queryMessages(ctx, query, userID, otherID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE is_private
		  AND ((sender_id = $1 AND recipient_id = $2)
		    OR (sender_id = $2 AND recipient_id = $1))
	`, userID, otherID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// SearchMessages finds public messages in a room whose content matches the
// query, newest first.
func (r *Repository) SearchMessages(ctx context.Context, room, q string, limit int) ([]*Message, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		LEFT JOIN users r ON r.id = m.recipient_id
		WHERE m.room = $1 AND NOT m.is_private AND m.content ILIKE $2
		ORDER BY m.created_at DESC
		LIMIT $3
	`, messageColumns)
	return r.queryMessages(ctx, query, room, "%"+q+"%", limit)
}

// DeleteMessage removes a message if it belongs to the given sender.
func (r *Repository) DeleteMessage(ctx context.Context, id, senderID int) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id = $1 AND sender_id = $2`, id, senderID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*Message, error) {
	msg := &Message{}
	var recipientID sql.NullInt64
	var recipientName sql.NullString
	err := row.Scan(&msg.ID, &msg.SenderID, &msg.SenderName, &msg.Content,
		&msg.Room, &msg.IsPrivate, &recipientID, &recipientName, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	if recipientID.Valid {
		id := int(recipientID.Int64)
		msg.RecipientID = &id
	}
	if recipientName.Valid {
		name := recipientName.String
		msg.RecipientName = &name
	}
	return msg, nil
}

func reverse(msgs []*Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
