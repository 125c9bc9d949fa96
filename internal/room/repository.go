package room

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrExists   = errors.New("room already exists")
	ErrNotFound = errors.New("room not found")
	ErrNotOwner = errors.New("only the creator can delete a room")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const roomColumns = `
	r.id, r.name, r.description, r.created_by, u.username, r.is_private, r.created_at`

// CreateRoom inserts a room with its creator as the first member.
func (r *Repository) CreateRoom(ctx context.Context, name, description string, createdBy int, isPrivate bool) (*Room, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM rooms WHERE name = $1)`, name).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrExists
	}

	var id int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO rooms (name, description, created_by, is_private)
		VALUES ($1, $2, $3, $4) RETURNING id
	`, name, description, createdBy, isPrivate).Scan(&id)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, id, createdBy)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.GetRoom(ctx, id, createdBy)
}

// ListRooms returns one page of the rooms visible to a user: public rooms
// plus private rooms they belong to, newest first.
func (r *Repository) ListRooms(ctx context.Context, userID, page, limit int) ([]*Room, int, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM rooms r
		JOIN users u ON u.id = r.created_by
		WHERE NOT r.is_private
		   OR EXISTS (SELECT 1 FROM room_members m WHERE m.room_id = r.id AND m.user_id = $1)
		ORDER BY r.created_at DESC
		LIMIT $2 OFFSET $3
	`, roomColumns)

	rows, err := r.db.QueryContext(ctx, query, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rooms []*Room
	for rows.Next() {
		room := &Room{}
		if err := rows.Scan(&room.ID, &room.Name, &room.Description, &room.CreatedBy,
			&room.CreatorName, &room.IsPrivate, &room.CreatedAt); err != nil {
			return nil, 0, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rooms r
		WHERE NOT r.is_private
		   OR EXISTS (SELECT 1 FROM room_members m WHERE m.room_id = r.id AND m.user_id = $1)
	`, userID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	return rooms, total, nil
}

// GetRoom fetches a room with its member list, if visible to the user.
func (r *Repository) GetRoom(ctx context.Context, id, userID int) (*Room, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM rooms r
		JOIN users u ON u.id = r.created_by
		WHERE r.id = $1
		  AND (NOT r.is_private
		    OR EXISTS (SELECT 1 FROM room_members m WHERE m.room_id = r.id AND m.user_id = $2))
	`, roomColumns)

	room := &Room{}
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&room.ID, &room.Name,
		&room.Description, &room.CreatedBy, &room.CreatorName, &room.IsPrivate, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.username
		FROM room_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.room_id = $1
		ORDER BY m.joined_at
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var member Member
		if err := rows.Scan(&member.ID, &member.Username); err != nil {
			return nil, err
		}
		room.Members = append(room.Members, member)
	}
	return room, rows.Err()
}

// JoinRoom adds a user to a room's persisted membership. Idempotent. Private
// rooms can only be joined by users already invited (i.e. already members),
// so a private join by a stranger fails like a missing room.
func (r *Repository) JoinRoom(ctx context.Context, roomID, userID int) error {
	var isPrivate bool
	err := r.db.QueryRowContext(ctx,
		`SELECT is_private FROM rooms WHERE id = $1`, roomID).Scan(&isPrivate)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if isPrivate {
		var member bool
		err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`,
			roomID, userID).Scan(&member)
		if err != nil {
			return err
		}
		if !member {
			return ErrNotFound
		}
		return nil
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, roomID, userID)
	return err
}

// LeaveRoom removes a user from a room's persisted membership. Idempotent.
func (r *Repository) LeaveRoom(ctx context.Context, roomID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	return err
}

// DeleteRoom removes a room and its messages. Only the creator may delete.
func (r *Repository) DeleteRoom(ctx context.Context, roomID, userID int) error {
	var createdBy int
	var name string
	err := r.db.QueryRowContext(ctx,
		`SELECT created_by, name FROM rooms WHERE id = $1`, roomID).Scan(&createdBy, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if createdBy != userID {
		return ErrNotOwner
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE room = $1`, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID); err != nil {
		return err
	}
	return tx.Commit()
}

// CanAccess reports whether a user may read a room's history: the room is
// public, or the user is a member. Unknown rooms fall back to accessible so
// ad hoc runtime channels keep working.
func (r *Repository) CanAccess(ctx context.Context, room string, userID int) (bool, error) {
	var isPrivate bool
	var roomID int
	err := r.db.QueryRowContext(ctx,
		`SELECT id, is_private FROM rooms WHERE name = $1`, room).Scan(&roomID, &isPrivate)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if !isPrivate {
		return true, nil
	}

	var member bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID).Scan(&member)
	return member, err
}
