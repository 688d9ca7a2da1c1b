package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fablechat/fable-backend/internal/apperr"
	"github.com/fablechat/fable-backend/internal/models"
	"github.com/fablechat/fable-backend/internal/repository"
)

// RoomRepository implements repository.RoomRepository using PostgreSQL
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository creates a new PostgreSQL room repository
func NewRoomRepository(db *sqlx.DB) repository.RoomRepository {
	return &RoomRepository{db: db}
}

// Create creates a new room
func (r *RoomRepository) Create(ctx context.Context, room models.Room) (string, error) {
	room.ID = uuid.New().String()
	room.CreatedAt = time.Now()
	room.UpdatedAt = room.CreatedAt

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO rooms (id, user_id, title, persona_name, persona_prompt, last_message, created_at, updated_at)
		VALUES (:id, :user_id, :title, :persona_name, :persona_prompt, :last_message, :created_at, :updated_at)
	`, room)
	if err != nil {
		return "", apperr.Storef("failed to insert room", err)
	}

	return room.ID, nil
}

// Get retrieves a room by ID
func (r *RoomRepository) Get(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT * FROM rooms WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("room %s", id)
	}
	if err != nil {
		return nil, apperr.Storef("failed to get room", err)
	}
	return &room, nil
}

// ListByUser returns a user's rooms, most recently updated first
func (r *RoomRepository) ListByUser(ctx context.Context, userID string) ([]*models.Room, error) {
	var rooms []*models.Room
	err := r.db.SelectContext(ctx, &rooms, `
		SELECT * FROM rooms WHERE user_id = $1 ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, apperr.Storef("failed to list rooms", err)
	}
	return rooms, nil
}

// UpdatePreview refreshes the room's last-message preview
func (r *RoomRepository) UpdatePreview(ctx context.Context, id, lastMessage string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rooms SET last_message = $2, updated_at = NOW() WHERE id = $1
	`, id, lastMessage)
	if err != nil {
		return apperr.Storef("failed to update room preview", err)
	}
	return nil
}

// Delete removes a room and, via cascade, its turns and memories
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return apperr.Storef("failed to delete room", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Storef("failed to read rows affected", err)
	}
	if affected == 0 {
		return apperr.NotFoundf("room %s", id)
	}

	return nil
}
