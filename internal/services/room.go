package services

import (
	"context"
	"database/sql"

	"github.com/fablechat/fable-backend/internal/apperr"
	"github.com/fablechat/fable-backend/internal/models"
	"github.com/fablechat/fable-backend/internal/repository"
)

// RoomService manages the rooms owning turn trees and memories.
type RoomService struct {
	rooms repository.RoomRepository
	auth  Authorizer
}

// NewRoomService creates a room service
func NewRoomService(rooms repository.RoomRepository, auth Authorizer) *RoomService {
	return &RoomService{rooms: rooms, auth: auth}
}

// Create creates a room for the user
func (s *RoomService) Create(ctx context.Context, userID, title, personaName, personaPrompt string) (*models.Room, error) {
	if title == "" {
		title = "New Room"
	}
	if personaName == "" {
		return nil, apperr.InvalidArgumentf("persona name is required")
	}

	room := models.Room{
		UserID:        userID,
		Title:         title,
		PersonaName:   personaName,
		PersonaPrompt: personaPrompt,
	}

	id, err := s.rooms.Create(ctx, room)
	if err != nil {
		return nil, err
	}

	return s.rooms.Get(ctx, id)
}

// Get returns a room the user owns
func (s *RoomService) Get(ctx context.Context, userID, roomID string) (*models.Room, error) {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}
	return s.rooms.Get(ctx, roomID)
}

// List returns the user's rooms
func (s *RoomService) List(ctx context.Context, userID string) ([]*models.Room, error) {
	return s.rooms.ListByUser(ctx, userID)
}

// Delete removes a room with everything in it
func (s *RoomService) Delete(ctx context.Context, userID, roomID string) error {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return err
	}
	return s.rooms.Delete(ctx, roomID)
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}
