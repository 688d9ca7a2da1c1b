package auth

import (
	"context"

	"github.com/fablechat/fable-backend/internal/apperr"
	"github.com/fablechat/fable-backend/internal/repository"
)

// Service handles login and room ownership checks. Branch and memory
// mutations call AuthorizeRoom before touching the store.
type Service struct {
	users repository.UserRepository
	rooms repository.RoomRepository
	jwt   *JWTManager
}

// NewService creates an auth service
func NewService(users repository.UserRepository, rooms repository.RoomRepository, jwtSecret string) *Service {
	return &Service{
		users: users,
		rooms: rooms,
		jwt:   NewJWTManager(jwtSecret),
	}
}

// Login verifies credentials and returns a signed session token
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", apperr.Forbiddenf("invalid credentials")
	}
	if !CheckPassword(password, user.PasswordHash) {
		return "", apperr.Forbiddenf("invalid credentials")
	}

	return s.jwt.Generate(user.ID, user.Email)
}

// ValidateToken parses a session token into its claims
func (s *Service) ValidateToken(token string) (*Claims, error) {
	return s.jwt.Validate(token)
}

// AuthorizeRoom verifies that userID owns roomID. Returns ErrNotFound for a
// missing room and ErrForbidden for someone else's room, so the caller can
// tell the two apart.
func (s *Service) AuthorizeRoom(ctx context.Context, userID, roomID string) error {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if room.UserID != userID {
		return apperr.Forbiddenf("room %s does not belong to user", roomID)
	}
	return nil
}
