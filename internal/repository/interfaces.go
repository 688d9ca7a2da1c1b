package repository

import (
	"context"

	"github.com/fablechat/fable-backend/internal/models"
)

// RoomRepository defines room storage operations.
type RoomRepository interface {
	Create(ctx context.Context, room models.Room) (string, error)
	Get(ctx context.Context, id string) (*models.Room, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Room, error)
	UpdatePreview(ctx context.Context, id, lastMessage string) error
	Delete(ctx context.Context, id string) error
}

// TurnRepository defines turn storage operations. Create assigns the next
// per-room sequence number inside its own transaction; the branch mutations
// (ReplaceActivePath, SoftDeleteBranch) each run as a single transaction
// holding a row lock on the room, so a concurrent reader never observes a
// half-switched active set.
type TurnRepository interface {
	Create(ctx context.Context, turn models.Turn) (models.Turn, error)
	Get(ctx context.Context, roomID string, id int64) (*models.Turn, error)
	// ListRoom returns all non-deleted turns ordered by sequence number.
	ListRoom(ctx context.Context, roomID string) ([]models.Turn, error)
	// ListActive returns non-deleted active turns ordered by sequence number.
	ListActive(ctx context.Context, roomID string) ([]models.Turn, error)
	// ListRecentActive returns up to limit active turns, most recent first.
	ListRecentActive(ctx context.Context, roomID string, limit int) ([]models.Turn, error)
	// CountAfter counts non-deleted turns with id > afterID.
	CountAfter(ctx context.Context, roomID string, afterID int64) (int, error)
	// ListAfter returns up to limit non-deleted turns with id >= fromID,
	// ordered by sequence number.
	ListAfter(ctx context.Context, roomID string, fromID int64, limit int) ([]models.Turn, error)
	// ReplaceActivePath deactivates every turn in the room, then activates
	// exactly the given turns. A non-empty stampTag is written to each
	// activated turn (fork); an empty stampTag leaves tags untouched (switch).
	ReplaceActivePath(ctx context.Context, roomID string, path []int64, stampTag string) error
	// SoftDeleteBranch tombstones every turn tagged tag. Returns the number
	// of turns deleted.
	SoftDeleteBranch(ctx context.Context, roomID, tag string) (int64, error)
}

// MemoryRepository defines memory storage operations. Listing methods rank by
// (importance desc, created_at desc).
type MemoryRepository interface {
	Create(ctx context.Context, memory models.Memory) (models.Memory, error)
	Get(ctx context.Context, roomID, id string) (*models.Memory, error)
	List(ctx context.Context, roomID string) ([]models.Memory, error)
	ListTop(ctx context.Context, roomID string, limit int) ([]models.Memory, error)
	ListImportant(ctx context.Context, roomID string, minImportance, limit int) ([]models.Memory, error)
	// LastSummary returns the auto summary with the highest covered range end,
	// or nil when the room has never been summarized.
	LastSummary(ctx context.Context, roomID string) (*models.Memory, error)
	Update(ctx context.Context, memory models.Memory) error
	Delete(ctx context.Context, roomID, id string) error
	DeleteMany(ctx context.Context, roomID string, ids []string) error
}

// UserRepository defines user storage operations.
type UserRepository interface {
	Create(ctx context.Context, user models.User) (string, error)
	Get(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}
