package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fablechat/fable-backend/internal/apperr"
	"github.com/fablechat/fable-backend/internal/models"
	"github.com/fablechat/fable-backend/internal/repository"
)

// MemoryRepository implements repository.MemoryRepository using PostgreSQL
type MemoryRepository struct {
	db *sqlx.DB
}

// NewMemoryRepository creates a new PostgreSQL memory repository
func NewMemoryRepository(db *sqlx.DB) repository.MemoryRepository {
	return &MemoryRepository{db: db}
}

// Create inserts a memory record
func (r *MemoryRepository) Create(ctx context.Context, memory models.Memory) (models.Memory, error) {
	if memory.ID == "" {
		memory.ID = uuid.New().String()
	}
	if len(memory.Metadata) == 0 {
		memory.Metadata = []byte("{}")
	}
	memory.CreatedAt = time.Now()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO memories (id, room_id, kind, content, importance, range_start, range_end, metadata, created_by, created_at)
		VALUES (:id, :room_id, :kind, :content, :importance, :range_start, :range_end, :metadata, :created_by, :created_at)
	`, memory)
	if err != nil {
		return models.Memory{}, apperr.Storef("failed to insert memory", err)
	}

	return memory, nil
}

// Get retrieves a memory scoped to a room
func (r *MemoryRepository) Get(ctx context.Context, roomID, id string) (*models.Memory, error) {
	var memory models.Memory
	err := r.db.GetContext(ctx, &memory, `
		SELECT * FROM memories WHERE room_id = $1 AND id = $2
	`, roomID, id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("memory %s", id)
	}
	if err != nil {
		return nil, apperr.Storef("failed to get memory", err)
	}
	return &memory, nil
}

// List returns all memories for a room ranked by importance then recency
func (r *MemoryRepository) List(ctx context.Context, roomID string) ([]models.Memory, error) {
	var memories []models.Memory
	err := r.db.SelectContext(ctx, &memories, `
		SELECT * FROM memories
		WHERE room_id = $1
		ORDER BY importance DESC, created_at DESC
	`, roomID)
	if err != nil {
		return nil, apperr.Storef("failed to list memories", err)
	}
	return memories, nil
}

// ListTop returns the highest-ranked memories up to limit
func (r *MemoryRepository) ListTop(ctx context.Context, roomID string, limit int) ([]models.Memory, error) {
	var memories []models.Memory
	err := r.db.SelectContext(ctx, &memories, `
		SELECT * FROM memories
		WHERE room_id = $1
		ORDER BY importance DESC, created_at DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, apperr.Storef("failed to list top memories", err)
	}
	return memories, nil
}

// ListImportant returns memories at or above minImportance, ranked
func (r *MemoryRepository) ListImportant(ctx context.Context, roomID string, minImportance, limit int) ([]models.Memory, error) {
	var memories []models.Memory
	err := r.db.SelectContext(ctx, &memories, `
		SELECT * FROM memories
		WHERE room_id = $1 AND importance >= $2
		ORDER BY importance DESC, created_at DESC
		LIMIT $3
	`, roomID, minImportance, limit)
	if err != nil {
		return nil, apperr.Storef("failed to list important memories", err)
	}
	return memories, nil
}

// LastSummary returns the auto summary covering the highest turn id, if any
func (r *MemoryRepository) LastSummary(ctx context.Context, roomID string) (*models.Memory, error) {
	var memory models.Memory
	err := r.db.GetContext(ctx, &memory, `
		SELECT * FROM memories
		WHERE room_id = $1 AND kind = 'summary' AND created_by = 'auto' AND range_end IS NOT NULL
		ORDER BY range_end DESC
		LIMIT 1
	`, roomID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storef("failed to get last summary", err)
	}
	return &memory, nil
}

// Update rewrites a memory's content, kind and importance
func (r *MemoryRepository) Update(ctx context.Context, memory models.Memory) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE memories SET kind = $3, content = $4, importance = $5, metadata = $6
		WHERE room_id = $1 AND id = $2
	`, memory.RoomID, memory.ID, memory.Kind, memory.Content, memory.Importance, memory.Metadata)
	if err != nil {
		return apperr.Storef("failed to update memory", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Storef("failed to read rows affected", err)
	}
	if affected == 0 {
		return apperr.NotFoundf("memory %s", memory.ID)
	}

	return nil
}

// Delete removes a memory
func (r *MemoryRepository) Delete(ctx context.Context, roomID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM memories WHERE room_id = $1 AND id = $2`, roomID, id)
	if err != nil {
		return apperr.Storef("failed to delete memory", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Storef("failed to read rows affected", err)
	}
	if affected == 0 {
		return apperr.NotFoundf("memory %s", id)
	}

	return nil
}

// DeleteMany removes a batch of memories
func (r *MemoryRepository) DeleteMany(ctx context.Context, roomID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM memories WHERE room_id = $1 AND id = ANY($2)`, roomID, pq.Array(ids))
	if err != nil {
		return apperr.Storef("failed to delete memories", err)
	}

	return nil
}
