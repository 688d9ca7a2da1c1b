package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fablechat/fable-backend/internal/apperr"
	"github.com/fablechat/fable-backend/internal/models"
	"github.com/fablechat/fable-backend/internal/repository"
)

// TurnRepository implements repository.TurnRepository using PostgreSQL
type TurnRepository struct {
	db *sqlx.DB
}

// NewTurnRepository creates a new PostgreSQL turn repository
func NewTurnRepository(db *sqlx.DB) repository.TurnRepository {
	return &TurnRepository{db: db}
}

// Create inserts a turn with the room's next sequence number. The counter
// bump locks the room row, so concurrent sends to the same room serialize
// here instead of racing a max(sequence_number) rescan.
func (r *TurnRepository) Create(ctx context.Context, turn models.Turn) (models.Turn, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Turn{}, apperr.Storef("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowxContext(ctx,
		`UPDATE rooms SET last_seq = last_seq + 1, updated_at = NOW() WHERE id = $1 RETURNING last_seq`,
		turn.RoomID,
	).Scan(&seq)
	if err == sql.ErrNoRows {
		return models.Turn{}, apperr.NotFoundf("room %s", turn.RoomID)
	}
	if err != nil {
		return models.Turn{}, apperr.Storef("failed to advance room sequence", err)
	}
	turn.SequenceNumber = seq

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO turns (room_id, role, content, sequence_number, parent_id, branch_tag, is_active, tokens_used, cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, turn.RoomID, turn.Role, turn.Content, turn.SequenceNumber,
		turn.ParentID, turn.BranchTag, turn.IsActive, turn.TokensUsed, turn.Cost,
	).Scan(&turn.ID, &turn.CreatedAt)
	if err != nil {
		return models.Turn{}, apperr.Storef("failed to insert turn", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Turn{}, apperr.Storef("failed to commit turn", err)
	}

	return turn, nil
}

// Get retrieves a single turn scoped to a room
func (r *TurnRepository) Get(ctx context.Context, roomID string, id int64) (*models.Turn, error) {
	var turn models.Turn
	err := r.db.GetContext(ctx, &turn, `
		SELECT * FROM turns
		WHERE room_id = $1 AND id = $2 AND NOT is_deleted
	`, roomID, id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("turn %d", id)
	}
	if err != nil {
		return nil, apperr.Storef("failed to get turn", err)
	}
	return &turn, nil
}

// ListRoom returns all non-deleted turns in sequence order
func (r *TurnRepository) ListRoom(ctx context.Context, roomID string) ([]models.Turn, error) {
	var turns []models.Turn
	err := r.db.SelectContext(ctx, &turns, `
		SELECT * FROM turns
		WHERE room_id = $1 AND NOT is_deleted
		ORDER BY sequence_number ASC
	`, roomID)
	if err != nil {
		return nil, apperr.Storef("failed to list turns", err)
	}
	return turns, nil
}

// ListActive returns the non-deleted active turns in sequence order
func (r *TurnRepository) ListActive(ctx context.Context, roomID string) ([]models.Turn, error) {
	var turns []models.Turn
	err := r.db.SelectContext(ctx, &turns, `
		SELECT * FROM turns
		WHERE room_id = $1 AND is_active AND NOT is_deleted
		ORDER BY sequence_number ASC
	`, roomID)
	if err != nil {
		return nil, apperr.Storef("failed to list active turns", err)
	}
	return turns, nil
}

// ListRecentActive returns up to limit active turns, newest first
func (r *TurnRepository) ListRecentActive(ctx context.Context, roomID string, limit int) ([]models.Turn, error) {
	var turns []models.Turn
	err := r.db.SelectContext(ctx, &turns, `
		SELECT * FROM turns
		WHERE room_id = $1 AND is_active AND NOT is_deleted
		ORDER BY sequence_number DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, apperr.Storef("failed to list recent turns", err)
	}
	return turns, nil
}

// CountAfter counts non-deleted turns with id greater than afterID
func (r *TurnRepository) CountAfter(ctx context.Context, roomID string, afterID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM turns
		WHERE room_id = $1 AND id > $2 AND NOT is_deleted
	`, roomID, afterID)
	if err != nil {
		return 0, apperr.Storef("failed to count turns", err)
	}
	return count, nil
}

// ListAfter returns up to limit non-deleted turns with id >= fromID in sequence order
func (r *TurnRepository) ListAfter(ctx context.Context, roomID string, fromID int64, limit int) ([]models.Turn, error) {
	var turns []models.Turn
	err := r.db.SelectContext(ctx, &turns, `
		SELECT * FROM turns
		WHERE room_id = $1 AND id >= $2 AND NOT is_deleted
		ORDER BY sequence_number ASC
		LIMIT $3
	`, roomID, fromID, limit)
	if err != nil {
		return nil, apperr.Storef(fmt.Sprintf("failed to list turns after %d", fromID), err)
	}
	return turns, nil
}

// ReplaceActivePath atomically makes the given turns the room's only active
// path. The activation count is checked against the path length: a mismatch
// means a turn on the path was deleted concurrently, and the whole operation
// rolls back as a conflict.
func (r *TurnRepository) ReplaceActivePath(ctx context.Context, roomID string, path []int64, stampTag string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Storef("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := lockRoom(ctx, tx, roomID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE turns SET is_active = FALSE WHERE room_id = $1 AND is_active`, roomID); err != nil {
		return apperr.Storef("failed to deactivate turns", err)
	}

	var res sql.Result
	if stampTag != "" {
		res, err = tx.ExecContext(ctx, `
			UPDATE turns SET is_active = TRUE, branch_tag = $2
			WHERE room_id = $1 AND id = ANY($3) AND NOT is_deleted
		`, roomID, stampTag, pq.Array(path))
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE turns SET is_active = TRUE
			WHERE room_id = $1 AND id = ANY($2) AND NOT is_deleted
		`, roomID, pq.Array(path))
	}
	if err != nil {
		return apperr.Storef("failed to activate path", err)
	}

	activated, err := res.RowsAffected()
	if err != nil {
		return apperr.Storef("failed to read rows affected", err)
	}
	if activated != int64(len(path)) {
		return fmt.Errorf("activated %d of %d path turns: %w", activated, len(path), apperr.ErrConflict)
	}

	return tx.Commit()
}

// SoftDeleteBranch tombstones every non-deleted turn carrying tag
func (r *TurnRepository) SoftDeleteBranch(ctx context.Context, roomID, tag string) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperr.Storef("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := lockRoom(ctx, tx, roomID); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE turns SET is_deleted = TRUE
		WHERE room_id = $1 AND branch_tag = $2 AND NOT is_deleted
	`, roomID, tag)
	if err != nil {
		return 0, apperr.Storef("failed to delete branch", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Storef("failed to read rows affected", err)
	}

	return deleted, tx.Commit()
}

func lockRoom(ctx context.Context, tx *sqlx.Tx, roomID string) error {
	var id string
	err := tx.QueryRowxContext(ctx, `SELECT id FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&id)
	if err == sql.ErrNoRows {
		return apperr.NotFoundf("room %s", roomID)
	}
	if err != nil {
		return apperr.Storef("failed to lock room", err)
	}
	return nil
}
