package models

import (
	"database/sql"
	"time"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MainBranch is the implicit branch of turns created before any fork.
// A NULL branch_tag in storage is read as this tag.
const MainBranch = "main"

// Turn is a single message in a room's history. Turns form a forest via
// ParentID; the turns with IsActive set are the path the user currently sees.
type Turn struct {
	ID             int64          `db:"id" json:"id"`
	RoomID         string         `db:"room_id" json:"room_id"`
	Role           string         `db:"role" json:"role"`
	Content        string         `db:"content" json:"content"`
	SequenceNumber int64          `db:"sequence_number" json:"sequence_number"`
	ParentID       sql.NullInt64  `db:"parent_id" json:"parent_id,omitempty"`
	BranchTag      sql.NullString `db:"branch_tag" json:"branch_tag,omitempty"`
	IsActive       bool           `db:"is_active" json:"is_active"`
	IsDeleted      bool           `db:"is_deleted" json:"-"`
	TokensUsed     int            `db:"tokens_used" json:"tokens_used"`
	Cost           float64        `db:"cost" json:"cost"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// Branch returns the turn's branch tag, reading an absent tag as "main".
func (t Turn) Branch() string {
	if t.BranchTag.Valid && t.BranchTag.String != "" {
		return t.BranchTag.String
	}
	return MainBranch
}

// Branch is a derived view over the turns sharing one branch_tag. It is
// computed per query, never stored.
type Branch struct {
	Tag               string    `json:"tag"`
	TurnCount         int       `json:"turn_count"`
	LastTurnID        int64     `json:"last_turn_id"`
	EarliestCreatedAt time.Time `json:"earliest_created_at"`
	IsActive          bool      `json:"is_active"`
}

// TreeNode is one turn plus its children, ordered by sequence number.
// Used by the tree visualization endpoint.
type TreeNode struct {
	Turn     Turn        `json:"turn"`
	Children []*TreeNode `json:"children,omitempty"`
}
