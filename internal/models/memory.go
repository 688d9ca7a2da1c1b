package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Memory kinds.
const (
	MemorySummary  = "summary"
	MemoryFact     = "fact"
	MemoryEntity   = "entity"
	MemoryEvent    = "event"
	MemoryUserNote = "user_note"
)

// Memory creators.
const (
	CreatedByAuto = "auto"
	CreatedByUser = "user"
)

// Memory is a durable, scored note about a room's history. Summaries carry a
// covered turn-id range; user-authored kinds do not and are never removed by
// the importance cleanup.
type Memory struct {
	ID         string          `db:"id" json:"id"`
	RoomID     string          `db:"room_id" json:"room_id"`
	Kind       string          `db:"kind" json:"kind"`
	Content    string          `db:"content" json:"content"`
	Importance int             `db:"importance" json:"importance"`
	RangeStart sql.NullInt64   `db:"range_start" json:"range_start,omitempty"`
	RangeEnd   sql.NullInt64   `db:"range_end" json:"range_end,omitempty"`
	Metadata   json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedBy  string          `db:"created_by" json:"created_by"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// ValidMemoryKind reports whether k is one of the known memory kinds.
func ValidMemoryKind(k string) bool {
	switch k {
	case MemorySummary, MemoryFact, MemoryEntity, MemoryEvent, MemoryUserNote:
		return true
	}
	return false
}
