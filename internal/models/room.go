package models

import "time"

// Room owns a turn tree and its memories. The persona fields feed the system
// prompt of every generation call made for the room.
type Room struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Title         string    `db:"title" json:"title"`
	PersonaName   string    `db:"persona_name" json:"persona_name"`
	PersonaPrompt string    `db:"persona_prompt" json:"persona_prompt"`
	LastMessage   string    `db:"last_message" json:"last_message"`
	LastSeq       int64     `db:"last_seq" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// User is the account owning rooms. Managed by the operator tools; the server
// only reads it for login and ownership checks.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ContextEntry is one element of an assembled generation input.
type ContextEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
