package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fablechat/fable-backend/internal/apperr"
	"github.com/fablechat/fable-backend/internal/config"
	"github.com/fablechat/fable-backend/internal/models"
	"github.com/fablechat/fable-backend/internal/providers"
	"github.com/fablechat/fable-backend/internal/repository"
)

const summaryInstruction = `Summarize the conversation below in 3-5 sentences with a factual tone.
Capture the topics discussed, facts established, emotional beats, and any commitments or plans made.
Write only the summary.`

// MemoryService compresses old turns into durable summary memories and
// manages the user-facing memory records. Summarization is best-effort: it is
// dispatched after a chat response has already been sent, so generation
// failures are logged and swallowed, never retried.
type MemoryService struct {
	turns    repository.TurnRepository
	memories repository.MemoryRepository
	provider providers.Provider
	auth     Authorizer
	cfg      config.MemoryConfig
}

// NewMemoryService creates a memory service
func NewMemoryService(
	turns repository.TurnRepository,
	memories repository.MemoryRepository,
	provider providers.Provider,
	auth Authorizer,
	cfg config.MemoryConfig,
) *MemoryService {
	return &MemoryService{
		turns:    turns,
		memories: memories,
		provider: provider,
		auth:     auth,
		cfg:      cfg,
	}
}

// NeedsSummarization reports whether enough turns have accumulated past the
// last summary's high-water mark. The window slides on turn ids, not wall
// clock.
func (s *MemoryService) NeedsSummarization(ctx context.Context, roomID string) (bool, error) {
	last, err := s.memories.LastSummary(ctx, roomID)
	if err != nil {
		return false, err
	}

	var highWater int64
	if last != nil && last.RangeEnd.Valid {
		highWater = last.RangeEnd.Int64
	}

	count, err := s.turns.CountAfter(ctx, roomID, highWater)
	if err != nil {
		return false, err
	}

	return count >= s.cfg.SummaryThreshold, nil
}

// Summarize compresses the oldest unsummarized turns into a summary memory.
// Returns (nil, nil) both when there is nothing to summarize and when the
// generation call fails.
func (s *MemoryService) Summarize(ctx context.Context, roomID, personaName string) (*models.Memory, error) {
	last, err := s.memories.LastSummary(ctx, roomID)
	if err != nil {
		return nil, err
	}

	var startID int64
	if last != nil && last.RangeEnd.Valid {
		startID = last.RangeEnd.Int64 + 1
	}

	turns, err := s.turns.ListAfter(ctx, roomID, startID, s.cfg.MaxPerSummary)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, nil
	}

	var transcript strings.Builder
	for _, turn := range turns {
		speaker := "User"
		if turn.Role == models.RoleAssistant && personaName != "" {
			speaker = personaName
		} else if turn.Role == models.RoleAssistant {
			speaker = "Assistant"
		}
		fmt.Fprintf(&transcript, "%s: %s\n", speaker, turn.Content)
	}

	timeout := time.Duration(s.cfg.SummaryTimeoutS) * time.Second
	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	temperature := float32(0.3)
	maxTokens := 300
	resp, err := s.provider.Complete(genCtx, providers.CompletionRequest{
		Messages: []providers.Message{
			{Role: "system", Content: summaryInstruction},
			{Role: "user", Content: transcript.String()},
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"room":  roomID,
			"turns": len(turns),
		}).WithError(err).Warn("summary generation failed, skipping")
		return nil, nil
	}

	importance := 5 + len(turns)/4
	if importance > 10 {
		importance = 10
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"turn_count": len(turns),
		"persona":    personaName,
	})

	memory := models.Memory{
		RoomID:     roomID,
		Kind:       models.MemorySummary,
		Content:    resp.Content,
		Importance: importance,
		RangeStart: nullInt64(turns[0].ID),
		RangeEnd:   nullInt64(turns[len(turns)-1].ID),
		Metadata:   metadata,
		CreatedBy:  models.CreatedByAuto,
	}

	created, err := s.memories.Create(ctx, memory)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"room":       roomID,
		"range":      fmt.Sprintf("[%d,%d]", turns[0].ID, turns[len(turns)-1].ID),
		"importance": importance,
	}).Info("created summary memory")

	return &created, nil
}

// Cleanup keeps the keepCount highest-ranked memories and deletes the rest,
// sparing user-authored records. A zero keepCount falls back to the configured
// default. Returns the number deleted.
func (s *MemoryService) Cleanup(ctx context.Context, userID, roomID string, keepCount int) (int, error) {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return 0, err
	}
	if keepCount < 0 {
		return 0, apperr.InvalidArgumentf("keep count %d", keepCount)
	}
	if keepCount == 0 {
		keepCount = s.cfg.CleanupKeepCount
	}

	ranked, err := s.memories.List(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if len(ranked) <= keepCount {
		return 0, nil
	}

	var ids []string
	for _, memory := range ranked[keepCount:] {
		if memory.CreatedBy == models.CreatedByUser {
			continue
		}
		ids = append(ids, memory.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.memories.DeleteMany(ctx, roomID, ids); err != nil {
		return 0, err
	}

	return len(ids), nil
}

// List returns the room's memories ranked by importance then recency.
func (s *MemoryService) List(ctx context.Context, userID, roomID string) ([]models.Memory, error) {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}
	return s.memories.List(ctx, roomID)
}

// ListImportant returns up to limit memories at or above minImportance.
func (s *MemoryService) ListImportant(ctx context.Context, userID, roomID string, minImportance, limit int) ([]models.Memory, error) {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}
	if minImportance < 1 || minImportance > 10 {
		return nil, apperr.InvalidArgumentf("importance %d out of range 1..10", minImportance)
	}
	if limit <= 0 {
		limit = 50
	}
	return s.memories.ListImportant(ctx, roomID, minImportance, limit)
}

// Create adds a user-authored memory.
func (s *MemoryService) Create(ctx context.Context, userID, roomID, kind, content string, importance int) (*models.Memory, error) {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}
	if !models.ValidMemoryKind(kind) || kind == models.MemorySummary {
		return nil, apperr.InvalidArgumentf("memory kind %q", kind)
	}
	if content == "" {
		return nil, apperr.InvalidArgumentf("memory content is empty")
	}
	if importance < 1 || importance > 10 {
		return nil, apperr.InvalidArgumentf("importance %d out of range 1..10", importance)
	}

	memory, err := s.memories.Create(ctx, models.Memory{
		RoomID:     roomID,
		Kind:       kind,
		Content:    content,
		Importance: importance,
		CreatedBy:  models.CreatedByUser,
	})
	if err != nil {
		return nil, err
	}
	return &memory, nil
}

// Update edits a memory's content and importance.
func (s *MemoryService) Update(ctx context.Context, userID, roomID, memoryID, content string, importance int) (*models.Memory, error) {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}
	if importance < 1 || importance > 10 {
		return nil, apperr.InvalidArgumentf("importance %d out of range 1..10", importance)
	}

	memory, err := s.memories.Get(ctx, roomID, memoryID)
	if err != nil {
		return nil, err
	}

	if content != "" {
		memory.Content = content
	}
	memory.Importance = importance

	if err := s.memories.Update(ctx, *memory); err != nil {
		return nil, err
	}
	return memory, nil
}

// Delete removes a memory.
func (s *MemoryService) Delete(ctx context.Context, userID, roomID, memoryID string) error {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return err
	}
	return s.memories.Delete(ctx, roomID, memoryID)
}
