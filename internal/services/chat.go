package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fablechat/fable-backend/internal/apperr"
	"github.com/fablechat/fable-backend/internal/config"
	"github.com/fablechat/fable-backend/internal/models"
	"github.com/fablechat/fable-backend/internal/providers"
	"github.com/fablechat/fable-backend/internal/repository"
	"github.com/fablechat/fable-backend/internal/tokenizer"
)

const previewLength = 200

// SendResult is the outcome of one chat exchange.
type SendResult struct {
	UserTurn      models.Turn `json:"user_turn"`
	AssistantTurn models.Turn `json:"assistant_turn"`
}

// ChatService runs the send flow: append the user turn at the active leaf,
// assemble a context within the token budget, call the provider, persist the
// assistant turn, then hand the room to the memory service in the background.
type ChatService struct {
	rooms    repository.RoomRepository
	turns    repository.TurnRepository
	memories repository.MemoryRepository
	provider providers.Provider
	memory   *MemoryService
	builder  *ContextBuilder
	est      tokenizer.Estimator
	auth     Authorizer
	locks    *roomLocks
	cfg      config.ChatConfig
}

// NewChatService creates a chat service
func NewChatService(
	rooms repository.RoomRepository,
	turns repository.TurnRepository,
	memories repository.MemoryRepository,
	provider providers.Provider,
	memory *MemoryService,
	est tokenizer.Estimator,
	auth Authorizer,
	locks *roomLocks,
	cfg config.ChatConfig,
) *ChatService {
	return &ChatService{
		rooms:    rooms,
		turns:    turns,
		memories: memories,
		provider: provider,
		memory:   memory,
		builder:  NewContextBuilder(est),
		est:      est,
		auth:     auth,
		locks:    locks,
		cfg:      cfg,
	}
}

// SendMessage appends a user turn, generates the assistant reply and persists
// both. Summarization is checked after the reply on a detached goroutine; its
// failures never reach this call's result.
func (s *ChatService) SendMessage(ctx context.Context, userID, roomID, content string) (*SendResult, error) {
	if content == "" {
		return nil, apperr.InvalidArgumentf("message content is empty")
	}
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}

	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	userTurn, entries, err := s.insertUserTurn(ctx, room, content)
	if err != nil {
		return nil, err
	}

	resp, err := s.provider.Complete(ctx, providers.CompletionRequest{
		Messages: toProviderMessages(entries),
	})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %v: %w", err, apperr.ErrUpstream)
	}

	assistantTurn, err := s.persistAssistant(ctx, room, userTurn, resp.Content, resp.Usage.TotalTokens)
	if err != nil {
		return nil, err
	}

	s.dispatchSummarize(room)

	return &SendResult{UserTurn: userTurn, AssistantTurn: assistantTurn}, nil
}

// StreamMessage is SendMessage over a chunk channel. The assistant turn is
// persisted when the stream finishes; transport errors surface as an Error
// chunk and leave the user turn in place.
func (s *ChatService) StreamMessage(ctx context.Context, userID, roomID, content string) (<-chan providers.StreamChunk, error) {
	if content == "" {
		return nil, apperr.InvalidArgumentf("message content is empty")
	}
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}

	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	userTurn, entries, err := s.insertUserTurn(ctx, room, content)
	if err != nil {
		return nil, err
	}

	streamChan, err := s.provider.StreamComplete(ctx, providers.CompletionRequest{
		Messages: toProviderMessages(entries),
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}

	processed := make(chan providers.StreamChunk)

	go func() {
		defer close(processed)

		var contentBuilder strings.Builder
		for chunk := range streamChan {
			processed <- chunk

			if chunk.Delta != "" {
				contentBuilder.WriteString(chunk.Delta)
			}
			if chunk.Error != "" {
				return
			}

			if chunk.FinishReason != "" {
				reply := contentBuilder.String()
				tokens := s.est.Estimate(reply)
				if _, err := s.persistStreamed(context.Background(), room, userTurn, reply, tokens); err != nil {
					logrus.WithError(err).WithField("room", room.ID).Error("failed to persist streamed reply")
					return
				}
				s.dispatchSummarize(room)
			}
		}
	}()

	return processed, nil
}

// candidateMemories caps the ranked memory list fed to context assembly; both
// policies only ever admit the top few entries.
const candidateMemories = 10

// insertUserTurn creates the user turn at the active leaf and returns it with
// the assembled context entries for the generation call.
func (s *ChatService) insertUserTurn(ctx context.Context, room *models.Room, content string) (models.Turn, []models.ContextEntry, error) {
	// Newest-first view of the path as it is before this message; its head is
	// the leaf the new turn attaches to.
	recentFirst, err := s.turns.ListRecentActive(ctx, room.ID, s.cfg.MaxRecentTurns)
	if err != nil {
		return models.Turn{}, nil, err
	}

	var parentID sql.NullInt64
	var branchTag sql.NullString
	if len(recentFirst) > 0 {
		leaf := recentFirst[0]
		parentID = nullInt64(leaf.ID)
		branchTag = leaf.BranchTag
	}

	userTurn, err := s.turns.Create(ctx, models.Turn{
		RoomID:    room.ID,
		Role:      models.RoleUser,
		Content:   content,
		ParentID:  parentID,
		BranchTag: branchTag,
		IsActive:  true,
	})
	if err != nil {
		return models.Turn{}, nil, err
	}

	memories, err := s.memories.ListTop(ctx, room.ID, candidateMemories)
	if err != nil {
		return models.Turn{}, nil, err
	}

	budget := s.cfg.TokenBudget - s.est.Estimate(room.PersonaPrompt)
	if budget < 0 {
		budget = 0
	}

	entries := s.builder.Build(recentFirst, memories, content, budget, ContextOptions{
		Policy:          s.cfg.ContextPolicy,
		MaxRecent:       s.cfg.MaxRecentTurns,
		IncludeMemories: s.cfg.IncludeMemories,
	})

	if room.PersonaPrompt != "" {
		entries = append([]models.ContextEntry{{Role: "system", Content: room.PersonaPrompt}}, entries...)
	}

	return userTurn, entries, nil
}

func (s *ChatService) persistAssistant(ctx context.Context, room *models.Room, userTurn models.Turn, reply string, tokens int) (models.Turn, error) {
	assistantTurn, err := s.turns.Create(ctx, models.Turn{
		RoomID:     room.ID,
		Role:       models.RoleAssistant,
		Content:    reply,
		ParentID:   nullInt64(userTurn.ID),
		BranchTag:  userTurn.BranchTag,
		IsActive:   true,
		TokensUsed: tokens,
	})
	if err != nil {
		return models.Turn{}, err
	}

	if err := s.rooms.UpdatePreview(ctx, room.ID, truncate(reply, previewLength)); err != nil {
		logrus.WithError(err).WithField("room", room.ID).Warn("failed to update room preview")
	}

	return assistantTurn, nil
}

// persistStreamed writes a streamed reply. The stream ran without the room
// lock, so a fork or switch may have moved the active path meanwhile: the user
// turn's activity is re-checked under the lock, and a reply whose parent was
// deactivated is persisted inactive on its original branch instead of
// disconnecting the active set.
func (s *ChatService) persistStreamed(ctx context.Context, room *models.Room, userTurn models.Turn, reply string, tokens int) (models.Turn, error) {
	unlock := s.locks.Lock(room.ID)
	defer unlock()

	current, err := s.turns.Get(ctx, room.ID, userTurn.ID)
	if err != nil {
		return models.Turn{}, err
	}

	assistantTurn, err := s.turns.Create(ctx, models.Turn{
		RoomID:     room.ID,
		Role:       models.RoleAssistant,
		Content:    reply,
		ParentID:   nullInt64(userTurn.ID),
		BranchTag:  current.BranchTag,
		IsActive:   current.IsActive,
		TokensUsed: tokens,
	})
	if err != nil {
		return models.Turn{}, err
	}

	if current.IsActive {
		if err := s.rooms.UpdatePreview(ctx, room.ID, truncate(reply, previewLength)); err != nil {
			logrus.WithError(err).WithField("room", room.ID).Warn("failed to update room preview")
		}
	}

	return assistantTurn, nil
}

// dispatchSummarize checks the summarization trigger on a detached goroutine
// with its own error boundary, after the response is already on its way out.
func (s *ChatService) dispatchSummarize(room *models.Room) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("room", room.ID).Errorf("summarization panicked: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		need, err := s.memory.NeedsSummarization(ctx, room.ID)
		if err != nil {
			logrus.WithError(err).WithField("room", room.ID).Warn("summarization check failed")
			return
		}
		if !need {
			return
		}

		if _, err := s.memory.Summarize(ctx, room.ID, room.PersonaName); err != nil {
			logrus.WithError(err).WithField("room", room.ID).Warn("summarization failed")
		}
	}()
}

func toProviderMessages(entries []models.ContextEntry) []providers.Message {
	messages := make([]providers.Message, len(entries))
	for i, entry := range entries {
		messages[i] = providers.Message{Role: entry.Role, Content: entry.Content}
	}
	return messages
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
