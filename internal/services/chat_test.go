package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablechat/fable-backend/internal/apperr"
	"github.com/fablechat/fable-backend/internal/config"
	"github.com/fablechat/fable-backend/internal/models"
	"github.com/fablechat/fable-backend/internal/providers"
	"github.com/fablechat/fable-backend/internal/tokenizer"
)

type chatFixture struct {
	rooms    *fakeRoomRepo
	turns    *fakeTurnRepo
	memories *fakeMemoryRepo
	provider *fakeProvider
	svc      *ChatService
}

func newChatFixture(provider *fakeProvider) *chatFixture {
	rooms := newFakeRoomRepo(&models.Room{
		ID:            "room-1",
		UserID:        "u1",
		Title:         "Test Room",
		PersonaName:   "Iris",
		PersonaPrompt: "You are Iris, a helpful companion.",
	})
	turns := newFakeTurnRepo()
	memories := newFakeMemoryRepo()

	memorySvc := NewMemoryService(turns, memories, provider, allowAuth{}, config.MemoryConfig{
		SummaryThreshold: 20,
		MaxPerSummary:    20,
		SummaryTimeoutS:  5,
	})
	svc := NewChatService(rooms, turns, memories, provider, memorySvc,
		tokenizer.Heuristic{}, allowAuth{}, newRoomLocks(), config.ChatConfig{
			TokenBudget:     4096,
			MaxRecentTurns:  10,
			IncludeMemories: true,
			ContextPolicy:   PolicySmart,
		})

	return &chatFixture{rooms: rooms, turns: turns, memories: memories, provider: provider, svc: svc}
}

func TestSendMessagePersistsBothTurns(t *testing.T) {
	f := newChatFixture(&fakeProvider{reply: "Hello there!"})
	ctx := context.Background()

	result, err := f.svc.SendMessage(ctx, "u1", "room-1", "hi")
	require.NoError(t, err)

	assert.Equal(t, models.RoleUser, result.UserTurn.Role)
	assert.Equal(t, "hi", result.UserTurn.Content)
	assert.False(t, result.UserTurn.ParentID.Valid, "first turn has no parent")
	assert.True(t, result.UserTurn.IsActive)

	assert.Equal(t, models.RoleAssistant, result.AssistantTurn.Role)
	assert.Equal(t, "Hello there!", result.AssistantTurn.Content)
	require.True(t, result.AssistantTurn.ParentID.Valid)
	assert.Equal(t, result.UserTurn.ID, result.AssistantTurn.ParentID.Int64)
	assert.Equal(t, 42, result.AssistantTurn.TokensUsed)

	room, err := f.rooms.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", room.LastMessage)
}

func TestSendMessageAppendsAtActiveLeaf(t *testing.T) {
	f := newChatFixture(&fakeProvider{reply: "reply"})
	ctx := context.Background()

	first, err := f.svc.SendMessage(ctx, "u1", "room-1", "one")
	require.NoError(t, err)
	second, err := f.svc.SendMessage(ctx, "u1", "room-1", "two")
	require.NoError(t, err)

	require.True(t, second.UserTurn.ParentID.Valid)
	assert.Equal(t, first.AssistantTurn.ID, second.UserTurn.ParentID.Int64)

	active, err := f.turns.ListActive(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, active, 4)
}

func TestSendMessageInheritsBranchTag(t *testing.T) {
	f := newChatFixture(&fakeProvider{reply: "reply"})
	ctx := context.Background()

	leaf := f.turns.seed(models.Turn{
		RoomID:    "room-1",
		Role:      models.RoleAssistant,
		Content:   "earlier",
		BranchTag: nullString("alt"),
		IsActive:  true,
	})

	result, err := f.svc.SendMessage(ctx, "u1", "room-1", "continue")
	require.NoError(t, err)

	assert.Equal(t, leaf.ID, result.UserTurn.ParentID.Int64)
	assert.Equal(t, "alt", result.UserTurn.Branch())
	assert.Equal(t, "alt", result.AssistantTurn.Branch())
}

func TestSendMessagePersonaLeadsContext(t *testing.T) {
	provider := &fakeProvider{reply: "reply"}
	f := newChatFixture(provider)

	_, err := f.svc.SendMessage(context.Background(), "u1", "room-1", "hi")
	require.NoError(t, err)

	req := provider.lastRequest()
	require.NotEmpty(t, req.Messages)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "You are Iris, a helpful companion.", req.Messages[0].Content)
	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, models.RoleUser, last.Role)
	assert.Equal(t, "hi", last.Content)
}

func TestSendMessageEmptyContent(t *testing.T) {
	f := newChatFixture(&fakeProvider{reply: "reply"})

	_, err := f.svc.SendMessage(context.Background(), "u1", "room-1", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestSendMessageUpstreamFailure(t *testing.T) {
	f := newChatFixture(&fakeProvider{err: errors.New("rate limited")})
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, "u1", "room-1", "hi")
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	// The user turn stays persisted; only the reply is missing.
	active, listErr := f.turns.ListActive(ctx, "room-1")
	require.NoError(t, listErr)
	require.Len(t, active, 1)
	assert.Equal(t, models.RoleUser, active[0].Role)
}

func TestSendMessageUnknownRoom(t *testing.T) {
	f := newChatFixture(&fakeProvider{reply: "reply"})

	_, err := f.svc.SendMessage(context.Background(), "u1", "missing", "hi")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

// manualStreamProvider hands out a caller-controlled stream so a test can
// hold a generation open while something else mutates the room.
type manualStreamProvider struct {
	fakeProvider
	stream chan providers.StreamChunk
}

func (p *manualStreamProvider) StreamComplete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
	return p.stream, nil
}

func TestStreamMessageForkDuringStream(t *testing.T) {
	rooms := newFakeRoomRepo(&models.Room{
		ID:          "room-1",
		UserID:      "u1",
		PersonaName: "Iris",
	})
	turns := newFakeTurnRepo()
	memories := newFakeMemoryRepo()
	provider := &manualStreamProvider{stream: make(chan providers.StreamChunk, 2)}

	svc := NewServices(rooms, turns, memories, provider, allowAuth{}, &config.Config{
		Chat:   config.ChatConfig{TokenBudget: 4096, MaxRecentTurns: 10, ContextPolicy: PolicySmart},
		Memory: config.MemoryConfig{SummaryThreshold: 20, MaxPerSummary: 20, SummaryTimeoutS: 5},
	})
	ctx := context.Background()

	root := turns.seed(models.Turn{RoomID: "room-1", Role: models.RoleUser, Content: "hi", IsActive: true})

	chunks, err := svc.Chat.StreamMessage(ctx, "u1", "room-1", "keep going")
	require.NoError(t, err)

	// The stream is still open; move the active path away from under it.
	_, err = svc.Branch.Fork(ctx, "u1", "room-1", root.ID, "alt")
	require.NoError(t, err)

	provider.stream <- providers.StreamChunk{Delta: "late reply"}
	provider.stream <- providers.StreamChunk{FinishReason: "stop"}
	close(provider.stream)
	for range chunks {
	}

	all, err := turns.ListRoom(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, all, 3)

	assistant := all[2]
	assert.Equal(t, models.RoleAssistant, assistant.Role)
	assert.Equal(t, "late reply", assistant.Content)
	assert.False(t, assistant.IsActive,
		"reply finishing after the fork must not rejoin the active set")

	// The active set is still the single contiguous path the fork chose.
	assert.Equal(t, []int64{root.ID}, activeIDs(t, turns, "room-1"))
	requireContiguous(t, turns, "room-1")
}

func TestStreamMessagePersistsOnFinish(t *testing.T) {
	f := newChatFixture(&fakeProvider{reply: "streamed reply"})
	ctx := context.Background()

	chunks, err := f.svc.StreamMessage(ctx, "u1", "room-1", "hi")
	require.NoError(t, err)

	var content string
	for chunk := range chunks {
		content += chunk.Delta
	}
	assert.Equal(t, "streamed reply", content)

	// The consumer goroutine persists the assistant turn on the finish chunk
	// before closing the channel, so the reply is durable once the range ends.
	active, err := f.turns.ListActive(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, models.RoleAssistant, active[1].Role)
	assert.Equal(t, "streamed reply", active[1].Content)
}
