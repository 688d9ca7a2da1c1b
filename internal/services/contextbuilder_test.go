package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablechat/fable-backend/internal/models"
	"github.com/fablechat/fable-backend/internal/tokenizer"
)

// recentTurns fabricates n turns newest-first, as ListRecentActive would
// return them. Contents are distinct so ordering is observable.
func recentTurns(n, contentLen int) []models.Turn {
	turns := make([]models.Turn, n)
	for i := 0; i < n; i++ {
		turns[i] = models.Turn{
			ID:      int64(n - i),
			Role:    models.RoleUser,
			Content: strings.Repeat("x", contentLen-1) + string(rune('a'+i)),
		}
	}
	return turns
}

func totalTokens(est tokenizer.Estimator, entries []models.ContextEntry) int {
	total := 0
	for _, entry := range entries {
		total += est.Estimate(entry.Content)
	}
	return total
}

func TestBuildSimpleStaysWithinBudget(t *testing.T) {
	est := tokenizer.Heuristic{}
	builder := NewContextBuilder(est)

	memories := []models.Memory{
		{Content: "likes jazz", Importance: 8},
		{Content: "lives in Lisbon", Importance: 6},
	}
	budget := 100

	turns := recentTurns(4, 7)
	entries := builder.Build(turns, memories, "hello", budget, ContextOptions{
		Policy:          PolicySimple,
		MaxRecent:       10,
		IncludeMemories: true,
	})

	require.NotEmpty(t, entries)
	assert.LessOrEqual(t, totalTokens(est, entries), budget)

	// Memory block first, then turns oldest to newest, user message last.
	assert.Equal(t, "system", entries[0].Role)
	assert.Contains(t, entries[0].Content, "likes jazz")
	last := entries[len(entries)-1]
	assert.Equal(t, models.RoleUser, last.Role)
	assert.Equal(t, "hello", last.Content)
	require.Len(t, entries, 6)
	assert.Equal(t, turns[3].Content, entries[1].Content, "oldest turn first")
	assert.Equal(t, turns[0].Content, entries[4].Content, "newest turn last")
}

func TestBuildSimpleShrinksWindow(t *testing.T) {
	est := tokenizer.Heuristic{}
	builder := NewContextBuilder(est)

	// Six 10-token turns against a budget where only two fit under the 80%
	// turn share.
	entries := builder.Build(recentTurns(6, 30), nil, "hi", 30, ContextOptions{
		Policy:    PolicySimple,
		MaxRecent: 6,
	})

	// Two newest turns plus the user message.
	require.Len(t, entries, 3)
	assert.Equal(t, "hi", entries[2].Content)
}

func TestBuildSimpleSkipsOversizedMemoryBlock(t *testing.T) {
	est := tokenizer.Heuristic{}
	builder := NewContextBuilder(est)

	memories := []models.Memory{{Content: strings.Repeat("m", 200), Importance: 9}}

	entries := builder.Build(nil, memories, "hi", 100, ContextOptions{
		Policy:          PolicySimple,
		MaxRecent:       10,
		IncludeMemories: true,
	})

	// Block exceeds 30% of the budget, so only the user message remains.
	require.Len(t, entries, 1)
	assert.Equal(t, "hi", entries[0].Content)
}

func TestBuildSmartLayout(t *testing.T) {
	est := tokenizer.Heuristic{}
	builder := NewContextBuilder(est)

	memories := []models.Memory{
		{Content: "remember one", Importance: 9},
		{Content: "remember two", Importance: 8},
		{Content: "forgettable", Importance: 6},
	}

	turns := recentTurns(7, 7)
	entries := builder.Build(turns, memories, "hi", 1000, ContextOptions{
		Policy:          PolicySmart,
		MaxRecent:       10,
		IncludeMemories: true,
	})

	// Memory block, two older turns, five fixed-tier turns, user message.
	require.Len(t, entries, 9)
	assert.Equal(t, "system", entries[0].Role)
	assert.Contains(t, entries[0].Content, "remember one")
	assert.Contains(t, entries[0].Content, "remember two")
	assert.NotContains(t, entries[0].Content, "forgettable")

	// Everything between the block and the user message runs oldest to
	// newest: the oldest admitted turn right after the memories.
	assert.Equal(t, turns[6].Content, entries[1].Content)
	assert.Equal(t, turns[0].Content, entries[7].Content)
	assert.Equal(t, "hi", entries[8].Content)

	assert.LessOrEqual(t, totalTokens(est, entries), 1000)
}

func TestBuildSmartFixedTierSurvivesTightBudget(t *testing.T) {
	builder := NewContextBuilder(tokenizer.Heuristic{})

	memories := []models.Memory{{Content: "remember one", Importance: 9}}

	entries := builder.Build(recentTurns(8, 7), memories, "hi", 20, ContextOptions{
		Policy:          PolicySmart,
		MaxRecent:       10,
		IncludeMemories: true,
	})

	// Over the memory and older-turn gates, so only the fixed tier and the
	// user message survive.
	require.Len(t, entries, 6)
	for _, entry := range entries {
		assert.NotEqual(t, "system", entry.Role)
	}
	assert.Equal(t, "hi", entries[5].Content)
}

func TestBuildSmartFixedTierOutranksBudget(t *testing.T) {
	est := tokenizer.Heuristic{}
	builder := NewContextBuilder(est)

	// Five 3-token turns plus the user turn total 16 against a budget of 10:
	// the fixed tier is kept whole anyway, and nothing else is admitted.
	entries := builder.Build(recentTurns(8, 7), nil, "hi", 10, ContextOptions{
		Policy:    PolicySmart,
		MaxRecent: 10,
	})

	require.Len(t, entries, 6)
	assert.Greater(t, totalTokens(est, entries), 10)
	assert.Equal(t, "hi", entries[5].Content)
}

func TestBuildSmartIgnoresLowImportanceMemories(t *testing.T) {
	builder := NewContextBuilder(tokenizer.Heuristic{})

	memories := []models.Memory{
		{Content: "minor detail", Importance: 6},
		{Content: "another minor", Importance: 5},
	}

	entries := builder.Build(recentTurns(3, 7), memories, "hi", 1000, ContextOptions{
		Policy:          PolicySmart,
		MaxRecent:       10,
		IncludeMemories: true,
	})

	for _, entry := range entries {
		assert.NotEqual(t, "system", entry.Role)
	}
}

func TestBuildSmartRespectsMaxRecent(t *testing.T) {
	builder := NewContextBuilder(tokenizer.Heuristic{})

	entries := builder.Build(recentTurns(10, 7), nil, "hi", 10000, ContextOptions{
		Policy:    PolicySmart,
		MaxRecent: 6,
	})

	// Five fixed-tier turns, one older turn, user message.
	require.Len(t, entries, 7)
}

func TestBuildEmptyRoom(t *testing.T) {
	builder := NewContextBuilder(tokenizer.Heuristic{})

	for _, policy := range []string{PolicySimple, PolicySmart} {
		entries := builder.Build(nil, nil, "first words", 100, ContextOptions{
			Policy:    policy,
			MaxRecent: 10,
		})
		require.Len(t, entries, 1, "policy %s", policy)
		assert.Equal(t, models.RoleUser, entries[0].Role)
		assert.Equal(t, "first words", entries[0].Content)
	}
}
