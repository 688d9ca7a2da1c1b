package services

import (
	"strings"

	"github.com/fablechat/fable-backend/internal/models"
	"github.com/fablechat/fable-backend/internal/tokenizer"
)

// Context assembly policies.
const (
	PolicySimple = "simple"
	PolicySmart  = "smart"
)

// Budget fractions shared by both policies. The estimator is pluggable; these
// ratios are not.
const (
	simpleMemoryFraction = 0.30
	simpleTurnsFraction  = 0.80
	smartMemoryGate      = 0.50
	smartMemoryCeiling   = 0.60
	smartOlderGate       = 0.70
	smartOlderCeiling    = 0.80
	smartFixedTier       = 5
)

// ContextOptions controls one assembly run.
type ContextOptions struct {
	Policy          string
	MaxRecent       int
	IncludeMemories bool
}

// ContextBuilder assembles the ordered entry list a generation call sees.
// Build is a pure function of its inputs: it takes the room's turns and
// memories as snapshots and touches no store, so the policies can be tested
// on fabricated state.
type ContextBuilder struct {
	est tokenizer.Estimator
}

// NewContextBuilder creates a context builder over a token estimator
func NewContextBuilder(est tokenizer.Estimator) *ContextBuilder {
	return &ContextBuilder{est: est}
}

// Build assembles entries for a generation call. recentFirst holds the active
// path newest-first; memories is ranked by (importance desc, created_at
// desc). The new user turn is appended last and its tokens are reserved
// against the budget before any tier is filled.
//
// The tiered policy keeps its fixed recent tier even when those turns plus
// the user turn together exceed the budget: immediate continuity outranks the
// budget, so overflow is possible through the fixed tier alone. Everything
// admitted beyond it stays gated under the budget fractions.
func (b *ContextBuilder) Build(recentFirst []models.Turn, memories []models.Memory, userContent string, budget int, opts ContextOptions) []models.ContextEntry {
	if opts.MaxRecent <= 0 {
		opts.MaxRecent = 10
	}

	if opts.Policy == PolicySimple {
		return b.buildSimple(recentFirst, memories, userContent, budget, opts)
	}
	return b.buildSmart(recentFirst, memories, userContent, budget, opts)
}

// buildSimple is the budget-proportional policy: one memory block if it fits
// in 30% of the budget, then the largest recent window whose turns stay
// within 80% of what remains, shrinking the window two turns at a time.
func (b *ContextBuilder) buildSimple(recentFirst []models.Turn, memories []models.Memory, userContent string, budget int, opts ContextOptions) []models.ContextEntry {
	var entries []models.ContextEntry

	remaining := budget - b.est.Estimate(userContent)
	if remaining < 0 {
		remaining = 0
	}

	if opts.IncludeMemories && len(memories) > 0 {
		top := memories
		if len(top) > 3 {
			top = top[:3]
		}
		block := renderMemoryBlock(top)
		memTokens := b.est.Estimate(block)
		if float64(memTokens) < simpleMemoryFraction*float64(budget) {
			entries = append(entries, models.ContextEntry{Role: "system", Content: block})
			remaining -= memTokens
			if remaining < 0 {
				remaining = 0
			}
		}
	}

	window := opts.MaxRecent
	if window > len(recentFirst) {
		window = len(recentFirst)
	}
	for window > 0 {
		total := 0
		for _, turn := range recentFirst[:window] {
			total += b.est.Estimate(turn.Content)
		}
		if float64(total) <= simpleTurnsFraction*float64(remaining) {
			break
		}
		window -= 2
	}
	if window < 0 {
		window = 0
	}

	for i := window - 1; i >= 0; i-- {
		entries = append(entries, turnEntry(recentFirst[i]))
	}

	return append(entries, models.ContextEntry{Role: models.RoleUser, Content: userContent})
}

// buildSmart is the tiered policy. Tier 1 is the most recent min(5,
// maxRecent) turns and is never dropped; memories and older turns are pulled
// in only while the running total stays under their gate fractions.
func (b *ContextBuilder) buildSmart(recentFirst []models.Turn, memories []models.Memory, userContent string, budget int, opts ContextOptions) []models.ContextEntry {
	budgetF := float64(budget)
	used := b.est.Estimate(userContent)

	tierN := smartFixedTier
	if opts.MaxRecent < tierN {
		tierN = opts.MaxRecent
	}
	if tierN > len(recentFirst) {
		tierN = len(recentFirst)
	}

	tier1 := make([]models.ContextEntry, 0, tierN)
	for i := tierN - 1; i >= 0; i-- {
		tier1 = append(tier1, turnEntry(recentFirst[i]))
		used += b.est.Estimate(recentFirst[i].Content)
	}

	var head []models.ContextEntry
	if opts.IncludeMemories && float64(used) < smartMemoryGate*budgetF {
		var important []models.Memory
		for _, memory := range memories {
			if memory.Importance >= 7 {
				important = append(important, memory)
				if len(important) == 2 {
					break
				}
			}
		}
		if len(important) > 0 {
			block := renderMemoryBlock(important)
			memTokens := b.est.Estimate(block)
			if float64(used+memTokens) <= smartMemoryCeiling*budgetF {
				head = append(head, models.ContextEntry{Role: "system", Content: block})
				used += memTokens
			}
		}
	}

	// Older turns slot between the memory block and tier 1, each new
	// (older) candidate ahead of the previously admitted ones so the final
	// order stays chronological.
	var older []models.ContextEntry
	if opts.MaxRecent > tierN && float64(used) < smartOlderGate*budgetF {
		limit := opts.MaxRecent
		if limit > len(recentFirst) {
			limit = len(recentFirst)
		}
		for i := tierN; i < limit; i++ {
			tok := b.est.Estimate(recentFirst[i].Content)
			if float64(used+tok) > smartOlderCeiling*budgetF {
				break
			}
			older = append([]models.ContextEntry{turnEntry(recentFirst[i])}, older...)
			used += tok
		}
	}

	entries := make([]models.ContextEntry, 0, len(head)+len(older)+len(tier1)+1)
	entries = append(entries, head...)
	entries = append(entries, older...)
	entries = append(entries, tier1...)
	return append(entries, models.ContextEntry{Role: models.RoleUser, Content: userContent})
}

func turnEntry(turn models.Turn) models.ContextEntry {
	return models.ContextEntry{Role: turn.Role, Content: turn.Content}
}

func renderMemoryBlock(memories []models.Memory) string {
	var sb strings.Builder
	sb.WriteString("Relevant memories from earlier in this conversation:\n")
	for _, memory := range memories {
		sb.WriteString("- ")
		sb.WriteString(memory.Content)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
