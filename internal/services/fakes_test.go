package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/fablechat/fable-backend/internal/apperr"
	"github.com/fablechat/fable-backend/internal/models"
	"github.com/fablechat/fable-backend/internal/providers"

	"github.com/google/uuid"
)

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: true}
}

type allowAuth struct{}

func (allowAuth) AuthorizeRoom(ctx context.Context, userID, roomID string) error { return nil }

// fakeTurnRepo is an in-memory TurnRepository. Mutations hold a mutex because
// the chat service touches the repo from its summarization goroutine.
type fakeTurnRepo struct {
	mu     sync.Mutex
	turns  []models.Turn
	nextID int64
}

func newFakeTurnRepo() *fakeTurnRepo {
	return &fakeTurnRepo{}
}

// seed inserts a turn verbatim, assigning id and sequence from insertion order.
func (r *fakeTurnRepo) seed(turn models.Turn) models.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	turn.ID = r.nextID
	turn.SequenceNumber = r.nextID
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Unix(1700000000+r.nextID, 0)
	}
	r.turns = append(r.turns, turn)
	return turn
}

func (r *fakeTurnRepo) Create(ctx context.Context, turn models.Turn) (models.Turn, error) {
	return r.seed(turn), nil
}

func (r *fakeTurnRepo) Get(ctx context.Context, roomID string, id int64) (*models.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, turn := range r.turns {
		if turn.RoomID == roomID && turn.ID == id && !turn.IsDeleted {
			t := turn
			return &t, nil
		}
	}
	return nil, apperr.NotFoundf("turn %d", id)
}

func (r *fakeTurnRepo) ListRoom(ctx context.Context, roomID string) ([]models.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Turn
	for _, turn := range r.turns {
		if turn.RoomID == roomID && !turn.IsDeleted {
			out = append(out, turn)
		}
	}
	return out, nil
}

func (r *fakeTurnRepo) ListActive(ctx context.Context, roomID string) ([]models.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Turn
	for _, turn := range r.turns {
		if turn.RoomID == roomID && turn.IsActive && !turn.IsDeleted {
			out = append(out, turn)
		}
	}
	return out, nil
}

func (r *fakeTurnRepo) ListRecentActive(ctx context.Context, roomID string, limit int) ([]models.Turn, error) {
	active, _ := r.ListActive(ctx, roomID)
	var out []models.Turn
	for i := len(active) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, active[i])
	}
	return out, nil
}

func (r *fakeTurnRepo) CountAfter(ctx context.Context, roomID string, afterID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, turn := range r.turns {
		if turn.RoomID == roomID && turn.ID > afterID && !turn.IsDeleted {
			count++
		}
	}
	return count, nil
}

func (r *fakeTurnRepo) ListAfter(ctx context.Context, roomID string, fromID int64, limit int) ([]models.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Turn
	for _, turn := range r.turns {
		if turn.RoomID == roomID && turn.ID >= fromID && !turn.IsDeleted {
			out = append(out, turn)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeTurnRepo) ReplaceActivePath(ctx context.Context, roomID string, path []int64, stampTag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inPath := make(map[int64]bool, len(path))
	for _, id := range path {
		inPath[id] = true
	}
	for i := range r.turns {
		if r.turns[i].RoomID != roomID {
			continue
		}
		r.turns[i].IsActive = inPath[r.turns[i].ID]
		if inPath[r.turns[i].ID] && stampTag != "" {
			r.turns[i].BranchTag.String = stampTag
			r.turns[i].BranchTag.Valid = true
		}
	}
	return nil
}

func (r *fakeTurnRepo) SoftDeleteBranch(ctx context.Context, roomID, tag string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for i := range r.turns {
		if r.turns[i].RoomID == roomID && !r.turns[i].IsDeleted && r.turns[i].Branch() == tag {
			r.turns[i].IsDeleted = true
			r.turns[i].IsActive = false
			deleted++
		}
	}
	return deleted, nil
}

// fakeMemoryRepo is an in-memory MemoryRepository ranking by importance then
// recency, matching the store's ordering.
type fakeMemoryRepo struct {
	mu       sync.Mutex
	memories []models.Memory
}

func newFakeMemoryRepo() *fakeMemoryRepo {
	return &fakeMemoryRepo{}
}

func (r *fakeMemoryRepo) Create(ctx context.Context, memory models.Memory) (models.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	memory.ID = uuid.New().String()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = time.Unix(1700000000+int64(len(r.memories)), 0)
	}
	r.memories = append(r.memories, memory)
	return memory, nil
}

func (r *fakeMemoryRepo) Get(ctx context.Context, roomID, id string) (*models.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, memory := range r.memories {
		if memory.RoomID == roomID && memory.ID == id {
			m := memory
			return &m, nil
		}
	}
	return nil, apperr.NotFoundf("memory %s", id)
}

func (r *fakeMemoryRepo) List(ctx context.Context, roomID string) ([]models.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Memory
	for _, memory := range r.memories {
		if memory.RoomID == roomID {
			out = append(out, memory)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *fakeMemoryRepo) ListTop(ctx context.Context, roomID string, limit int) ([]models.Memory, error) {
	all, _ := r.List(ctx, roomID)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeMemoryRepo) ListImportant(ctx context.Context, roomID string, minImportance, limit int) ([]models.Memory, error) {
	all, _ := r.List(ctx, roomID)
	var out []models.Memory
	for _, memory := range all {
		if memory.Importance >= minImportance {
			out = append(out, memory)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeMemoryRepo) LastSummary(ctx context.Context, roomID string) (*models.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *models.Memory
	for i := range r.memories {
		memory := r.memories[i]
		if memory.RoomID != roomID || memory.Kind != models.MemorySummary ||
			memory.CreatedBy != models.CreatedByAuto || !memory.RangeEnd.Valid {
			continue
		}
		if last == nil || memory.RangeEnd.Int64 > last.RangeEnd.Int64 {
			m := memory
			last = &m
		}
	}
	return last, nil
}

func (r *fakeMemoryRepo) Update(ctx context.Context, memory models.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.memories {
		if r.memories[i].ID == memory.ID {
			r.memories[i] = memory
			return nil
		}
	}
	return apperr.NotFoundf("memory %s", memory.ID)
}

func (r *fakeMemoryRepo) Delete(ctx context.Context, roomID, id string) error {
	return r.DeleteMany(ctx, roomID, []string{id})
}

func (r *fakeMemoryRepo) DeleteMany(ctx context.Context, roomID string, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var kept []models.Memory
	for _, memory := range r.memories {
		if memory.RoomID == roomID && drop[memory.ID] {
			continue
		}
		kept = append(kept, memory)
	}
	r.memories = kept
	return nil
}

// fakeRoomRepo holds rooms keyed by id.
type fakeRoomRepo struct {
	mu    sync.Mutex
	rooms map[string]*models.Room
}

func newFakeRoomRepo(rooms ...*models.Room) *fakeRoomRepo {
	r := &fakeRoomRepo{rooms: make(map[string]*models.Room)}
	for _, room := range rooms {
		r.rooms[room.ID] = room
	}
	return r
}

func (r *fakeRoomRepo) Create(ctx context.Context, room models.Room) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	r.rooms[room.ID] = &room
	return room.ID, nil
}

func (r *fakeRoomRepo) Get(ctx context.Context, id string) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, apperr.NotFoundf("room %s", id)
	}
	copied := *room
	return &copied, nil
}

func (r *fakeRoomRepo) ListByUser(ctx context.Context, userID string) ([]*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Room
	for _, room := range r.rooms {
		if room.UserID == userID {
			copied := *room
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeRoomRepo) UpdatePreview(ctx context.Context, id, lastMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return apperr.NotFoundf("room %s", id)
	}
	room.LastMessage = lastMessage
	return nil
}

func (r *fakeRoomRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, id)
	return nil
}

// fakeProvider returns a canned reply and records the last request it saw.
type fakeProvider struct {
	mu      sync.Mutex
	reply   string
	err     error
	lastReq providers.CompletionRequest
	calls   int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastReq = req
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &providers.CompletionResponse{
		ID:      "cmpl-1",
		Content: p.reply,
		Usage:   providers.Usage{TotalTokens: 42},
	}, nil
}

func (p *fakeProvider) StreamComplete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
	p.mu.Lock()
	p.lastReq = req
	p.calls++
	err := p.err
	reply := p.reply
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	ch := make(chan providers.StreamChunk, 2)
	ch <- providers.StreamChunk{Delta: reply}
	ch <- providers.StreamChunk{FinishReason: "stop"}
	close(ch)
	return ch, nil
}

func (p *fakeProvider) lastRequest() providers.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReq
}
