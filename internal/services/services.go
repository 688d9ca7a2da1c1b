package services

import (
	"github.com/fablechat/fable-backend/internal/config"
	"github.com/fablechat/fable-backend/internal/providers"
	"github.com/fablechat/fable-backend/internal/repository"
	"github.com/fablechat/fable-backend/internal/tokenizer"
)

// Services holds all service instances
type Services struct {
	Rooms  *RoomService
	Chat   *ChatService
	Branch *BranchService
	Memory *MemoryService
}

// NewServices wires the services over the given repositories. The room lock
// set is shared between the chat and branch services so a send cannot
// interleave with a fork or switch on the same room.
func NewServices(
	roomRepo repository.RoomRepository,
	turnRepo repository.TurnRepository,
	memoryRepo repository.MemoryRepository,
	provider providers.Provider,
	auth Authorizer,
	cfg *config.Config,
) *Services {
	locks := newRoomLocks()
	est := tokenizer.Heuristic{}

	memorySvc := NewMemoryService(turnRepo, memoryRepo, provider, auth, cfg.Memory)
	chatSvc := NewChatService(roomRepo, turnRepo, memoryRepo, provider, memorySvc, est, auth, locks, cfg.Chat)
	branchSvc := NewBranchService(turnRepo, auth, locks)
	roomSvc := NewRoomService(roomRepo, auth)

	return &Services{
		Rooms:  roomSvc,
		Chat:   chatSvc,
		Branch: branchSvc,
		Memory: memorySvc,
	}
}
