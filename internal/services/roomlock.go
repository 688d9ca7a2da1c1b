package services

import "sync"

// roomLocks serializes branch-mutating operations per room. The store's
// transactions guard the data; this keeps the read-decide-write sequence of a
// fork or switch from interleaving with another one in the same process.
type roomLocks struct {
	locks sync.Map // roomID -> *sync.Mutex
}

func newRoomLocks() *roomLocks {
	return &roomLocks{}
}

// Lock acquires the room's mutex and returns its unlock func.
func (l *roomLocks) Lock(roomID string) func() {
	mu, _ := l.locks.LoadOrStore(roomID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
