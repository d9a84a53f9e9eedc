package orchestrator

import "sync"

// UserLocks serializes charge operations per user. Charges for different
// users proceed concurrently; two charges for the same user never overlap,
// so a balance check cannot be invalidated by a sibling charge in flight.
type UserLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[string]*userLock)}
}

// Lock acquires the lock for userId, blocking while another holder has it.
func (l *UserLocks) Lock(userId string) {
	l.mu.Lock()
	entry, ok := l.locks[userId]
	if !ok {
		entry = &userLock{}
		l.locks[userId] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the lock for userId. Entries are removed once the last
// waiter is gone, keeping the map bounded by concurrent users rather than
// total users.
func (l *UserLocks) Unlock(userId string) {
	l.mu.Lock()
	entry := l.locks[userId]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, userId)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
