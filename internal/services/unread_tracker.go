package services

import (
	"sync"
)

// UnreadCounts tracks per-conversation unread counters. The total is always
// recomputed from the per-conversation values, never tracked separately.
// Increment guard conditions (own messages, open conversation) are enforced
// by the sync engine, not here.
type UnreadCounts struct {
	mu     sync.RWMutex
	counts map[string]int
}

func NewUnreadCounts() *UnreadCounts {
	return &UnreadCounts{
		counts: make(map[string]int),
	}
}

func (u *UnreadCounts) Increment(conversationID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.counts[conversationID]++
}

func (u *UnreadCounts) Reset(conversationID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.counts, conversationID)
}

func (u *UnreadCounts) Count(conversationID string) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.counts[conversationID]
}

func (u *UnreadCounts) TotalUnread() int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	total := 0
	for _, n := range u.counts {
		total += n
	}
	return total
}

func (u *UnreadCounts) Snapshot() map[string]int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	out := make(map[string]int, len(u.counts))
	for id, n := range u.counts {
		out[id] = n
	}
	return out
}
