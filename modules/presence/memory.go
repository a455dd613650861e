package presence

import (
	"context"
	"math/bits"
	"sync"

	"github.com/thenetcircle/dino-sub002/domain/chat"
)

// MemoryStore is the in-process presence store, used when redis_host is
// "mock" and in unit tests. Semantics match RedisStore.
type MemoryStore struct {
	mu        sync.RWMutex
	bitmap    []uint64
	online    map[string]bool
	multicast map[string]bool
	status    map[string]chat.Status
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		online:    make(map[string]bool),
		multicast: make(map[string]bool),
		status:    make(map[string]chat.Status),
	}
}

func (s *MemoryStore) setBit(offset int64, value bool) {
	word := int(offset / 64)
	for len(s.bitmap) <= word {
		s.bitmap = append(s.bitmap, 0)
	}
	mask := uint64(1) << (offset % 64)
	if value {
		s.bitmap[word] |= mask
	} else {
		s.bitmap[word] &^= mask
	}
}

func (s *MemoryStore) SetOnline(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset, ok := bit(userID); ok {
		s.setBit(offset, true)
	}
	s.online[userID] = true
	s.multicast[userID] = true
	s.status[userID] = chat.StatusAvailable
	return nil
}

func (s *MemoryStore) SetInvisible(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset, ok := bit(userID); ok {
		s.setBit(offset, false)
	}
	delete(s.online, userID)
	s.multicast[userID] = true
	s.status[userID] = chat.StatusInvisible
	return nil
}

func (s *MemoryStore) SetOffline(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset, ok := bit(userID); ok {
		s.setBit(offset, false)
	}
	delete(s.online, userID)
	delete(s.multicast, userID)
	s.status[userID] = chat.StatusUnavailable
	return nil
}

func (s *MemoryStore) Status(_ context.Context, userID string) (chat.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if status, ok := s.status[userID]; ok {
		return status, nil
	}
	return chat.StatusUnavailable, nil
}

func (s *MemoryStore) OnlineCount(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, word := range s.bitmap {
		count += int64(bits.OnesCount64(word))
	}
	return count, nil
}

func (s *MemoryStore) InMulticast(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.multicast[userID], nil
}

func (s *MemoryStore) MulticastCount(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.multicast)), nil
}

var _ Store = (*MemoryStore)(nil)
