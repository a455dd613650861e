package history

import (
	"context"
	"sort"
	"sync"

	"github.com/thenetcircle/dino-sub002/domain/chat"
)

// MemoryStore is the in-process message log, used when storage type is
// "mock" and in unit tests. Rows are shared between the indexes so an update
// through one index is visible through all of them, mirroring the view
// layout of the column-store implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	byTarget map[string][]*chat.Message
	byID     map[string][]*chat.Message
	bySender map[string][]*chat.Message
	acks     map[string]map[string]chat.Ack // receiver -> message id -> ack
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byTarget: make(map[string][]*chat.Message),
		byID:     make(map[string][]*chat.Message),
		bySender: make(map[string][]*chat.Message),
		acks:     make(map[string]map[string]chat.Ack),
	}
}

func (s *MemoryStore) Init(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) StoreMessage(_ context.Context, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := msg
	s.byTarget[msg.TargetID] = append(s.byTarget[msg.TargetID], &row)
	s.byID[msg.ID] = append(s.byID[msg.ID], &row)
	s.bySender[msg.FromUserID] = append(s.bySender[msg.FromUserID], &row)
	return nil
}

func (s *MemoryStore) GetMessage(_ context.Context, messageID string) (chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.byID[messageID]
	if len(rows) == 0 {
		return chat.Message{}, ErrNoSuchMessage
	}
	return *rows[0], nil
}

func (s *MemoryStore) Messages(_ context.Context, targetID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := copyRows(s.byTarget[targetID], func(*chat.Message) bool { return true })
	sort.Slice(out, func(i, j int) bool {
		if out[i].FromUserID != out[j].FromUserID {
			return out[i].FromUserID < out[j].FromUserID
		}
		if out[i].Published != out[j].Published {
			return out[i].Published < out[j].Published
		}
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

func (s *MemoryStore) HistoryLatest(_ context.Context, targetID string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := copyRows(s.byTarget[targetID], func(m *chat.Message) bool { return !m.Deleted })
	sortTimeDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) HistorySince(_ context.Context, targetID string, since int64) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := copyRows(s.byTarget[targetID], func(m *chat.Message) bool { return m.Timestamp >= since })
	sortTimeDesc(out)
	return out, nil
}

func (s *MemoryStore) HistoryBetween(_ context.Context, targetID string, from, to int64) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := copyRows(s.byTarget[targetID], func(m *chat.Message) bool {
		return m.Timestamp >= from && m.Timestamp <= to
	})
	sortTimeDesc(out)
	return out, nil
}

func (s *MemoryStore) MessagesBySender(_ context.Context, senderID, targetID string, from, to int64) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := copyRows(s.bySender[senderID], func(m *chat.Message) bool {
		if targetID != "" && m.TargetID != targetID {
			return false
		}
		if from != 0 && m.Timestamp < from {
			return false
		}
		if to != 0 && m.Timestamp > to {
			return false
		}
		return true
	})
	sortTimeDesc(out)
	return out, nil
}

func (s *MemoryStore) DeleteMessage(_ context.Context, messageID string, clearBody bool) error {
	return s.markDeleted(messageID, true, clearBody)
}

func (s *MemoryStore) UndeleteMessage(_ context.Context, messageID string) error {
	return s.markDeleted(messageID, false, false)
}

func (s *MemoryStore) markDeleted(messageID string, deleted, clearBody bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.byID[messageID]
	if len(rows) == 0 {
		return ErrNoSuchMessage
	}
	for _, row := range rows {
		row.Deleted = deleted
		if clearBody {
			row.Body = ""
		}
	}
	return nil
}

func (s *MemoryStore) AddAcks(_ context.Context, targetID, receiverID string, messageIDs []string, status int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acks[receiverID] == nil {
		s.acks[receiverID] = make(map[string]chat.Ack)
	}
	for _, messageID := range messageIDs {
		s.acks[receiverID][messageID] = chat.Ack{
			ReceiverID: receiverID,
			MessageID:  messageID,
			Status:     status,
			TargetID:   targetID,
		}
	}
	return nil
}

func (s *MemoryStore) UpdateAcks(_ context.Context, receiverID string, messageIDs []string, status int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, messageID := range messageIDs {
		ack, ok := s.acks[receiverID][messageID]
		if !ok || ack.Status >= status {
			continue
		}
		ack.Status = status
		s.acks[receiverID][messageID] = ack
	}
	return nil
}

func (s *MemoryStore) AcksFor(_ context.Context, receiverID string, messageIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	if len(messageIDs) == 0 {
		for messageID, ack := range s.acks[receiverID] {
			out[messageID] = ack.Status
		}
		return out, nil
	}
	for _, messageID := range messageIDs {
		if ack, ok := s.acks[receiverID][messageID]; ok {
			out[messageID] = ack.Status
		}
	}
	return out, nil
}

func (s *MemoryStore) AcksForStatus(_ context.Context, receiverID string, status int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for messageID, ack := range s.acks[receiverID] {
		if ack.Status == status {
			out = append(out, messageID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func copyRows(rows []*chat.Message, keep func(*chat.Message) bool) []chat.Message {
	out := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		if keep(row) {
			out = append(out, *row)
		}
	}
	return out
}

func sortTimeDesc(rows []chat.Message) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Timestamp != rows[j].Timestamp {
			return rows[i].Timestamp > rows[j].Timestamp
		}
		return rows[i].ID > rows[j].ID
	})
}

var _ Store = (*MemoryStore)(nil)
