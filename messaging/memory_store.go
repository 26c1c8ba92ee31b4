package messaging

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"switchboard/models"
)

// MemoryStore keeps conversations in process memory behind one RWMutex.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	// routes indexes the non-archived conversation of each route key.
	routes map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.Conversation),
		routes:        make(map[string]string),
	}
}

func (s *MemoryStore) AppendInbound(_ context.Context, businessID, identity string, msg models.Message) (models.Message, models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := routeKey(businessID, identity)
	conv, ok := s.conversations[s.routes[key]]
	if !ok {
		conv = &models.Conversation{
			ID:               uuid.NewString(),
			BusinessID:       businessID,
			CustomerIdentity: identity,
			Channel:          msg.Channel,
			Status:           models.CONVERSATION_STATUS_ACTIVE,
			Messages:         []models.Message{},
			CreatedAt:        msg.Timestamp,
			UpdatedAt:        msg.Timestamp,
		}
		s.conversations[conv.ID] = conv
		s.routes[key] = conv.ID
	}

	stored := prepareAppend(conv.ID, msg, lastMessage(conv))
	conv.Messages = append(conv.Messages, stored)
	conv.Channel = stored.Channel
	conv.UpdatedAt = stored.Timestamp
	if conv.Status == models.CONVERSATION_STATUS_CLOSED {
		conv.Status = models.CONVERSATION_STATUS_ACTIVE
	}
	return stored.Clone(), conv.Clone(), nil
}

func (s *MemoryStore) AppendReply(_ context.Context, conversationID string, msg models.Message) (models.Message, models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.Message{}, models.Conversation{}, ErrNotFound
	}
	if conv.IsArchived() {
		return models.Message{}, models.Conversation{}, ErrArchived
	}
	if err := checkInReplyTo(*conv, msg); err != nil {
		return models.Message{}, models.Conversation{}, err
	}

	msg.Channel = conv.Channel
	stored := prepareAppend(conv.ID, msg, lastMessage(conv))
	conv.Messages = append(conv.Messages, stored)
	conv.UpdatedAt = stored.Timestamp
	return stored.Clone(), conv.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, ErrNotFound
	}
	return conv.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, businessID string) ([]models.Conversation, error) {
	s.mu.RLock()
	list := make([]models.Conversation, 0, len(s.routes))
	for _, id := range s.routes {
		conv := s.conversations[id]
		if conv.BusinessID == businessID {
			list = append(list, conv.Clone())
		}
	}
	s.mu.RUnlock()

	sortByActivity(list)
	return list, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return 0, ErrNotFound
	}
	changed := 0
	for i := range conv.Messages {
		m := &conv.Messages[i]
		if m.Direction == models.DIRECTION_INBOUND && m.Status == models.MESSAGE_STATUS_UNREAD {
			m.Status = models.MESSAGE_STATUS_READ
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, transition Transition) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, ErrNotFound
	}
	next, err := transition(conv.Status)
	if err != nil {
		return models.Conversation{}, err
	}
	conv.Status = next
	if next == models.CONVERSATION_STATUS_ARCHIVED {
		key := routeKey(conv.BusinessID, conv.CustomerIdentity)
		if s.routes[key] == conv.ID {
			delete(s.routes, key)
		}
	}
	return conv.Clone(), nil
}

func lastMessage(conv *models.Conversation) *models.Message {
	if len(conv.Messages) == 0 {
		return nil
	}
	return &conv.Messages[len(conv.Messages)-1]
}
