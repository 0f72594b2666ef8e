// Package fakes provides in-memory test doubles for the service's
// persistence dependencies. These are used in the local run mode and in
// handler tests.
package fakes

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

// --- UserStore ---

type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*chat.User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[string]*chat.User)}
}

func (s *InMemoryUserStore) Create(_ context.Context, user *chat.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return chat.ErrEmailTaken
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *InMemoryUserStore) GetByID(_ context.Context, id string) (*chat.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *InMemoryUserStore) GetByEmail(_ context.Context, email string) (*chat.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range s.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, chat.ErrNotFound
}

func (s *InMemoryUserStore) Update(_ context.Context, user *chat.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return chat.ErrNotFound
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *InMemoryUserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return chat.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *InMemoryUserStore) List(_ context.Context, excludeID string) ([]*chat.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*chat.User, 0, len(s.users))
	for _, user := range s.users {
		if user.ID == excludeID {
			continue
		}
		cp := *user
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- MessageStore ---

type InMemoryMessageStore struct {
	mu       sync.RWMutex
	messages []*chat.Message

	// SaveErr, when set, is returned by Save to simulate a persistence
	// failure.
	SaveErr error
}

func NewInMemoryMessageStore() *InMemoryMessageStore {
	return &InMemoryMessageStore{}
}

func (s *InMemoryMessageStore) Save(_ context.Context, msg *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	cp := *msg
	s.messages = append(s.messages, &cp)
	return nil
}

func (s *InMemoryMessageStore) Conversation(_ context.Context, userID, otherID string) ([]*chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*chat.Message
	for _, msg := range s.messages {
		if between(msg, userID, otherID) {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryMessageStore) MarkConversationRead(_ context.Context, userID, otherID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if between(msg, userID, otherID) && msg.ReceiverID == userID {
			msg.Read = true
		}
	}
	return nil
}

func (s *InMemoryMessageStore) MarkRead(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.ID == messageID {
			msg.Read = true
			return nil
		}
	}
	return chat.ErrNotFound
}

func (s *InMemoryMessageStore) UnreadCounts(_ context.Context, receiverID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, msg := range s.messages {
		if msg.ReceiverID == receiverID && !msg.Read {
			counts[msg.SenderID]++
		}
	}
	return counts, nil
}

func between(msg *chat.Message, a, b string) bool {
	return (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a)
}
