package chatbot

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrConversationNotFound is returned when a patient has no stored
// conversation.
var ErrConversationNotFound = errors.New("conversation not found")

// Store persists one conversation per patient.
type Store interface {
	// Find returns ErrConversationNotFound when no record exists.
	Find(ctx context.Context, patientID string) (*Conversation, error)
	Recent(ctx context.Context, patientID string, n int) ([]Message, error)
	// AppendPair writes both messages atomically, creating the record if
	// needed and setting LastActiveAt to the assistant message time.
	AppendPair(ctx context.Context, patientID string, user, assistant Message) error
	// Clear empties the conversation but keeps the record.
	Clear(ctx context.Context, patientID string) error
	DeleteConversation(ctx context.Context, patientID string) error
}

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*Conversation), now: time.Now}
}

func (s *MemoryStore) Find(_ context.Context, patientID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[patientID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	return &cp, nil
}

func (s *MemoryStore) Recent(_ context.Context, patientID string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[patientID]
	if !ok {
		return nil, nil
	}
	msgs := c.Messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]Message(nil), msgs...), nil
}

// upsert must be called with mu held.
func (s *MemoryStore) upsert(patientID string, at time.Time) *Conversation {
	c, ok := s.convs[patientID]
	if !ok {
		c = &Conversation{PatientID: patientID, CreatedAt: at}
		s.convs[patientID] = c
	}
	c.LastActiveAt = at
	c.UpdatedAt = at
	return c
}

func (s *MemoryStore) AppendPair(_ context.Context, patientID string, user, assistant Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.upsert(patientID, assistant.Timestamp)
	c.Messages = append(c.Messages, user, assistant)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, patientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.upsert(patientID, s.now().UTC())
	c.Messages = nil
	return nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, patientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, patientID)
	return nil
}
