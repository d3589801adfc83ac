package session

import (
	"context"
	"sync"
)

// MemoryRepository keeps sessions in process; last write wins
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]Session)}
}

func (r *MemoryRepository) Load(_ context.Context, senderID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[senderID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) Save(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.SenderID] = *s
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, senderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, senderID)
	return nil
}

// Len is the number of stored sessions, expired or not
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
