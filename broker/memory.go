package broker

import (
	"context"
	"sync"
	"time"
)

var _ StateStore = &MemoryStateStore{}
var _ TokenStore = &MemoryTokenStore{}

// MemoryStateStore is an in-process StateStore for tests and local
// development. A mutex around the read-then-delete keeps Consume atomic.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]OAuthState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]OAuthState)}
}

func (s *MemoryStateStore) Put(_ context.Context, st OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.State] = st
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (*OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[state]
	if !ok {
		return nil, ErrInvalidState
	}
	delete(s.states, state)
	if st.Expired(time.Now()) {
		return nil, ErrInvalidState
	}
	return &st, nil
}

// MemoryTokenStore is an in-process TokenStore with the same upsert
// contract as the Mongo implementation.
type MemoryTokenStore struct {
	mu           sync.Mutex
	integrations map[string]Integration
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{integrations: make(map[string]Integration)}
}

func tokenKey(userID, provider string) string { return userID + "/" + provider }

func (s *MemoryTokenStore) Get(_ context.Context, userID, provider string) (*Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.integrations[tokenKey(userID, provider)]
	if !ok {
		return nil, ErrNotConnected
	}
	return &in, nil
}

func (s *MemoryTokenStore) Upsert(_ context.Context, in Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tokenKey(in.UserID, in.Provider)
	if prev, ok := s.integrations[key]; ok && in.RefreshToken == "" {
		in.RefreshToken = prev.RefreshToken
	}
	in.UpdatedAt = time.Now().UTC()
	s.integrations[key] = in
	return nil
}
