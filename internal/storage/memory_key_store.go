package storage

import (
	"context"
	"sync"
)

// InMemoryKeyStore provides thread-safe in-memory storage for API keys.
// Used for development and tests; keys are lost on restart.
type InMemoryKeyStore struct {
	keys         map[string]*APIKey   // by key string
	keysByID     map[string]*APIKey   // by key ID
	keysByClient map[string][]*APIKey // by client ID
	mutex        sync.RWMutex
}

// NewInMemoryKeyStore creates a new thread-safe in-memory key store.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{
		keys:         make(map[string]*APIKey),
		keysByID:     make(map[string]*APIKey),
		keysByClient: make(map[string][]*APIKey),
	}
}

// FindByKey retrieves an API key by its key value.
func (s *InMemoryKeyStore) FindByKey(_ context.Context, key string) (*APIKey, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	apiKey, exists := s.keys[key]
	if !exists {
		return nil, false
	}

	keyCopy := *apiKey

	return &keyCopy, true
}

// Add stores a new API key.
func (s *InMemoryKeyStore) Add(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.keysByID[apiKey.ID]; exists {
		return ErrKeyAlreadyExists
	}

	if _, exists := s.keys[apiKey.Key]; exists {
		return ErrKeyAlreadyExists
	}

	keyCopy := *apiKey
	s.index(&keyCopy)

	return nil
}

// Update modifies an existing API key.
func (s *InMemoryKeyStore) Update(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, exists := s.keysByID[apiKey.ID]
	if !exists {
		return ErrKeyNotFound
	}

	s.unindex(existing)

	keyCopy := *apiKey
	s.index(&keyCopy)

	return nil
}

// Delete removes an API key.
func (s *InMemoryKeyStore) Delete(_ context.Context, keyID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, exists := s.keysByID[keyID]
	if !exists {
		return ErrKeyNotFound
	}

	s.unindex(existing)

	return nil
}

// ListByClient returns all API keys for a client.
func (s *InMemoryKeyStore) ListByClient(_ context.Context, clientID string) ([]*APIKey, error) {
	if clientID == "" {
		return nil, ErrClientIDEmpty
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys := s.keysByClient[clientID]
	result := make([]*APIKey, len(keys))

	for i, key := range keys {
		keyCopy := *key
		result[i] = &keyCopy
	}

	return result, nil
}

// index adds apiKey to every map. Caller must hold write lock.
func (s *InMemoryKeyStore) index(apiKey *APIKey) {
	s.keys[apiKey.Key] = apiKey
	s.keysByID[apiKey.ID] = apiKey
	s.keysByClient[apiKey.ClientID] = append(s.keysByClient[apiKey.ClientID], apiKey)
}

// unindex removes apiKey from every map. Caller must hold write lock.
func (s *InMemoryKeyStore) unindex(apiKey *APIKey) {
	delete(s.keys, apiKey.Key)
	delete(s.keysByID, apiKey.ID)

	keys := s.keysByClient[apiKey.ClientID]
	for i, key := range keys {
		if key.ID == apiKey.ID {
			s.keysByClient[apiKey.ClientID] = append(keys[:i], keys[i+1:]...)

			break
		}
	}

	if len(s.keysByClient[apiKey.ClientID]) == 0 {
		delete(s.keysByClient, apiKey.ClientID)
	}
}
