package storage

import (
	"errors"
	"sync"
)

// ErrNotFound is returned when a key has never been set
var ErrNotFound = errors.New("key not found")

// Store is a string key-value store, shaped like browser session and
// local storage
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// MemoryStore is a session-scoped Store. It lives as long as the tab it
// belongs to.
type MemoryStore struct {
	values sync.Map // key -> string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the value for key or ErrNotFound
func (s *MemoryStore) Get(key string) (string, error) {
	value, ok := s.values.Load(key)
	if !ok {
		return "", ErrNotFound
	}
	return value.(string), nil
}

// Set stores value under key
func (s *MemoryStore) Set(key, value string) error {
	s.values.Store(key, value)
	return nil
}

// Keys returns the stored keys in no particular order
func (s *MemoryStore) Keys() []string {
	var keys []string
	s.values.Range(func(key, _ interface{}) bool {
		keys = append(keys, key.(string))
		return true
	})
	return keys
}
