package storage

import "sync"

// Keys under which the agent persists its state. The queue snapshot and
// user-scoped keys live in the durable store; the session key lives in a
// session-scoped store so a fresh session scope forces regeneration.
const (
	KeyUserID         = "trackwire_user_id"
	KeySessionID      = "trackwire_session_id"
	KeyQueueSnapshot  = "trackwire_queue"
	KeyUserAttributes = "trackwire_user_attrs"
)

// Store is the minimal key-value persistence contract the engine needs.
// Implementations must be safe for concurrent use. Get returns ok=false
// when the key is absent.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

// Memory is a map-backed Store. It backs the session scope (one store
// per engine instance means one session per process) and tests.
type Memory struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (s *Memory) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *Memory) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *Memory) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *Memory) Close() error { return nil }
