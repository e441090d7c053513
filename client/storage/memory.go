package storage

import "sync"

// MemoryStore keeps values in process memory. Touch simulates a write by
// another process.
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string][]byte
	changes chan string
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    make(map[string][]byte),
		changes: make(chan string, 64),
	}
}

func (m *MemoryStore) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.data, key)
	return nil
}

// Touch stores value and reports key on Changes.
func (m *MemoryStore) Touch(key string, value []byte) error {
	if err := m.Set(key, value); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.closed {
		select {
		case m.changes <- key:
		default:
		}
	}
	return nil
}

func (m *MemoryStore) Changes() <-chan string {
	return m.changes
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.changes)
	}
	return nil
}
