// Package cache implements the task-output memoization layer: a keyed
// mapping from (task description, agent name) to a previously-observed
// successful output, with global TTL-based eviction.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/taskgraphd/taskgraph/core"
)

// Cache is the interface the executor consults before dispatching a node
// and writes to after a successful agent call. Get/Set must be safe for
// concurrent callers; a stale-read race (two misses, two writes) is
// acceptable — the cache provides no single-flight coalescing.
type Cache interface {
	Get(key string) (value string, ok bool)
	Set(key string, value string)
}

// Key returns the deterministic cache key for a (task, agentName) pair.
// Equal pairs always produce equal keys regardless of map iteration order
// elsewhere in the pipeline.
func Key(task, agentName string) string {
	h := sha256.New()
	h.Write([]byte(task))
	h.Write([]byte{0})
	h.Write([]byte(agentName))
	return hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	value     string
	insertedAt time.Time
}

// MemoryStore is a process-local Cache with lazy, read-time TTL expiry:
// no background sweep, a stale entry is simply treated as absent (and
// removed) the next time it is read.
type MemoryStore struct {
	mu     sync.RWMutex
	store  map[string]entry
	ttl    time.Duration
	logger core.Logger
}

// NewMemoryStore creates an in-memory cache with the given TTL. A zero TTL
// means entries never expire.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		store: make(map[string]entry),
		ttl:   ttl,
	}
}

// SetLogger attaches a logger used for debug-level cache trace output.
func (m *MemoryStore) SetLogger(logger core.Logger) {
	m.logger = logger
}

// Get returns the value stored under key if present and not expired.
// An expired entry is removed before returning the miss.
func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	e, exists := m.store[key]
	m.mu.RUnlock()

	if !exists {
		return "", false
	}

	if m.ttl > 0 && time.Since(e.insertedAt) >= m.ttl {
		m.mu.Lock()
		delete(m.store, key)
		m.mu.Unlock()
		if m.logger != nil {
			m.logger.Debug("cache entry expired", map[string]interface{}{"key": key})
		}
		return "", false
	}

	if m.logger != nil {
		m.logger.Debug("cache hit", map[string]interface{}{"key": key})
	}
	return e.value, true
}

// Set inserts or overwrites the value stored under key.
func (m *MemoryStore) Set(key string, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = entry{value: value, insertedAt: time.Now()}
}

// Len reports the number of entries currently held, expired or not — used
// by tests that want to assert on cache population without forcing a read.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}
