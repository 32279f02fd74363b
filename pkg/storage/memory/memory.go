// Package memory provides an in-memory transport.ConversationStore for
// development and single-instance deployments. Sessions are lost when the
// process restarts. An optional LRU bound limits memory use.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/nexmath/nexmath/pkg/api"
	"github.com/nexmath/nexmath/pkg/storage"
	"github.com/nexmath/nexmath/pkg/transport"
)

type entry struct {
	key     string
	conv    *api.Conversation
	lruElem *list.Element
}

// Store is an in-memory ConversationStore with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
	now     func() time.Time
}

var _ transport.ConversationStore = (*Store)(nil)

// New creates a store. With maxSize > 0 the least recently used session is
// evicted once the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// LoadConversation returns a copy of the stored session and marks it as
// recently used.
func (s *Store) LoadConversation(ctx context.Context, sessionID string) (*api.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[storage.ScopedKey(ctx, sessionID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)
	return cloneConversation(e.conv), nil
}

// SaveConversation stores a copy of conv, replacing any previous version.
func (s *Store) SaveConversation(ctx context.Context, conv *api.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storage.ScopedKey(ctx, conv.SessionID)
	stored := cloneConversation(conv)
	if stored.LastAccessed.IsZero() {
		stored.LastAccessed = s.now()
	}

	if e, ok := s.entries[key]; ok {
		e.conv = stored
		s.lruList.MoveToFront(e.lruElem)
		return nil
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}
	e := &entry{key: key, conv: stored}
	e.lruElem = s.lruList.PushFront(e)
	s.entries[key] = e
	return nil
}

// DeleteConversation removes a session.
func (s *Store) DeleteConversation(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storage.ScopedKey(ctx, sessionID)
	e, ok := s.entries[key]
	if !ok {
		return storage.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, key)
	return nil
}

// Len returns the number of stored sessions across all tenants.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the least recently used entry. Must be called with
// s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	e := back.Value.(*entry)
	s.lruList.Remove(back)
	delete(s.entries, e.key)
}

// cloneConversation copies the message slice so callers can append to the
// result without touching the stored version. Parts are immutable once
// written and are shared.
func cloneConversation(c *api.Conversation) *api.Conversation {
	out := *c
	out.Messages = append([]api.Message(nil), c.Messages...)
	return &out
}
