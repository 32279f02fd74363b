// Package redis provides a Redis transport.ConversationStore. Each session
// is one JSON document under <prefix><tenant>:<session_id>, with an
// optional idle TTL that is refreshed whenever the session is read or
// written.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nexmath/nexmath/pkg/api"
	"github.com/nexmath/nexmath/pkg/debug"
	"github.com/nexmath/nexmath/pkg/storage"
	"github.com/nexmath/nexmath/pkg/transport"
)

// DefaultKeyPrefix namespaces session keys.
const DefaultKeyPrefix = "nexmath:session:"

// Config holds Redis connection settings.
type Config struct {
	// URL is a redis:// or rediss:// URL, e.g. "redis://localhost:6379/0".
	URL string

	// KeyPrefix is prepended to every key (default: DefaultKeyPrefix).
	KeyPrefix string

	// TTL expires sessions that have been idle this long. Zero keeps
	// sessions forever.
	TTL time.Duration
}

// Store is a Redis-backed ConversationStore.
type Store struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ transport.ConversationStore = (*Store)(nil)

// New connects to the Redis server at cfg.URL and verifies it with PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client. Only KeyPrefix and TTL of cfg
// are used.
func NewWithClient(client goredis.UniversalClient, cfg Config) *Store {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: cfg.TTL}
}

func (s *Store) key(ctx context.Context, sessionID string) string {
	return s.prefix + storage.ScopedKey(ctx, sessionID)
}

// LoadConversation reads one session and refreshes its TTL.
func (s *Store) LoadConversation(ctx context.Context, sessionID string) (*api.Conversation, error) {
	key := s.key(ctx, sessionID)

	var cmd *goredis.StringCmd
	if s.ttl > 0 {
		cmd = s.client.GetEx(ctx, key, s.ttl)
	} else {
		cmd = s.client.Get(ctx, key)
	}
	data, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var conv api.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	conv.SessionID = sessionID
	return &conv, nil
}

// SaveConversation writes a session and resets its TTL.
func (s *Store) SaveConversation(ctx context.Context, conv *api.Conversation) error {
	doc := *conv
	if doc.LastAccessed.IsZero() {
		doc.LastAccessed = time.Now().UTC()
	}
	if doc.Messages == nil {
		doc.Messages = []api.Message{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	key := s.key(ctx, conv.SessionID)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	debug.Log("storage", "session saved", "key", key, "bytes", len(data))
	return nil
}

// DeleteConversation removes a session.
func (s *Store) DeleteConversation(ctx context.Context, sessionID string) error {
	n, err := s.client.Del(ctx, s.key(ctx, sessionID)).Result()
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck pings the server.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
