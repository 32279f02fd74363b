// Package postgres provides a PostgreSQL transport.ConversationStore. It
// uses pgx/v5 connection pooling and keeps the message history of a session
// in one JSONB column.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexmath/nexmath/pkg/api"
	"github.com/nexmath/nexmath/pkg/storage"
	"github.com/nexmath/nexmath/pkg/transport"
)

// Store is a PostgreSQL-backed ConversationStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ transport.ConversationStore = (*Store)(nil)

// New connects to PostgreSQL and, with MigrateOnStart, applies the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// LoadConversation reads one session.
func (s *Store) LoadConversation(ctx context.Context, sessionID string) (*api.Conversation, error) {
	var (
		messagesJSON []byte
		lastAccessed time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT messages, last_accessed
		FROM conversations
		WHERE tenant_id = $1 AND session_id = $2
	`, storage.GetTenant(ctx), sessionID).Scan(&messagesJSON, &lastAccessed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv := &api.Conversation{SessionID: sessionID, LastAccessed: lastAccessed.UTC()}
	if err := json.Unmarshal(messagesJSON, &conv.Messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}
	return conv, nil
}

// SaveConversation upserts a session.
func (s *Store) SaveConversation(ctx context.Context, conv *api.Conversation) error {
	messages := conv.Messages
	if messages == nil {
		messages = []api.Message{}
	}
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}

	lastAccessed := conv.LastAccessed
	if lastAccessed.IsZero() {
		lastAccessed = time.Now()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (tenant_id, session_id, messages, message_count, last_accessed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, session_id) DO UPDATE SET
			messages = EXCLUDED.messages,
			message_count = EXCLUDED.message_count,
			last_accessed = EXCLUDED.last_accessed
	`, storage.GetTenant(ctx), conv.SessionID, messagesJSON, len(messages), lastAccessed)
	if err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes a session.
func (s *Store) DeleteConversation(ctx context.Context, sessionID string) error {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM conversations WHERE tenant_id = $1 AND session_id = $2
	`, storage.GetTenant(ctx), sessionID)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteIdle removes sessions of all tenants not accessed since before and
// returns how many were removed.
func (s *Store) DeleteIdle(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE last_accessed < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("deleting idle conversations: %w", err)
	}
	return result.RowsAffected(), nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
