// Package chat contains the tienda support-chat core: room routing, session
// management, presence, the websocket gateway and message persistence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a MessageStore backed by PostgreSQL.
//
// Expected table (schema management is external):
//
//	<schema>.chat_messages (
//	    id              text primary key,
//	    conversation_id text not null,
//	    sender_id       text not null,
//	    sender_username text not null,
//	    receiver_id     text not null default '',
//	    body            text not null,
//	    is_from_admin   boolean not null,
//	    read            boolean not null default false,
//	    created_at      timestamptz not null
//	)
//	index on (conversation_id, created_at)
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Concurrency model:
// - Every write is a single statement scoped by id or conversation id, so no
//   transaction spans conversations and no advisory locking is needed.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "tienda").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed MessageStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "tienda",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) messages() string {
	return pgIdent(s.schema, "chat_messages")
}

// Append inserts a message, assigning its id and creation time.
func (s *PostgresStore) Append(ctx context.Context, in AppendMessageInput) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("chat: nil store")
	}
	if in.ConversationID == "" || in.SenderID == "" || in.Body == "" {
		return Message{}, errors.New("invalid input")
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewMessageID(now)
	if err != nil {
		return Message{}, err
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.messages()+` (
		     id, conversation_id, sender_id, sender_username, receiver_id,
		     body, is_from_admin, "read", created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)`,
		id, in.ConversationID, in.SenderID, in.SenderUsername, in.ReceiverID,
		in.Body, in.IsFromAdmin, now,
	); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	return Message{
		ID:             id,
		SenderID:       in.SenderID,
		SenderUsername: in.SenderUsername,
		ReceiverID:     in.ReceiverID,
		Body:           in.Body,
		IsFromAdmin:    in.IsFromAdmin,
		ConversationID: in.ConversationID,
		Read:           false,
		CreatedAt:      now,
	}, nil
}

// History returns the newest `limit` messages in ascending creation order.
func (s *PostgresStore) History(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}
	if conversationID == "" {
		return nil, errors.New("missing conversation id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, sender_id, sender_username, receiver_id,
		        body, is_from_admin, "read", created_at
		   FROM (
		        SELECT *
		          FROM `+s.messages()+`
		         WHERE conversation_id = $1
		         ORDER BY created_at DESC, id DESC
		         LIMIT $2
		   ) newest
		  ORDER BY created_at ASC, id ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.SenderID,
			&m.SenderUsername,
			&m.ReceiverID,
			&m.Body,
			&m.IsFromAdmin,
			&m.Read,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead flips every unread non-admin message in a conversation to read.
func (s *PostgresStore) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("chat: nil store")
	}
	if conversationID == "" {
		return 0, errors.New("missing conversation id")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.messages()+`
		    SET "read" = true
		  WHERE conversation_id = $1
		    AND is_from_admin = false
		    AND "read" = false`,
		conversationID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteMessage removes one message; both id and conversation id must match.
func (s *PostgresStore) DeleteMessage(ctx context.Context, messageID, conversationID string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, errors.New("chat: nil store")
	}
	if messageID == "" || conversationID == "" {
		return false, errors.New("invalid input")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.messages()+` WHERE id = $1 AND conversation_id = $2`,
		messageID, conversationID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteConversation removes every message in a conversation.
func (s *PostgresStore) DeleteConversation(ctx context.Context, conversationID string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("chat: nil store")
	}
	if conversationID == "" {
		return 0, errors.New("missing conversation id")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.messages()+` WHERE conversation_id = $1`,
		conversationID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListConversations computes one summary row per conversation id,
// ordered by descending last activity.
//
// The counterpart columns come from the most recent non-admin message when one
// exists, so an admin reply never misattributes the conversation; the last
// sender is the fallback for conversations holding admin messages only.
func (s *PostgresStore) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := s.messages()

	rows, err := s.pool.Query(ctx,
		`WITH last AS (
		     SELECT DISTINCT ON (conversation_id)
		            conversation_id, body, created_at, sender_id, sender_username
		       FROM `+messages+`
		      ORDER BY conversation_id, created_at DESC, id DESC
		), counterpart AS (
		     SELECT DISTINCT ON (conversation_id)
		            conversation_id, sender_id, sender_username
		       FROM `+messages+`
		      WHERE is_from_admin = false
		      ORDER BY conversation_id, created_at DESC, id DESC
		), unread AS (
		     SELECT conversation_id, COUNT(*) AS unread_count
		       FROM `+messages+`
		      WHERE is_from_admin = false AND "read" = false
		      GROUP BY conversation_id
		)
		SELECT l.conversation_id,
		       l.body,
		       l.created_at,
		       COALESCE(c.sender_id, l.sender_id),
		       COALESCE(c.sender_username, l.sender_username),
		       COALESCE(u.unread_count, 0)
		  FROM last l
		  LEFT JOIN counterpart c USING (conversation_id)
		  LEFT JOIN unread u USING (conversation_id)
		 ORDER BY l.created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var sum ConversationSummary
		var unread int64
		if err := rows.Scan(
			&sum.ConversationID,
			&sum.LastMessage,
			&sum.LastMessageTime,
			&sum.SenderID,
			&sum.SenderUsername,
			&unread,
		); err != nil {
			return nil, err
		}
		sum.UnreadCount = int(unread)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ---- identifier quoting ----

var pgIdentRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent quotes a schema-qualified table name. Both parts are validated
// against a conservative identifier pattern before quoting.
func pgIdent(schema, table string) string {
	return `"` + schema + `"."` + table + `"`
}
