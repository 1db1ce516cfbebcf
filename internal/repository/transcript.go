package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askfolio/askfolio/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// TranscriptRepository persists chat transcripts keyed by session. It is a
// plain append log: the RAG engine never reads it.
type TranscriptRepository struct {
	pool *pgxpool.Pool
}

func NewTranscriptRepository(pool *pgxpool.Pool) *TranscriptRepository {
	return &TranscriptRepository{pool: pool}
}

// SaveMessage appends one message to a session transcript.
func (r *TranscriptRepository) SaveMessage(ctx context.Context, sessionID, role, content, ipAddress string) (*domain.ChatMessage, error) {
	if !domain.ValidRole(role) {
		return nil, domain.ErrInvalidMessageRole
	}
	if content == "" {
		return nil, domain.ErrEmptyMessageContent
	}

	msg := &domain.ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		IPAddress: ipAddress,
	}

	var ip *string
	if ipAddress != "" {
		ip = &ipAddress
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO chat_messages (session_id, role, content, ip_address)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		sessionID, role, content, ip,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// History returns a session's messages ordered by creation time ascending.
// The limit defaults to 50 and is clamped to 100.
func (r *TranscriptRepository) History(ctx context.Context, sessionID string, limit int) ([]*domain.ChatMessage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, role, content, created_at, ip_address
		 FROM chat_messages
		 WHERE session_id = $1
		 ORDER BY created_at ASC, id ASC
		 LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.ChatMessage, 0, limit)
	for rows.Next() {
		var msg domain.ChatMessage
		var ip *string
		var createdAt time.Time
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &createdAt, &ip); err != nil {
			return nil, err
		}
		msg.CreatedAt = createdAt
		if ip != nil {
			msg.IPAddress = *ip
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// DeleteSession removes every message of a session and returns how many
// were deleted. Deleting an unknown session is a no-op.
func (r *TranscriptRepository) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM chat_messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
