package repository

import (
	"context"
	"time"

	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Insert(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, body, sent_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		message.ID,
		message.ConversationID,
		message.SenderID,
		message.Body,
		message.SentAt,
		message.Status,
	)
	return err
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID string) (*models.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, body, sent_at, read_at, status
		FROM messages
		WHERE id = $1
	`
	var message models.Message
	err := r.db.QueryRow(ctx, query, messageID).Scan(
		&message.ID,
		&message.ConversationID,
		&message.SenderID,
		&message.Body,
		&message.SentAt,
		&message.ReadAt,
		&message.Status,
	)
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListByConversation returns the transcript oldest first, each message
// decorated with the sender's display name. Read-only: it never touches
// read_at or status.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]models.MessageWithSender, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.body, m.sent_at, m.read_at, m.status,
		       COALESCE(NULLIF(TRIM(u.first_name || ' ' || u.last_name), ''), u.email, '')
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1
		ORDER BY m.sent_at ASC, m.id ASC
	`
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.MessageWithSender, 0)
	for rows.Next() {
		var message models.MessageWithSender
		if err := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&message.SenderID,
			&message.Body,
			&message.SentAt,
			&message.ReadAt,
			&message.Status,
			&message.SenderName,
		); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkReadExceptSender transitions every not-yet-read message in the
// conversation that the given actor did not send. Marks and counts in
// one statement so the caller can decrement the shared counter by
// exactly the number of rows transitioned.
func (r *MessageRepository) MarkReadExceptSender(
	ctx context.Context,
	conversationID string,
	readerID int64,
	readAt time.Time,
) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET status = 'read', read_at = $3
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND status <> 'read'
	`, conversationID, readerID, readAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkReadFromSenders transitions every not-yet-read message sent by one
// of the given senders, the organization-side counterpart of
// MarkReadExceptSender.
func (r *MessageRepository) MarkReadFromSenders(
	ctx context.Context,
	conversationID string,
	senderIDs []int64,
	readAt time.Time,
) (int64, error) {
	if len(senderIDs) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET status = 'read', read_at = $3
		WHERE conversation_id = $1
		  AND sender_id = ANY($2)
		  AND status <> 'read'
	`, conversationID, senderIDs, readAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountByConversation exists for consistency checks against the
// denormalized message_count.
func (r *MessageRepository) CountByConversation(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`,
		conversationID,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
