package repository

import (
	"context"
	"time"

	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/models"
	"github.com/jackc/pgx/v5"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	query := `
		INSERT INTO conversations (
			id, started_by, started_at, status, pet_id,
			last_message, last_message_at, last_message_by,
			unread_count, message_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		conversation.ID,
		conversation.StartedBy,
		conversation.StartedAt,
		conversation.Status,
		conversation.PetID,
		conversation.LastMessage,
		conversation.LastMessageAt,
		conversation.LastMessageBy,
		conversation.UnreadCount,
		conversation.MessageCount,
	)
	return err
}

func (r *ConversationRepository) GetByID(ctx context.Context, conversationID string) (*models.Conversation, error) {
	query := `
		SELECT id, started_by, started_at, status, pet_id,
		       last_message, last_message_at, last_message_by,
		       unread_count, message_count
		FROM conversations
		WHERE id = $1
	`
	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, conversationID).Scan(
		&conversation.ID,
		&conversation.StartedBy,
		&conversation.StartedAt,
		&conversation.Status,
		&conversation.PetID,
		&conversation.LastMessage,
		&conversation.LastMessageAt,
		&conversation.LastMessageBy,
		&conversation.UnreadCount,
		&conversation.MessageCount,
	)
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// Delete hard-deletes the conversation row. Participant rows cascade;
// message rows are left behind on purpose.
func (r *ConversationRepository) Delete(ctx context.Context, conversationID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ApplyMessage folds one posted message into the denormalized aggregate
// fields. The counters use in-place arithmetic so concurrent posts
// serialize under the row lock instead of clobbering each other. Returns
// the affected row count: 0 means the conversation no longer exists.
func (r *ConversationRepository) ApplyMessage(
	ctx context.Context,
	conversationID string,
	body string,
	senderID int64,
	sentAt time.Time,
) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message = $2,
		    last_message_at = $3,
		    last_message_by = $4,
		    unread_count = unread_count + 1,
		    message_count = message_count + 1
		WHERE id = $1
	`, conversationID, body, sentAt, senderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DecrementUnread lowers the shared unread counter by the number of
// messages actually transitioned, floored at zero.
func (r *ConversationRepository) DecrementUnread(ctx context.Context, conversationID string, n int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET unread_count = GREATEST(unread_count - $2, 0)
		WHERE id = $1
	`, conversationID, n)
	return err
}

func (r *ConversationRepository) ListForUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	query := `
		SELECT
			c.id, c.started_by, c.started_at, c.status, c.pet_id,
			c.last_message, c.last_message_at, c.last_message_by,
			c.unread_count, c.message_count,
			COALESCE(other.display_name, ''),
			COALESCE(uc.actor_unread, 0)
		FROM conversations c
		JOIN conversation_participants me
			ON me.conversation_id = c.id AND me.kind = 'user' AND me.user_id = $1
		LEFT JOIN LATERAL (
			SELECT COALESCE(
				o.name,
				NULLIF(TRIM(u.first_name || ' ' || u.last_name), ''),
				u.email
			) AS display_name
			FROM conversation_participants cp
			LEFT JOIN organizations o ON o.id = cp.organization_id
			LEFT JOIN users u ON u.id = cp.user_id
			WHERE cp.conversation_id = c.id AND cp.id <> me.id
			ORDER BY (cp.kind = 'organization') DESC, cp.id
			LIMIT 1
		) other ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS actor_unread
			FROM messages m
			WHERE m.conversation_id = c.id
			  AND m.sender_id <> $1
			  AND m.status <> 'read'
		) uc ON TRUE
		ORDER BY c.last_message_at DESC, c.id DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConversationSummaries(rows)
}

func (r *ConversationRepository) ListForOrganization(ctx context.Context, organizationID int64) ([]models.ConversationSummary, error) {
	query := `
		SELECT
			c.id, c.started_by, c.started_at, c.status, c.pet_id,
			c.last_message, c.last_message_at, c.last_message_by,
			c.unread_count, c.message_count,
			COALESCE(other.display_name, ''),
			COALESCE(uc.actor_unread, 0)
		FROM conversations c
		JOIN conversation_participants op
			ON op.conversation_id = c.id AND op.kind = 'organization' AND op.organization_id = $1
		LEFT JOIN LATERAL (
			SELECT COALESCE(
				NULLIF(TRIM(u.first_name || ' ' || u.last_name), ''),
				u.email,
				o.name
			) AS display_name
			FROM conversation_participants cp
			LEFT JOIN users u ON u.id = cp.user_id
			LEFT JOIN organizations o ON o.id = cp.organization_id
			WHERE cp.conversation_id = c.id AND cp.id <> op.id
			ORDER BY (cp.kind = 'user') DESC, cp.id
			LIMIT 1
		) other ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS actor_unread
			FROM messages m
			WHERE m.conversation_id = c.id
			  AND m.status <> 'read'
			  AND m.sender_id IN (
				SELECT cp2.user_id
				FROM conversation_participants cp2
				WHERE cp2.conversation_id = c.id AND cp2.kind = 'user'
			  )
		) uc ON TRUE
		ORDER BY c.last_message_at DESC, c.id DESC
	`
	rows, err := r.db.Query(ctx, query, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConversationSummaries(rows)
}

func scanConversationSummaries(rows pgx.Rows) ([]models.ConversationSummary, error) {
	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		if err := rows.Scan(
			&summary.ID,
			&summary.StartedBy,
			&summary.StartedAt,
			&summary.Status,
			&summary.PetID,
			&summary.LastMessage,
			&summary.LastMessageAt,
			&summary.LastMessageBy,
			&summary.UnreadCount,
			&summary.MessageCount,
			&summary.CounterpartName,
			&summary.ActorUnreadCount,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}
