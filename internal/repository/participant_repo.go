package repository

import (
	"context"

	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/models"
)

// ParticipantRepository owns conversation membership rows. Rows are
// written once at conversation creation and never change afterwards.
type ParticipantRepository struct {
	db DBTX
}

func NewParticipantRepository(db DBTX) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

func (r *ParticipantRepository) Insert(ctx context.Context, participant *models.Participant) error {
	var userID, organizationID any
	if participant.Kind == models.KindUser {
		userID = participant.UserID
	} else {
		organizationID = participant.OrganizationID
	}

	query := `
		INSERT INTO conversation_participants (conversation_id, kind, user_id, organization_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	return r.db.QueryRow(ctx, query, participant.ConversationID, participant.Kind, userID, organizationID).
		Scan(&participant.ID)
}

func (r *ParticipantRepository) ListByConversation(ctx context.Context, conversationID string) ([]models.Participant, error) {
	query := `
		SELECT id, conversation_id, kind, COALESCE(user_id, 0), COALESCE(organization_id, 0)
		FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.ConversationID, &p.Kind, &p.UserID, &p.OrganizationID); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return participants, nil
}

// HasUserParticipant reports whether the user holds a direct membership
// row in the conversation.
func (r *ParticipantRepository) HasUserParticipant(ctx context.Context, conversationID string, userID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM conversation_participants
			WHERE conversation_id = $1 AND kind = 'user' AND user_id = $2
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, conversationID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// OrganizationIDs returns the organizations holding membership rows in
// the conversation. Staff membership itself is the roster's concern.
func (r *ParticipantRepository) OrganizationIDs(ctx context.Context, conversationID string) ([]int64, error) {
	query := `
		SELECT organization_id
		FROM conversation_participants
		WHERE conversation_id = $1 AND kind = 'organization'
		ORDER BY id
	`
	return r.queryIDs(ctx, query, conversationID)
}

// IndividualUserIDs resolves the individual side of the conversation:
// every user id attached through a user-kind participant row.
func (r *ParticipantRepository) IndividualUserIDs(ctx context.Context, conversationID string) ([]int64, error) {
	query := `
		SELECT user_id
		FROM conversation_participants
		WHERE conversation_id = $1 AND kind = 'user'
		ORDER BY id
	`
	return r.queryIDs(ctx, query, conversationID)
}

func (r *ParticipantRepository) queryIDs(ctx context.Context, query string, conversationID string) ([]int64, error) {
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
