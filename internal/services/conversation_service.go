package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/models"
	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
)

type ParticipantInput struct {
	Kind models.ParticipantKind `json:"kind"`
	ID   int64                  `json:"id"`
}

type CreateConversationInput struct {
	Participants []ParticipantInput
	PetID        *int64
}

type ConversationService struct {
	db               *pgxpool.Pool
	conversationRepo *repository.ConversationRepository
	participantRepo  *repository.ParticipantRepository
	gate             *AccessGate
}

func NewConversationService(
	db *pgxpool.Pool,
	conversationRepo *repository.ConversationRepository,
	participantRepo *repository.ParticipantRepository,
	gate *AccessGate,
) *ConversationService {
	return &ConversationService{
		db:               db,
		conversationRepo: conversationRepo,
		participantRepo:  participantRepo,
		gate:             gate,
	}
}

// CreateConversation inserts the conversation row and every participant
// row as one atomic unit: either the whole conversation exists or none
// of it does. Validation runs before any transaction is opened.
func (s *ConversationService) CreateConversation(
	ctx context.Context,
	actor Actor,
	input CreateConversationInput,
) (*models.ConversationDetail, error) {
	if err := validateParticipants(input.Participants); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	conversation := &models.Conversation{
		ID:            uuid.NewString(),
		StartedBy:     actor.UserID,
		StartedAt:     now,
		Status:        models.ConversationActive,
		PetID:         input.PetID,
		LastMessage:   "",
		LastMessageAt: now,
		LastMessageBy: actor.UserID,
		UnreadCount:   0,
		MessageCount:  0,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create conversation: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txConversationRepo := repository.NewConversationRepository(tx)
	txParticipantRepo := repository.NewParticipantRepository(tx)

	if err := txConversationRepo.Create(ctx, conversation); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	participants := make([]models.Participant, 0, len(input.Participants))
	for _, entry := range input.Participants {
		participant := models.Participant{
			ConversationID: conversation.ID,
			Kind:           entry.Kind,
		}
		if entry.Kind == models.KindUser {
			participant.UserID = entry.ID
		} else {
			participant.OrganizationID = entry.ID
		}
		if err := txParticipantRepo.Insert(ctx, &participant); err != nil {
			return nil, fmt.Errorf("insert participant: %w", err)
		}
		participants = append(participants, participant)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create conversation: %w", err)
	}

	return &models.ConversationDetail{
		Conversation: *conversation,
		Participants: participants,
	}, nil
}

// ListConversations runs one of two disjoint queries depending on the
// side the actor acts for: direct membership rows for individuals, the
// organization's rows for any staff member of that organization.
func (s *ConversationService) ListConversations(ctx context.Context, actor Actor) ([]models.ConversationSummary, error) {
	switch actor.Kind {
	case models.KindUser:
		return s.conversationRepo.ListForUser(ctx, actor.UserID)
	case models.KindOrganization:
		return s.conversationRepo.ListForOrganization(ctx, actor.OrganizationID)
	default:
		return nil, ErrInvalidInput
	}
}

func (s *ConversationService) GetConversation(ctx context.Context, actor Actor, conversationID string) (*models.ConversationDetail, error) {
	conversation, err := s.gate.Authorize(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}

	participants, err := s.participantRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	return &models.ConversationDetail{
		Conversation: *conversation,
		Participants: participants,
	}, nil
}

// DeleteConversation hard-deletes the conversation row. Participant rows
// go with it; message rows are left in place.
func (s *ConversationService) DeleteConversation(ctx context.Context, actor Actor, conversationID string) error {
	if _, err := s.gate.Authorize(ctx, actor, conversationID); err != nil {
		return err
	}

	affected, err := s.conversationRepo.Delete(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if affected == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func validateParticipants(participants []ParticipantInput) error {
	if len(participants) < 2 {
		return ErrInvalidInput
	}
	for _, p := range participants {
		if !p.Kind.Valid() || p.ID <= 0 {
			return ErrInvalidInput
		}
	}
	return nil
}
