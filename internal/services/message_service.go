package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/models"
	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageService struct {
	db              *pgxpool.Pool
	messageRepo     *repository.MessageRepository
	participantRepo *repository.ParticipantRepository
	gate            *AccessGate
}

func NewMessageService(
	db *pgxpool.Pool,
	messageRepo *repository.MessageRepository,
	participantRepo *repository.ParticipantRepository,
	gate *AccessGate,
) *MessageService {
	return &MessageService{
		db:              db,
		messageRepo:     messageRepo,
		participantRepo: participantRepo,
		gate:            gate,
	}
}

// PostMessage appends a message and folds it into the parent
// conversation's aggregates in one transaction. The two writes commit or
// roll back together: the counters must never drift from the message
// table's true contents.
func (s *MessageService) PostMessage(
	ctx context.Context,
	actor Actor,
	conversationID string,
	body string,
) (*models.Message, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil, ErrInvalidInput
	}

	if _, err := s.gate.Authorize(ctx, actor, conversationID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	message := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       actor.UserID,
		Body:           trimmed,
		SentAt:         now,
		Status:         models.MessageSent,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin post message: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txConversationRepo := repository.NewConversationRepository(tx)

	if err := txMessageRepo.Insert(ctx, message); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	affected, err := txConversationRepo.ApplyMessage(ctx, conversationID, trimmed, actor.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("apply message to conversation: %w", err)
	}
	if affected == 0 {
		// Conversation vanished between the gate check and the update
		// (raced a delete). Roll back so the message row never lands.
		return nil, pgx.ErrNoRows
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit post message: %w", err)
	}

	return message, nil
}

// ListMessages returns the transcript with sender display names. Purely
// a read: listing never flips read state.
func (s *MessageService) ListMessages(ctx context.Context, actor Actor, conversationID string) ([]models.MessageWithSender, error) {
	if _, err := s.gate.Authorize(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListByConversation(ctx, conversationID)
}

// MarkMessagesRead transitions the other side's unread messages to read
// and decrements the shared counter by exactly the number of rows
// transitioned. Mark and decrement run in one transaction so the counter
// cannot drift when a post or a second mark-read races this call.
//
// The target set depends on the acting side: an individual reads
// everything they did not send; an organization reads everything sent by
// the conversation's individual participants, resolved through the
// participant directory.
func (s *MessageService) MarkMessagesRead(
	ctx context.Context,
	actor Actor,
	conversationID string,
) (int64, error) {
	if !actor.Kind.Valid() {
		return 0, ErrInvalidInput
	}

	if _, err := s.gate.Authorize(ctx, actor, conversationID); err != nil {
		return 0, err
	}

	now := time.Now().UTC()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin mark read: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txParticipantRepo := repository.NewParticipantRepository(tx)
	txConversationRepo := repository.NewConversationRepository(tx)

	var transitioned int64
	switch actor.Kind {
	case models.KindUser:
		transitioned, err = txMessageRepo.MarkReadExceptSender(ctx, conversationID, actor.UserID, now)
	case models.KindOrganization:
		var senderIDs []int64
		senderIDs, err = txParticipantRepo.IndividualUserIDs(ctx, conversationID)
		if err == nil {
			transitioned, err = txMessageRepo.MarkReadFromSenders(ctx, conversationID, senderIDs, now)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}

	if transitioned > 0 {
		if err := txConversationRepo.DecrementUnread(ctx, conversationID, transitioned); err != nil {
			return 0, fmt.Errorf("decrement unread count: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit mark read: %w", err)
	}

	return transitioned, nil
}
