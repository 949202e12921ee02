package services

import (
	"context"

	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/models"
)

// Actor is the authenticated identity a request runs as. UserID is
// always the concrete person; Kind says which side of a conversation
// they act for. OrganizationID is set only for organization-side actors
// (a staff member working the shared inbox).
type Actor struct {
	UserID         int64
	OrganizationID int64
	Kind           models.ParticipantKind
}

type conversationReader interface {
	GetByID(ctx context.Context, conversationID string) (*models.Conversation, error)
}

type participantDirectory interface {
	HasUserParticipant(ctx context.Context, conversationID string, userID int64) (bool, error)
	OrganizationIDs(ctx context.Context, conversationID string) ([]int64, error)
	IndividualUserIDs(ctx context.Context, conversationID string) ([]int64, error)
	ListByConversation(ctx context.Context, conversationID string) ([]models.Participant, error)
}

type staffRoster interface {
	IsStaffMember(ctx context.Context, organizationID, userID int64) (bool, error)
}

// AccessGate admits or rejects conversation-scoped requests based on
// participant membership. It must pass before every conversation-scoped
// read or mutation other than creation and listing.
type AccessGate struct {
	conversations conversationReader
	participants  participantDirectory
	roster        staffRoster
}

func NewAccessGate(
	conversations conversationReader,
	participants participantDirectory,
	roster staffRoster,
) *AccessGate {
	return &AccessGate{
		conversations: conversations,
		participants:  participants,
		roster:        roster,
	}
}

// Authorize returns the conversation when the actor is a participant:
// either through a direct user membership row, or by being on the staff
// roster of an organization that holds a membership row. A missing
// conversation surfaces as pgx.ErrNoRows, a non-participant as
// ErrForbidden. No side effects.
func (g *AccessGate) Authorize(ctx context.Context, actor Actor, conversationID string) (*models.Conversation, error) {
	conversation, err := g.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	direct, err := g.participants.HasUserParticipant(ctx, conversationID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if direct {
		return conversation, nil
	}

	organizationIDs, err := g.participants.OrganizationIDs(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for _, organizationID := range organizationIDs {
		isStaff, err := g.roster.IsStaffMember(ctx, organizationID, actor.UserID)
		if err != nil {
			return nil, err
		}
		if isStaff {
			return conversation, nil
		}
	}

	return nil, ErrForbidden
}
