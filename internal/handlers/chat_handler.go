package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/models"
	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/services"
	"github.com/jackc/pgx/v5"
)

type conversationApplicationService interface {
	CreateConversation(ctx context.Context, actor services.Actor, input services.CreateConversationInput) (*models.ConversationDetail, error)
	ListConversations(ctx context.Context, actor services.Actor) ([]models.ConversationSummary, error)
	GetConversation(ctx context.Context, actor services.Actor, conversationID string) (*models.ConversationDetail, error)
	DeleteConversation(ctx context.Context, actor services.Actor, conversationID string) error
}

type messageApplicationService interface {
	PostMessage(ctx context.Context, actor services.Actor, conversationID string, body string) (*models.Message, error)
	ListMessages(ctx context.Context, actor services.Actor, conversationID string) ([]models.MessageWithSender, error)
	MarkMessagesRead(ctx context.Context, actor services.Actor, conversationID string) (int64, error)
}

type ChatHandler struct {
	conversations conversationApplicationService
	messages      messageApplicationService
}

func NewChatHandler(
	conversations conversationApplicationService,
	messages messageApplicationService,
) *ChatHandler {
	return &ChatHandler{
		conversations: conversations,
		messages:      messages,
	}
}

type createConversationRequest struct {
	Participants []services.ParticipantInput `json:"participants"`
	PetID        *int64                      `json:"pet_id"`
}

type postMessageRequest struct {
	Body string `json:"body"`
}

func (h *ChatHandler) CreateConversation(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	conversation, err := h.conversations.CreateConversation(c.Context(), actor, services.CreateConversationInput{
		Participants: req.Participants,
		PetID:        req.PetID,
	})
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversations, err := h.conversations.ListConversations(c.Context(), actor)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

func (h *ChatHandler) GetConversation(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversation, err := h.conversations.GetConversation(c.Context(), actor, c.Params("id"))
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) DeleteConversation(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if err := h.conversations.DeleteConversation(c.Context(), actor, c.Params("id")); err != nil {
		return mapChatError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ChatHandler) PostMessage(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req postMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.messages.PostMessage(c.Context(), actor, c.Params("id"), req.Body)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messages, err := h.messages.ListMessages(c.Context(), actor, c.Params("id"))
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

func (h *ChatHandler) MarkMessagesRead(c *fiber.Ctx) error {
	actor, err := actorFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	updated, err := h.messages.MarkMessagesRead(c.Context(), actor, c.Params("id"))
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"updated": updated})
}

// actorFromCtx rebuilds the acting identity from the locals the auth
// middleware populated. A non-empty organization claim means the request
// works the organization's shared inbox.
func actorFromCtx(c *fiber.Ctx) (services.Actor, error) {
	userIDStr, ok := c.Locals("user_id").(string)
	if !ok {
		return services.Actor{}, strconv.ErrSyntax
	}
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return services.Actor{}, err
	}

	actor := services.Actor{UserID: userID, Kind: models.KindUser}
	if orgIDStr, ok := c.Locals("organization_id").(string); ok && orgIDStr != "" {
		organizationID, err := strconv.ParseInt(orgIDStr, 10, 64)
		if err != nil {
			return services.Actor{}, err
		}
		actor.OrganizationID = organizationID
		actor.Kind = models.KindOrganization
	}
	return actor, nil
}

func mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
