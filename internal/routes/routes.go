package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/config"
	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/handlers"
	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/middleware"
	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/repository"
	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/services"
	"github.com/jackc/pgx/v5/pgxpool"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	userRepo := repository.NewUserRepository(db)
	organizationRepo := repository.NewOrganizationRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	participantRepo := repository.NewParticipantRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	gate := services.NewAccessGate(conversationRepo, participantRepo, organizationRepo)
	conversationService := services.NewConversationService(db, conversationRepo, participantRepo, gate)
	messageService := services.NewMessageService(db, messageRepo, participantRepo, gate)

	authHandler := handlers.NewAuthHandler(userRepo, organizationRepo, cfg.JWTSecret)
	chatHandler := handlers.NewChatHandler(conversationService, messageService)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	conversations := authProtected.Group("/conversations")
	conversations.Post("", chatHandler.CreateConversation)
	conversations.Get("", chatHandler.ListConversations)
	conversations.Get("/:id", chatHandler.GetConversation)
	conversations.Delete("/:id", chatHandler.DeleteConversation)
	conversations.Post("/:id/messages", chatHandler.PostMessage)
	conversations.Get("/:id/messages", chatHandler.GetMessages)
	conversations.Post("/:id/read", chatHandler.MarkMessagesRead)
}
