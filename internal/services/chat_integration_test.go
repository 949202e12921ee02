package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/models"
	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

type chatStack struct {
	pool             *pgxpool.Pool
	conversationRepo *repository.ConversationRepository
	participantRepo  *repository.ParticipantRepository
	messageRepo      *repository.MessageRepository
	conversations    *ConversationService
	messages         *MessageService
}

func TestMessagingFlowAcrossSides(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	stack := newChatStack(pool)

	adopterID := createTestUser(t, ctx, pool, "adopter")
	staffID := createTestUser(t, ctx, pool, "staff")
	orgID := createTestOrganization(t, ctx, pool, staffID)

	adopter := Actor{UserID: adopterID, Kind: models.KindUser}
	orgActor := Actor{UserID: staffID, OrganizationID: orgID, Kind: models.KindOrganization}

	detail, err := stack.conversations.CreateConversation(ctx, adopter, CreateConversationInput{
		Participants: []ParticipantInput{
			{Kind: models.KindUser, ID: adopterID},
			{Kind: models.KindOrganization, ID: orgID},
		},
	})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	t.Cleanup(func() { cleanupChatRows(t, ctx, pool, []string{detail.ID}, []int64{orgID}, []int64{adopterID, staffID}) })

	if detail.UnreadCount != 0 || detail.MessageCount != 0 {
		t.Fatalf("expected zero counters after create, got unread=%d count=%d", detail.UnreadCount, detail.MessageCount)
	}
	if len(detail.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(detail.Participants))
	}

	if _, err := stack.messages.PostMessage(ctx, orgActor, detail.ID, "Hello"); err != nil {
		t.Fatalf("PostMessage org: %v", err)
	}
	conv := mustGetConversation(t, ctx, stack, detail.ID)
	if conv.UnreadCount != 1 || conv.MessageCount != 1 || conv.LastMessage != "Hello" {
		t.Fatalf("unexpected aggregates after org post: %+v", conv)
	}
	if conv.LastMessageBy != staffID {
		t.Fatalf("expected last_message_by %d, got %d", staffID, conv.LastMessageBy)
	}

	transitioned, err := stack.messages.MarkMessagesRead(ctx, adopter, detail.ID)
	if err != nil {
		t.Fatalf("MarkMessagesRead adopter: %v", err)
	}
	if transitioned != 1 {
		t.Fatalf("expected 1 message transitioned, got %d", transitioned)
	}
	conv = mustGetConversation(t, ctx, stack, detail.ID)
	if conv.UnreadCount != 0 {
		t.Fatalf("expected unread 0 after adopter read, got %d", conv.UnreadCount)
	}

	if _, err := stack.messages.PostMessage(ctx, adopter, detail.ID, "Thanks"); err != nil {
		t.Fatalf("PostMessage adopter: %v", err)
	}
	conv = mustGetConversation(t, ctx, stack, detail.ID)
	if conv.UnreadCount != 1 || conv.MessageCount != 2 {
		t.Fatalf("unexpected aggregates after adopter post: %+v", conv)
	}

	transitioned, err = stack.messages.MarkMessagesRead(ctx, orgActor, detail.ID)
	if err != nil {
		t.Fatalf("MarkMessagesRead org: %v", err)
	}
	if transitioned != 1 {
		t.Fatalf("expected 1 message transitioned for org, got %d", transitioned)
	}
	conv = mustGetConversation(t, ctx, stack, detail.ID)
	if conv.UnreadCount != 0 {
		t.Fatalf("expected unread 0 after org read, got %d", conv.UnreadCount)
	}

	// Second read with no new messages transitions nothing.
	transitioned, err = stack.messages.MarkMessagesRead(ctx, orgActor, detail.ID)
	if err != nil {
		t.Fatalf("MarkMessagesRead org repeat: %v", err)
	}
	if transitioned != 0 {
		t.Fatalf("expected idempotent second read, transitioned %d", transitioned)
	}

	messages, err := stack.messages.ListMessages(ctx, adopter, detail.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 2 || messages[0].Body != "Hello" || messages[1].Body != "Thanks" {
		t.Fatalf("expected transcript oldest first, got %+v", messages)
	}
	if messages[0].Status != models.MessageRead || messages[0].ReadAt == nil {
		t.Fatalf("expected first message read with read_at set, got %+v", messages[0])
	}

	summaries, err := stack.conversations.ListConversations(ctx, adopter)
	if err != nil {
		t.Fatalf("ListConversations adopter: %v", err)
	}
	if len(summaries) == 0 {
		t.Fatalf("expected at least one summary for adopter")
	}
}

func TestPostMessageCountersUnderConcurrentPosts(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	stack := newChatStack(pool)

	adopterID := createTestUser(t, ctx, pool, "adopter")
	staffID := createTestUser(t, ctx, pool, "staff")
	orgID := createTestOrganization(t, ctx, pool, staffID)

	adopter := Actor{UserID: adopterID, Kind: models.KindUser}

	detail, err := stack.conversations.CreateConversation(ctx, adopter, CreateConversationInput{
		Participants: []ParticipantInput{
			{Kind: models.KindUser, ID: adopterID},
			{Kind: models.KindOrganization, ID: orgID},
		},
	})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	t.Cleanup(func() { cleanupChatRows(t, ctx, pool, []string{detail.ID}, []int64{orgID}, []int64{adopterID, staffID}) })

	const posters = 8
	var wg sync.WaitGroup
	errs := make(chan error, posters)
	for i := 0; i < posters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := stack.messages.PostMessage(ctx, adopter, detail.ID, fmt.Sprintf("message %d", n))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent PostMessage: %v", err)
		}
	}

	conv := mustGetConversation(t, ctx, stack, detail.ID)
	stored, err := stack.messageRepo.CountByConversation(ctx, detail.ID)
	if err != nil {
		t.Fatalf("CountByConversation: %v", err)
	}
	if conv.MessageCount != posters || stored != posters {
		t.Fatalf("counter drift: message_count=%d rows=%d want %d", conv.MessageCount, stored, posters)
	}
	if conv.UnreadCount != posters {
		t.Fatalf("expected unread %d, got %d", posters, conv.UnreadCount)
	}
}

func TestPostMessageRollsBackWhenConversationVanishes(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	stack := newChatStack(pool)

	// Mirror the service's transaction by hand against a conversation
	// that does not exist: the message insert lands, the aggregate
	// update touches zero rows, and the rollback must discard the
	// message again.
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	txMessageRepo := repository.NewMessageRepository(tx)
	txConversationRepo := repository.NewConversationRepository(tx)

	message := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: uuid.NewString(),
		SenderID:       1,
		Body:           "orphan attempt",
		SentAt:         time.Now().UTC(),
		Status:         models.MessageSent,
	}
	if err := txMessageRepo.Insert(ctx, message); err != nil {
		t.Fatalf("Insert inside tx: %v", err)
	}
	affected, err := txConversationRepo.ApplyMessage(ctx, message.ConversationID, message.Body, message.SenderID, message.SentAt)
	if err != nil {
		t.Fatalf("ApplyMessage: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected no conversation row to match, got %d", affected)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := stack.messageRepo.GetByID(ctx, message.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected rolled-back message to be gone, got %v", err)
	}
}

func TestDeleteConversationLeavesMessages(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	stack := newChatStack(pool)

	adopterID := createTestUser(t, ctx, pool, "adopter")
	staffID := createTestUser(t, ctx, pool, "staff")
	orgID := createTestOrganization(t, ctx, pool, staffID)

	adopter := Actor{UserID: adopterID, Kind: models.KindUser}

	detail, err := stack.conversations.CreateConversation(ctx, adopter, CreateConversationInput{
		Participants: []ParticipantInput{
			{Kind: models.KindUser, ID: adopterID},
			{Kind: models.KindOrganization, ID: orgID},
		},
	})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	t.Cleanup(func() { cleanupChatRows(t, ctx, pool, []string{detail.ID}, []int64{orgID}, []int64{adopterID, staffID}) })

	message, err := stack.messages.PostMessage(ctx, adopter, detail.ID, "will be orphaned")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}

	if err := stack.conversations.DeleteConversation(ctx, adopter, detail.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	if _, err := stack.conversationRepo.GetByID(ctx, detail.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected conversation gone, got %v", err)
	}
	// The message row survives the delete: orphaning is the documented
	// policy, not cascade.
	if _, err := stack.messageRepo.GetByID(ctx, message.ID); err != nil {
		t.Fatalf("expected orphaned message to remain, got %v", err)
	}

	if err := stack.conversations.DeleteConversation(ctx, adopter, detail.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected not-found on second delete, got %v", err)
	}
}

func TestConversationAccessForStrangersAndMissingIDs(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	stack := newChatStack(pool)

	adopterID := createTestUser(t, ctx, pool, "adopter")
	strangerID := createTestUser(t, ctx, pool, "stranger")
	staffID := createTestUser(t, ctx, pool, "staff")
	orgID := createTestOrganization(t, ctx, pool, staffID)

	adopter := Actor{UserID: adopterID, Kind: models.KindUser}
	stranger := Actor{UserID: strangerID, Kind: models.KindUser}

	detail, err := stack.conversations.CreateConversation(ctx, adopter, CreateConversationInput{
		Participants: []ParticipantInput{
			{Kind: models.KindUser, ID: adopterID},
			{Kind: models.KindOrganization, ID: orgID},
		},
	})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	t.Cleanup(func() {
		cleanupChatRows(t, ctx, pool, []string{detail.ID}, []int64{orgID}, []int64{adopterID, strangerID, staffID})
	})

	if _, err := stack.conversations.GetConversation(ctx, stranger, detail.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}
	if _, err := stack.conversations.GetConversation(ctx, adopter, uuid.NewString()); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected not-found for unknown id, got %v", err)
	}

	// Staff of the participating organization pass the gate even though
	// they hold no direct participant row.
	orgActor := Actor{UserID: staffID, OrganizationID: orgID, Kind: models.KindOrganization}
	if _, err := stack.conversations.GetConversation(ctx, orgActor, detail.ID); err != nil {
		t.Fatalf("expected staff access, got %v", err)
	}
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func newChatStack(pool *pgxpool.Pool) *chatStack {
	conversationRepo := repository.NewConversationRepository(pool)
	participantRepo := repository.NewParticipantRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	organizationRepo := repository.NewOrganizationRepository(pool)

	gate := NewAccessGate(conversationRepo, participantRepo, organizationRepo)
	return &chatStack{
		pool:             pool,
		conversationRepo: conversationRepo,
		participantRepo:  participantRepo,
		messageRepo:      messageRepo,
		conversations:    NewConversationService(pool, conversationRepo, participantRepo, gate),
		messages:         NewMessageService(pool, messageRepo, participantRepo, gate),
	}
}

func mustGetConversation(t *testing.T, ctx context.Context, stack *chatStack, conversationID string) *models.Conversation {
	t.Helper()
	conversation, err := stack.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", conversationID, err)
	}
	return conversation
}

func createTestUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, label string) int64 {
	t.Helper()

	userRepo := repository.NewUserRepository(pool)
	user := &models.User{
		Email:        fmt.Sprintf("chat-test-%s-%d@example.com", label, time.Now().UnixNano()),
		PasswordHash: "test-hash",
		FirstName:    "Test",
		LastName:     label,
	}
	if err := userRepo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser(%s): %v", label, err)
	}
	return user.ID
}

func createTestOrganization(t *testing.T, ctx context.Context, pool *pgxpool.Pool, staffIDs ...int64) int64 {
	t.Helper()

	organizationRepo := repository.NewOrganizationRepository(pool)
	org := &models.Organization{Name: fmt.Sprintf("Test Rescue %d", time.Now().UnixNano())}
	if err := organizationRepo.Create(ctx, org); err != nil {
		t.Fatalf("Create organization: %v", err)
	}
	for _, staffID := range staffIDs {
		if err := organizationRepo.AddStaff(ctx, org.ID, staffID); err != nil {
			t.Fatalf("AddStaff: %v", err)
		}
	}
	return org.ID
}

func cleanupChatRows(t *testing.T, ctx context.Context, pool *pgxpool.Pool, conversationIDs []string, orgIDs, userIDs []int64) {
	t.Helper()

	if len(conversationIDs) > 0 {
		if _, err := pool.Exec(ctx, "DELETE FROM messages WHERE conversation_id = ANY($1)", conversationIDs); err != nil {
			t.Fatalf("cleanup messages: %v", err)
		}
		if _, err := pool.Exec(ctx, "DELETE FROM conversations WHERE id = ANY($1)", conversationIDs); err != nil {
			t.Fatalf("cleanup conversations: %v", err)
		}
	}
	if len(orgIDs) > 0 {
		if _, err := pool.Exec(ctx, "DELETE FROM organizations WHERE id = ANY($1)", orgIDs); err != nil {
			t.Fatalf("cleanup organizations: %v", err)
		}
	}
	if len(userIDs) > 0 {
		if _, err := pool.Exec(ctx, "DELETE FROM users WHERE id = ANY($1)", userIDs); err != nil {
			t.Fatalf("cleanup users: %v", err)
		}
	}
}
