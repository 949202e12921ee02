package models

import "time"

type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

// ParticipantKind is the closed set of sides a participant row can
// represent: an individual user, or an organization whose staff share
// the conversation inbox.
type ParticipantKind string

const (
	KindUser         ParticipantKind = "user"
	KindOrganization ParticipantKind = "organization"
)

func (k ParticipantKind) Valid() bool {
	return k == KindUser || k == KindOrganization
}

type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

type Conversation struct {
	ID            string             `json:"id"`
	StartedBy     int64              `json:"started_by"`
	StartedAt     time.Time          `json:"started_at"`
	Status        ConversationStatus `json:"status"`
	PetID         *int64             `json:"pet_id,omitempty"`
	LastMessage   string             `json:"last_message"`
	LastMessageAt time.Time          `json:"last_message_at"`
	LastMessageBy int64              `json:"last_message_by"`
	UnreadCount   int                `json:"unread_count"`
	MessageCount  int                `json:"message_count"`
}

type Participant struct {
	ID             int64           `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Kind           ParticipantKind `json:"kind"`
	UserID         int64           `json:"user_id,omitempty"`
	OrganizationID int64           `json:"organization_id,omitempty"`
}

type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       int64         `json:"sender_id"`
	Body           string        `json:"body"`
	SentAt         time.Time     `json:"sent_at"`
	ReadAt         *time.Time    `json:"read_at,omitempty"`
	Status         MessageStatus `json:"status"`
}

// MessageWithSender decorates a message with the sender's display name,
// resolved by a read-time join.
type MessageWithSender struct {
	Message
	SenderName string `json:"sender_name"`
}

type ConversationDetail struct {
	Conversation
	Participants []Participant `json:"participants"`
}

// ConversationSummary is one inbox row. CounterpartName is the display
// name of the other side; ActorUnreadCount is the number of messages the
// listing side has not read yet, computed from the message table rather
// than the shared counter.
type ConversationSummary struct {
	Conversation
	CounterpartName  string `json:"counterpart_name"`
	ActorUnreadCount int    `json:"actor_unread_count"`
}
