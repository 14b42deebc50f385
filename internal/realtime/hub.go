// Package realtime fans newly inserted message rows out to subscribers of a conversation.
//
// Events carry the raw row. They never include the sender's display name, so consumers resolve
// it themselves. Delivery is at-least-once and consumers de-duplicate by message id.
package realtime

import (
	"context"
	"time"

	"taskhub/api/internal/store"
)

const subscriberBuffer = 64

// Row is the wire shape of a message insert.
type Row struct {
	ID                 string    `json:"id"`
	ConversationID     string    `json:"conversation_id"`
	SenderID           string    `json:"sender_id"`
	Text               string    `json:"text"`
	CreatedAt          time.Time `json:"created_at"`
	IsDeleted          bool      `json:"is_deleted"`
	DeletedForEveryone bool      `json:"deleted_for_everyone"`
	DeletedByUserIDs   []string  `json:"deleted_by_user_ids"`
}

func RowFromMessage(m store.Message) Row {
	deletedBy := m.DeletedByUserIDs
	if deletedBy == nil {
		deletedBy = []string{}
	}
	return Row{
		ID:                 m.ID,
		ConversationID:     m.ConversationID,
		SenderID:           m.SenderID,
		Text:               m.Text,
		CreatedAt:          m.CreatedAt,
		IsDeleted:          m.IsDeleted,
		DeletedForEveryone: m.DeletedForEveryone,
		DeletedByUserIDs:   deletedBy,
	}
}

// Message converts the row back without a sender name.
func (r Row) Message() store.Message {
	deletedBy := r.DeletedByUserIDs
	if deletedBy == nil {
		deletedBy = []string{}
	}
	return store.Message{
		ID:                 r.ID,
		ConversationID:     r.ConversationID,
		SenderID:           r.SenderID,
		Text:               r.Text,
		CreatedAt:          r.CreatedAt,
		IsDeleted:          r.IsDeleted,
		DeletedForEveryone: r.DeletedForEveryone,
		DeletedByUserIDs:   deletedBy,
	}
}

type Subscription interface {
	Events() <-chan Row
	Close() error
}

type Hub interface {
	Publish(ctx context.Context, row Row) error
	// Subscribe returns once the subscription is live. Events stop when ctx ends or Close is called.
	Subscribe(ctx context.Context, conversationID string) (Subscription, error)
}

func channelName(conversationID string) string {
	return "taskhub:messages:" + conversationID
}
