// Package messaging owns conversations and messages: the authoritative service used by the HTTP
// layer, and the Synchronizer that keeps one viewer's view of a conversation consistent with it.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"taskhub/api/internal/logging"
	"taskhub/api/internal/realtime"
	"taskhub/api/internal/store"
	"taskhub/api/internal/util"
)

// MaxTextLength bounds a single message body in characters, matching the
// request validator's max tag.
const MaxTextLength = 4000

var (
	ErrEmptyText      = errors.New("message text is required")
	ErrTextTooLong    = fmt.Errorf("message text exceeds %d characters", MaxTextLength)
	ErrNotParticipant = errors.New("viewer is not a participant in this conversation")
	ErrNotSender      = errors.New("only the sender can delete a message for everyone")
	ErrNoConversation = errors.New("no conversation is open")
)

type Repository interface {
	ListConversations(ctx context.Context, userID string) ([]store.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ListMessages(ctx context.Context, conversationID string) ([]store.Message, error)
	GetMessage(ctx context.Context, messageID string) (store.Message, error)
	InsertMessage(ctx context.Context, m store.Message) (store.Message, error)
	DeleteMessageForUser(ctx context.Context, messageID, userID string) error
	DeleteMessageForEveryone(ctx context.Context, messageID string) error
	MarkConversationRead(ctx context.Context, conversationID, userID string) error
	UserDisplayName(ctx context.Context, userID string) (string, error)
}

// Backend is what a Synchronizer talks to. Service implements it.
type Backend interface {
	ListConversations(ctx context.Context, viewerID string) ([]store.Conversation, error)
	ListMessages(ctx context.Context, conversationID, viewerID string) ([]store.Message, error)
	CreateMessage(ctx context.Context, conversationID, senderID, text string) (store.Message, error)
	DeleteForMe(ctx context.Context, messageID, viewerID string) error
	DeleteForEveryone(ctx context.Context, messageID, viewerID string) error
	MarkRead(ctx context.Context, conversationID, viewerID string) error
	UserName(ctx context.Context, userID string) (string, error)
}

type Service struct {
	repo  Repository
	hub   realtime.Hub
	newID func() string
}

func NewService(repo Repository, hub realtime.Hub) *Service {
	return &Service{
		repo:  repo,
		hub:   hub,
		newID: func() string { return util.NewID("msg") },
	}
}

func (s *Service) ListConversations(ctx context.Context, viewerID string) ([]store.Conversation, error) {
	return s.repo.ListConversations(ctx, viewerID)
}

// ListMessages returns the rows visible to viewerID, oldest first.
func (s *Service) ListMessages(ctx context.Context, conversationID, viewerID string) ([]store.Message, error) {
	if err := s.requireParticipant(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return Visible(rows, viewerID), nil
}

func (s *Service) CreateMessage(ctx context.Context, conversationID, senderID, text string) (store.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Message{}, ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return store.Message{}, ErrTextTooLong
	}
	if err := s.requireParticipant(ctx, conversationID, senderID); err != nil {
		return store.Message{}, err
	}

	created, err := s.repo.InsertMessage(ctx, store.Message{
		ID:             s.newID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
	})
	if err != nil {
		return store.Message{}, err
	}
	if name, err := s.repo.UserDisplayName(ctx, senderID); err == nil {
		created.SenderName = name
	}

	if s.hub != nil {
		if err := s.hub.Publish(ctx, realtime.RowFromMessage(created)); err != nil {
			// The row is durable; subscribers catch up on their next fetch.
			logging.LogError("realtime_publish", err, map[string]interface{}{
				"conversation_id": conversationID,
				"message_id":      created.ID,
			})
		}
	}
	return created, nil
}

func (s *Service) DeleteForMe(ctx context.Context, messageID, viewerID string) error {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireParticipant(ctx, msg.ConversationID, viewerID); err != nil {
		return err
	}
	return s.repo.DeleteMessageForUser(ctx, messageID, viewerID)
}

func (s *Service) DeleteForEveryone(ctx context.Context, messageID, viewerID string) error {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireParticipant(ctx, msg.ConversationID, viewerID); err != nil {
		return err
	}
	if msg.SenderID != viewerID {
		return ErrNotSender
	}
	return s.repo.DeleteMessageForEveryone(ctx, messageID)
}

func (s *Service) MarkRead(ctx context.Context, conversationID, viewerID string) error {
	if err := s.requireParticipant(ctx, conversationID, viewerID); err != nil {
		return err
	}
	return s.repo.MarkConversationRead(ctx, conversationID, viewerID)
}

func (s *Service) UserName(ctx context.Context, userID string) (string, error) {
	return s.repo.UserDisplayName(ctx, userID)
}

// Subscribe opens a push subscription for a participant.
func (s *Service) Subscribe(ctx context.Context, conversationID, viewerID string) (realtime.Subscription, error) {
	if s.hub == nil {
		return nil, errors.New("realtime hub is not configured")
	}
	if err := s.requireParticipant(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, conversationID)
}

func (s *Service) requireParticipant(ctx context.Context, conversationID, userID string) error {
	ok, err := s.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// Visible drops rows hidden from viewerID, preserving order.
func Visible(rows []store.Message, viewerID string) []store.Message {
	out := make([]store.Message, 0, len(rows))
	for _, m := range rows {
		if m.HiddenFrom(viewerID) {
			continue
		}
		out = append(out, m)
	}
	return out
}
