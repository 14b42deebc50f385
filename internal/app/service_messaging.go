package app

import (
	"context"
	"strings"

	"taskhub/api/internal/messaging"
	"taskhub/api/internal/store"
)

type DeleteScope string

const (
	DeleteForMe       DeleteScope = "me"
	DeleteForEveryone DeleteScope = "everyone"
)

func (s *Service) Conversations(ctx context.Context, session Session) ([]map[string]any, error) {
	items, err := s.messages.ListConversations(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, c := range items {
		out = append(out, conversationPayload(c))
	}
	return out, nil
}

func (s *Service) Messages(ctx context.Context, session Session, conversationID string) ([]map[string]any, error) {
	rows, err := s.messages.ListMessages(ctx, conversationID, session.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(rows))
	for _, m := range rows {
		out = append(out, messagePayload(m))
	}
	return out, nil
}

func (s *Service) SendMessage(ctx context.Context, session Session, conversationID, text string) (map[string]any, error) {
	msg, err := s.messages.CreateMessage(ctx, conversationID, session.UserID, text)
	if err != nil {
		return nil, err
	}
	return messagePayload(msg), nil
}

func (s *Service) DeleteMessage(ctx context.Context, session Session, messageID string, scope DeleteScope) error {
	switch scope {
	case DeleteForMe, "":
		return s.messages.DeleteForMe(ctx, messageID, session.UserID)
	case DeleteForEveryone:
		return s.messages.DeleteForEveryone(ctx, messageID, session.UserID)
	}
	return validationError("scope must be me or everyone")
}

func (s *Service) MarkConversationRead(ctx context.Context, session Session, conversationID string) error {
	return s.messages.MarkRead(ctx, conversationID, session.UserID)
}

// NewSynchronizer returns a synchronizer for session that follows pushes from the hub.
func (s *Service) NewSynchronizer(session Session, opts ...messaging.Option) *messaging.Synchronizer {
	opts = append([]messaging.Option{messaging.WithSubscriber(s.messages), messaging.WithClock(s.now)}, opts...)
	return messaging.NewSynchronizer(s.messages, session.UserID, opts...)
}

func conversationPayload(c store.Conversation) map[string]any {
	participants := make([]map[string]any, 0, len(c.OtherParticipants))
	names := make([]string, 0, len(c.OtherParticipants))
	for _, p := range c.OtherParticipants {
		participants = append(participants, map[string]any{
			"userId":    p.UserID,
			"name":      p.Name,
			"email":     p.Email,
			"avatarUrl": p.AvatarURL,
		})
		names = append(names, p.Name)
	}
	title := strings.Join(names, ", ")
	if c.Type == store.ConversationGroup && c.GroupName != nil && *c.GroupName != "" {
		title = *c.GroupName
	}
	return map[string]any{
		"id":                c.ID,
		"type":              c.Type,
		"title":             title,
		"groupName":         c.GroupName,
		"lastMessageAt":     c.LastMessageAt,
		"unreadCount":       c.UnreadCount,
		"otherParticipants": participants,
	}
}

func messagePayload(m store.Message) map[string]any {
	return map[string]any{
		"id":             m.ID,
		"conversationId": m.ConversationID,
		"senderId":       m.SenderID,
		"senderName":     m.SenderName,
		"text":           m.Text,
		"createdAt":      m.CreatedAt,
	}
}

func entryPayload(e messaging.Entry) map[string]any {
	payload := messagePayload(e.Message)
	payload["delivery"] = e.Delivery
	return payload
}
