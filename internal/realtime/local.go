package realtime

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// LocalHub delivers within one process. It is used when Redis is not configured.
type LocalHub struct {
	mu   sync.Mutex
	subs map[string]map[*localSubscription]struct{}
}

func NewLocalHub() *LocalHub {
	return &LocalHub{subs: map[string]map[*localSubscription]struct{}{}}
}

func (h *LocalHub) Publish(_ context.Context, row Row) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[row.ConversationID] {
		select {
		case sub.events <- row:
		default:
			logrus.WithFields(logrus.Fields{
				"conversation_id": row.ConversationID,
				"message_id":      row.ID,
			}).Warn("subscriber buffer full, dropping realtime row")
		}
	}
	return nil
}

func (h *LocalHub) Subscribe(ctx context.Context, conversationID string) (Subscription, error) {
	sub := &localSubscription{
		hub:            h,
		conversationID: conversationID,
		events:         make(chan Row, subscriberBuffer),
	}

	h.mu.Lock()
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = map[*localSubscription]struct{}{}
	}
	h.subs[conversationID][sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()
	return sub, nil
}

func (h *LocalHub) remove(sub *localSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sub.conversationID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.conversationID)
		}
	}
	close(sub.events)
}

type localSubscription struct {
	hub            *LocalHub
	conversationID string
	events         chan Row
	once           sync.Once
}

func (s *localSubscription) Events() <-chan Row {
	return s.events
}

func (s *localSubscription) Close() error {
	s.once.Do(func() { s.hub.remove(s) })
	return nil
}
