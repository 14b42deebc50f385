package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisHub publishes rows on one Redis channel per conversation.
type RedisHub struct {
	client *redis.Client
}

func NewRedisHub(client *redis.Client) *RedisHub {
	return &RedisHub{client: client}
}

func (h *RedisHub) Publish(ctx context.Context, row Row) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}
	if err := h.client.Publish(ctx, channelName(row.ConversationID), payload).Err(); err != nil {
		return fmt.Errorf("publish row: %w", err)
	}
	return nil
}

func (h *RedisHub) Subscribe(ctx context.Context, conversationID string) (Subscription, error) {
	pubsub := h.client.Subscribe(ctx, channelName(conversationID))
	// The first reply confirms the SUBSCRIBE so no publish after this point is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", conversationID, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan Row, subscriberBuffer),
		done:   make(chan struct{}),
	}
	go sub.run(ctx)
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan Row
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Events() <-chan Row {
	return s.events
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisSubscription) run(ctx context.Context) {
	defer close(s.events)
	messages := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var row Row
			if err := json.Unmarshal([]byte(msg.Payload), &row); err != nil {
				logrus.WithError(err).WithField("channel", msg.Channel).Warn("dropping malformed realtime payload")
				continue
			}
			select {
			case s.events <- row:
			case <-ctx.Done():
				_ = s.Close()
				return
			case <-s.done:
				return
			}
		}
	}
}
