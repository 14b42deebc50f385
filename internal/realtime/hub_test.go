package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func hubs(t *testing.T) map[string]Hub {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Hub{
		"redis": NewRedisHub(client),
		"local": NewLocalHub(),
	}
}

func receive(t *testing.T, sub Subscription) Row {
	t.Helper()
	select {
	case row, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed before delivering")
		}
		return row
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for row")
	}
	return Row{}
}

func TestPublishReachesOnlyThatConversation(t *testing.T) {
	for name, hub := range hubs(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			mine, err := hub.Subscribe(ctx, "cnv_1")
			if err != nil {
				t.Fatalf("subscribe: %v", err)
			}
			defer mine.Close()
			other, err := hub.Subscribe(ctx, "cnv_2")
			if err != nil {
				t.Fatalf("subscribe: %v", err)
			}
			defer other.Close()

			created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
			if err := hub.Publish(ctx, Row{ID: "msg_1", ConversationID: "cnv_1", SenderID: "usr_a", Text: "hi", CreatedAt: created}); err != nil {
				t.Fatalf("publish: %v", err)
			}

			row := receive(t, mine)
			if row.ID != "msg_1" || row.Text != "hi" || !row.CreatedAt.Equal(created) {
				t.Fatalf("unexpected row %+v", row)
			}
			select {
			case row := <-other.Events():
				t.Fatalf("cnv_2 received %+v", row)
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	for name, hub := range hubs(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			sub, err := hub.Subscribe(ctx, "cnv_1")
			if err != nil {
				t.Fatalf("subscribe: %v", err)
			}
			cancel()

			deadline := time.After(2 * time.Second)
			for {
				select {
				case _, ok := <-sub.Events():
					if !ok {
						return
					}
				case <-deadline:
					t.Fatal("events channel not closed after cancel")
				}
			}
		})
	}
}

func TestRowMessageRoundTripKeepsFlags(t *testing.T) {
	row := Row{ID: "msg_1", ConversationID: "cnv_1", DeletedForEveryone: true}
	m := row.Message()
	if !m.DeletedForEveryone || m.DeletedByUserIDs == nil || m.SenderName != "" {
		t.Fatalf("unexpected message %+v", m)
	}
	if back := RowFromMessage(m); back.ID != row.ID || !back.DeletedForEveryone {
		t.Fatalf("unexpected row %+v", back)
	}
}
