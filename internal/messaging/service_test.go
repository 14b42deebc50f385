package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"taskhub/api/internal/realtime"
	"taskhub/api/internal/store"
)

// memRepo is an in-memory Repository keyed the same way the Postgres tables are.
type memRepo struct {
	mu           sync.Mutex
	participants map[string]map[string]bool
	messages     map[string]store.Message
	names        map[string]string
	readAt       map[string]time.Time
	clock        time.Time
	seq          int
	insertErr    error
}

func newMemRepo() *memRepo {
	return &memRepo{
		participants: map[string]map[string]bool{},
		messages:     map[string]store.Message{},
		names:        map[string]string{},
		readAt:       map[string]time.Time{},
		clock:        time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (r *memRepo) join(conversationID string, userIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.participants[conversationID] == nil {
		r.participants[conversationID] = map[string]bool{}
	}
	for _, id := range userIDs {
		r.participants[conversationID][id] = true
	}
}

func (r *memRepo) ListConversations(_ context.Context, userID string) ([]store.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []store.Conversation{}
	for id, members := range r.participants {
		if !members[userID] {
			continue
		}
		c := store.Conversation{ID: id, Type: store.ConversationDirect}
		for _, m := range r.messages {
			if m.ConversationID == id && m.SenderID != userID && m.CreatedAt.After(r.readAt[id+"/"+userID]) && !m.HiddenFrom(userID) {
				c.UnreadCount++
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participants[conversationID][userID], nil
}

func (r *memRepo) ListMessages(_ context.Context, conversationID string) ([]store.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []store.Message{}
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			m.SenderName = r.names[m.SenderID]
			m.DeletedByUserIDs = append([]string{}, m.DeletedByUserIDs...)
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) GetMessage(_ context.Context, messageID string) (store.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok {
		return store.Message{}, sql.ErrNoRows
	}
	return m, nil
}

func (r *memRepo) InsertMessage(_ context.Context, m store.Message) (store.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return store.Message{}, r.insertErr
	}
	r.seq++
	m.CreatedAt = r.clock.Add(time.Duration(r.seq) * time.Second)
	m.DeletedByUserIDs = []string{}
	r.messages[m.ID] = m
	return m, nil
}

func (r *memRepo) DeleteMessageForUser(_ context.Context, messageID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.messages[messageID]
	for _, id := range m.DeletedByUserIDs {
		if id == userID {
			return nil
		}
	}
	m.DeletedByUserIDs = append(m.DeletedByUserIDs, userID)
	r.messages[messageID] = m
	return nil
}

func (r *memRepo) DeleteMessageForEveryone(_ context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.messages[messageID]
	m.DeletedForEveryone = true
	m.IsDeleted = true
	r.messages[messageID] = m
	return nil
}

func (r *memRepo) MarkConversationRead(_ context.Context, conversationID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readAt[conversationID+"/"+userID] = r.clock.Add(time.Duration(r.seq) * time.Second)
	return nil
}

func (r *memRepo) UserDisplayName(_ context.Context, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.names[userID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return name, nil
}

func newTestService(repo *memRepo, hub realtime.Hub) *Service {
	svc := NewService(repo, hub)
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("msg_%d", n)
	}
	return svc
}

func TestCreateMessageValidatesBeforeWriting(t *testing.T) {
	repo := newMemRepo()
	repo.join("cnv_1", "usr_a", "usr_b")
	svc := newTestService(repo, nil)
	ctx := context.Background()

	if _, err := svc.CreateMessage(ctx, "cnv_1", "usr_a", "   "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if _, err := svc.CreateMessage(ctx, "cnv_1", "usr_x", "hi"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if len(repo.messages) != 0 {
		t.Fatalf("nothing should be written, got %d rows", len(repo.messages))
	}
}

func TestCreateMessageCountsCharactersNotBytes(t *testing.T) {
	repo := newMemRepo()
	repo.join("cnv_1", "usr_a", "usr_b")
	svc := newTestService(repo, nil)
	ctx := context.Background()

	// 3000 two-byte runes sit under the limit even though they take 6000 bytes.
	if _, err := svc.CreateMessage(ctx, "cnv_1", "usr_a", strings.Repeat("é", 3000)); err != nil {
		t.Fatalf("multibyte text under the limit: %v", err)
	}
	if _, err := svc.CreateMessage(ctx, "cnv_1", "usr_a", strings.Repeat("é", MaxTextLength+1)); !errors.Is(err, ErrTextTooLong) {
		t.Fatalf("expected ErrTextTooLong, got %v", err)
	}
	if len(repo.messages) != 1 {
		t.Fatalf("expected only the first message to be written, got %d rows", len(repo.messages))
	}
}

func TestCreateMessagePublishesRawRow(t *testing.T) {
	repo := newMemRepo()
	repo.join("cnv_1", "usr_a", "usr_b")
	repo.names["usr_a"] = "Ada"
	hub := realtime.NewLocalHub()
	svc := newTestService(repo, hub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := svc.Subscribe(ctx, "cnv_1", "usr_b")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	created, err := svc.CreateMessage(ctx, "cnv_1", "usr_a", " hello ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Text != "hello" || created.SenderName != "Ada" {
		t.Fatalf("unexpected created message %+v", created)
	}

	select {
	case row := <-sub.Events():
		if row.ID != created.ID || row.Text != "hello" {
			t.Fatalf("unexpected pushed row %+v", row)
		}
	case <-time.After(time.Second):
		t.Fatal("no push received")
	}
}

func TestSubscribeRequiresParticipant(t *testing.T) {
	repo := newMemRepo()
	repo.join("cnv_1", "usr_a")
	svc := newTestService(repo, realtime.NewLocalHub())
	if _, err := svc.Subscribe(context.Background(), "cnv_1", "usr_z"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestDeleteForEveryoneOnlyBySender(t *testing.T) {
	repo := newMemRepo()
	repo.join("cnv_1", "usr_a", "usr_b")
	svc := newTestService(repo, nil)
	ctx := context.Background()

	m, err := svc.CreateMessage(ctx, "cnv_1", "usr_a", "mine")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeleteForEveryone(ctx, m.ID, "usr_b"); !errors.Is(err, ErrNotSender) {
		t.Fatalf("expected ErrNotSender, got %v", err)
	}
	if err := svc.DeleteForEveryone(ctx, m.ID, "usr_a"); err != nil {
		t.Fatalf("sender delete: %v", err)
	}
	for _, viewer := range []string{"usr_a", "usr_b"} {
		rows, err := svc.ListMessages(ctx, "cnv_1", viewer)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(rows) != 0 {
			t.Fatalf("%s still sees %d messages", viewer, len(rows))
		}
	}
}

func TestDeleteForMeHidesOnlyFromViewer(t *testing.T) {
	repo := newMemRepo()
	repo.join("cnv_1", "usr_a", "usr_b")
	svc := newTestService(repo, nil)
	ctx := context.Background()

	m, err := svc.CreateMessage(ctx, "cnv_1", "usr_a", "theirs")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeleteForMe(ctx, m.ID, "usr_b"); err != nil {
		t.Fatalf("delete for me: %v", err)
	}
	if rows, _ := svc.ListMessages(ctx, "cnv_1", "usr_b"); len(rows) != 0 {
		t.Fatalf("usr_b should not see the message, got %d", len(rows))
	}
	if rows, _ := svc.ListMessages(ctx, "cnv_1", "usr_a"); len(rows) != 1 {
		t.Fatalf("usr_a should still see the message, got %d", len(rows))
	}
	if err := svc.DeleteForMe(ctx, "msg_missing", "usr_b"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestVisible(t *testing.T) {
	rows := []store.Message{
		{ID: "1"},
		{ID: "2", DeletedForEveryone: true},
		{ID: "3", DeletedByUserIDs: []string{"usr_b"}},
		{ID: "4", DeletedByUserIDs: []string{"usr_a"}},
	}
	got := Visible(rows, "usr_a")
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("unexpected visible rows %+v", got)
	}
}
