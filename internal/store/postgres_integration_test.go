package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn, PoolOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPostgresStore(db), ctx
}

func mustExec(t *testing.T, ctx context.Context, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func TestConversationLifecyclePostgres(t *testing.T) {
	s, ctx := openTestStore(t)
	db := s.DB()

	for _, u := range []User{
		{ID: "usr_a", Email: "a@example.com", DisplayName: "Ada"},
		{ID: "usr_b", Email: "b@example.com", DisplayName: "Bo"},
	} {
		if err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	mustExec(t, ctx, db, `INSERT INTO conversations (id, type) VALUES ('cnv_1', 'direct')`)
	mustExec(t, ctx, db, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ('cnv_1', 'usr_a'), ('cnv_1', 'usr_b')`)

	ok, err := s.IsParticipant(ctx, "cnv_1", "usr_a")
	if err != nil || !ok {
		t.Fatalf("IsParticipant = %v, %v", ok, err)
	}

	sent, err := s.InsertMessage(ctx, Message{ID: "msg_1", ConversationID: "cnv_1", SenderID: "usr_a", Text: "hi"})
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if sent.CreatedAt.IsZero() {
		t.Fatal("expected created_at from the database")
	}

	convs, err := s.ListConversations(ctx, "usr_b")
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 1 || convs[0].UnreadCount != 1 || convs[0].LastMessageAt == nil {
		t.Fatalf("unexpected conversations: %+v", convs)
	}
	if len(convs[0].OtherParticipants) != 1 || convs[0].OtherParticipants[0].Name != "Ada" {
		t.Fatalf("unexpected participants: %+v", convs[0].OtherParticipants)
	}

	if err := s.MarkConversationRead(ctx, "cnv_1", "usr_b"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	convs, err = s.ListConversations(ctx, "usr_b")
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if convs[0].UnreadCount != 0 {
		t.Fatalf("unread after read = %d", convs[0].UnreadCount)
	}

	if err := s.DeleteMessageForUser(ctx, "msg_1", "usr_b"); err != nil {
		t.Fatalf("delete for user: %v", err)
	}
	// A second delete for the same user must not duplicate the id.
	if err := s.DeleteMessageForUser(ctx, "msg_1", "usr_b"); err != nil {
		t.Fatalf("delete for user twice: %v", err)
	}
	got, err := s.GetMessage(ctx, "msg_1")
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if len(got.DeletedByUserIDs) != 1 || !got.HiddenFrom("usr_b") || got.HiddenFrom("usr_a") {
		t.Fatalf("unexpected per-user deletion state: %+v", got)
	}
	if got.SenderName != "Ada" {
		t.Fatalf("sender name = %q", got.SenderName)
	}

	if err := s.DeleteMessageForEveryone(ctx, "msg_1"); err != nil {
		t.Fatalf("delete for everyone: %v", err)
	}
	got, err = s.GetMessage(ctx, "msg_1")
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if !got.DeletedForEveryone || !got.HiddenFrom("usr_a") {
		t.Fatalf("expected message hidden from everyone: %+v", got)
	}

	if _, err := s.GetMessage(ctx, "msg_missing"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTodoOwnershipPostgres(t *testing.T) {
	s, ctx := openTestStore(t)
	db := s.DB()

	if err := s.CreateUser(ctx, User{ID: "usr_a", Email: "a@example.com", DisplayName: "Ada"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, User{ID: "usr_b", Email: "b@example.com", DisplayName: "Bo"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	mustExec(t, ctx, db, `INSERT INTO todos (id, user_id, title) VALUES ('td_1', 'usr_a', 'write'), ('td_2', 'usr_a', 'ship')`)

	if err := s.CompleteTodo(ctx, "usr_b", "td_1"); !IsNotFound(err) {
		t.Fatalf("completing another user's todo should be not found, got %v", err)
	}
	if err := s.CompleteTodo(ctx, "usr_a", "td_1"); err != nil {
		t.Fatalf("complete todo: %v", err)
	}
	if err := s.DeleteTodo(ctx, "usr_a", "td_2"); err != nil {
		t.Fatalf("delete todo: %v", err)
	}

	todos, err := s.ListTodos(ctx, "usr_a")
	if err != nil {
		t.Fatalf("list todos: %v", err)
	}
	if len(todos) != 1 || !todos[0].Completed || todos[0].CompletedAt == nil {
		t.Fatalf("unexpected todos: %+v", todos)
	}
}

func TestDepartmentMembersKeepInsertOrderPostgres(t *testing.T) {
	s, ctx := openTestStore(t)
	db := s.DB()

	for _, id := range []string{"usr_a", "usr_b"} {
		if err := s.CreateUser(ctx, User{ID: id, Email: id + "@example.com", DisplayName: id}); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	mustExec(t, ctx, db, `INSERT INTO departments (id, name) VALUES ('dep_1', 'Ops')`)
	mustExec(t, ctx, db, `INSERT INTO department_members (id, department_id, user_id, created_at) VALUES ('dm_a', 'dep_1', 'usr_a', NOW() - INTERVAL '1 minute')`)
	mustExec(t, ctx, db, `INSERT INTO department_members (id, department_id, user_id, manager_id) VALUES ('dm_b', 'dep_1', 'usr_b', 'dm_a')`)

	members, err := s.ListDepartmentMembers(ctx, "dep_1")
	if err != nil {
		t.Fatalf("list department members: %v", err)
	}
	if len(members) != 2 || members[0].ID != "dm_a" || members[0].ManagerID != nil {
		t.Fatalf("unexpected members: %+v", members)
	}
	if members[1].ManagerID == nil || *members[1].ManagerID != "dm_a" {
		t.Fatalf("expected dm_b managed by dm_a: %+v", members[1])
	}
}
