package authpw

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"taskhub/api/internal/store"
)

type mockUserStore struct {
	users      map[string]store.User
	lookupErr  error
	createCall int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: map[string]store.User{}}
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	if m.lookupErr != nil {
		return store.User{}, m.lookupErr
	}
	if user, ok := m.users[email]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) CreateUser(_ context.Context, user store.User) error {
	m.createCall++
	m.users[user.Email] = user
	return nil
}

func newTestService(st UserStore) *Service {
	svc := NewService(st)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestProvisionAndSignIn(t *testing.T) {
	st := newMockUserStore()
	svc := newTestService(st)
	ctx := context.Background()

	user, err := svc.Provision(ctx, ProvisionRequest{
		Email:           " New.Person@Example.com ",
		DisplayName:     "New Person",
		Password:        "correct horse",
		ConfirmPassword: "correct horse",
	})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if user.Email != "new.person@example.com" || user.PasswordHash == "correct horse" {
		t.Fatalf("unexpected user: %+v", user)
	}

	signedIn, err := svc.SignIn(ctx, "NEW.PERSON@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if signedIn.ID != user.ID {
		t.Fatalf("signed in as %s, want %s", signedIn.ID, user.ID)
	}
	if _, err := svc.SignIn(ctx, "new.person@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.SignIn(ctx, "nobody@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestProvisionValidatesBeforeWriting(t *testing.T) {
	cases := []struct {
		name string
		req  ProvisionRequest
		want error
	}{
		{name: "short password", req: ProvisionRequest{Email: "a@b.c", DisplayName: "A", Password: "short", ConfirmPassword: "short"}, want: ErrPasswordTooShort},
		{name: "mismatch", req: ProvisionRequest{Email: "a@b.c", DisplayName: "A", Password: "longenough", ConfirmPassword: "different1"}, want: ErrPasswordMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newMockUserStore()
			if _, err := newTestService(st).Provision(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if st.createCall != 0 {
				t.Fatal("store written despite validation failure")
			}
		})
	}

	st := newMockUserStore()
	if _, err := newTestService(st).Provision(context.Background(), ProvisionRequest{Password: "longenough", ConfirmPassword: "longenough"}); err == nil {
		t.Fatal("expected error for missing email and name")
	}
}

func TestProvisionRejectsDuplicateEmail(t *testing.T) {
	st := newMockUserStore()
	st.users["taken@example.com"] = store.User{ID: "usr_1", Email: "taken@example.com"}
	_, err := newTestService(st).Provision(context.Background(), ProvisionRequest{
		Email: "taken@example.com", DisplayName: "T", Password: "longenough", ConfirmPassword: "longenough",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestProvisionSurfacesLookupFailure(t *testing.T) {
	st := newMockUserStore()
	st.lookupErr = errors.New("connection refused")
	_, err := newTestService(st).Provision(context.Background(), ProvisionRequest{
		Email: "x@example.com", DisplayName: "X", Password: "longenough", ConfirmPassword: "longenough",
	})
	if err == nil || errors.Is(err, ErrEmailTaken) || !errors.Is(err, st.lookupErr) {
		t.Fatalf("expected wrapped lookup error, got %v", err)
	}
}
