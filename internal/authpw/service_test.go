package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/tanmvo/relevance-ai-chat/internal/store"
)

type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	user.ID = fmt.Sprintf("user-%d", len(m.users)+1)
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return user, nil
}

func newTestService() (*Service, *mockUserStore) {
	mockStore := newMockUserStore()
	svc := NewService(mockStore)
	svc.cost = bcrypt.MinCost
	return svc, mockStore
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	svc, mockStore := newTestService()

	t.Run("successful sign up", func(t *testing.T) {
		user, err := svc.SignUp(ctx, SignUpRequest{Email: " Test@Example.com ", Password: "password123"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID == "" {
			t.Error("expected ID to be set")
		}
		if user.Email != "test@example.com" {
			t.Errorf("expected normalized email, got %s", user.Email)
		}
		if user.DisplayName != "test" {
			t.Errorf("expected display name from email, got %s", user.DisplayName)
		}
		if user.PasswordHash == "password123" || mockStore.users[user.ID].PasswordHash == "" {
			t.Error("expected password to be hashed")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: "test@example.com", Password: "password123"})
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: "test2@example.com", Password: "short"})
		var inputErr *InputError
		if !errors.As(err, &inputErr) || !strings.Contains(inputErr.Message, "password") {
			t.Errorf("expected password input error, got %v", err)
		}
	})

	t.Run("bad email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: "nope", Password: "password123"})
		var inputErr *InputError
		if !errors.As(err, &inputErr) || !strings.Contains(inputErr.Message, "email") {
			t.Errorf("expected email input error, got %v", err)
		}
	})
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "test@example.com", Password: "password123", DisplayName: "Test User"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	t.Run("successful sign in", func(t *testing.T) {
		user, err := svc.SignIn(ctx, SignInRequest{Email: "TEST@example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.DisplayName != "Test User" {
			t.Errorf("expected Test User, got %s", user.DisplayName)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "wrongpassword"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "ghost@example.com", Password: "password123"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{})
		var inputErr *InputError
		if !errors.As(err, &inputErr) {
			t.Errorf("expected input error, got %v", err)
		}
	})
}

func TestGuestCannotSignInWithPassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	guest, err := svc.Guest(ctx)
	if err != nil {
		t.Fatalf("guest: %v", err)
	}
	if !guest.IsGuest || !strings.HasPrefix(guest.Email, "guest-") {
		t.Fatalf("unexpected guest user %+v", guest)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: guest.Email, Password: "anything123"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected guest sign in to fail, got %v", err)
	}
}
