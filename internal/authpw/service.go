// Package authpw provides email/password and guest accounts for chat owners.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/tanmvo/relevance-ai-chat/internal/store"
	"github.com/tanmvo/relevance-ai-chat/internal/util"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// InputError reports a request that failed validation before touching storage.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
}

type Service struct {
	store    UserStore
	validate *validator.Validate
	cost     int
}

func NewService(userStore UserStore) *Service {
	return &Service{
		store:    userStore,
		validate: validator.New(),
		cost:     bcrypt.DefaultCost,
	}
}

type SignUpRequest struct {
	Email       string `validate:"required,email"`
	Password    string `validate:"required,min=8,max=72"`
	DisplayName string
}

func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return store.User{}, signUpInputError(err)
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return store.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.User{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = strings.SplitN(req.Email, "@", 2)[0]
	}
	user, err := s.store.CreateUser(ctx, store.User{
		Email:        req.Email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
	})
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func signUpInputError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Field() {
		case "Email":
			return &InputError{Message: "a valid email is required"}
		case "Password":
			return &InputError{Message: "password must be between 8 and 72 characters"}
		}
	}
	return &InputError{Message: "invalid sign up request"}
}

type SignInRequest struct {
	Email    string
	Password string
}

func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return store.User{}, &InputError{Message: "email and password are required"}
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup email: %w", err)
	}
	if user.IsGuest || user.PasswordHash == "" {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Guest creates a throwaway account so a visitor can plan a trip without signing up.
func (s *Service) Guest(ctx context.Context) (store.User, error) {
	user, err := s.store.CreateUser(ctx, store.User{
		Email:       "guest-" + util.NewID() + "@guest.local",
		DisplayName: "Guest",
		IsGuest:     true,
	})
	if err != nil {
		return store.User{}, fmt.Errorf("create guest: %w", err)
	}
	return user, nil
}
