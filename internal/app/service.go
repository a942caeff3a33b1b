package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tanmvo/relevance-ai-chat/internal/auth"
	"github.com/tanmvo/relevance-ai-chat/internal/authpw"
	"github.com/tanmvo/relevance-ai-chat/internal/config"
	"github.com/tanmvo/relevance-ai-chat/internal/email"
	"github.com/tanmvo/relevance-ai-chat/internal/events"
	"github.com/tanmvo/relevance-ai-chat/internal/export"
	"github.com/tanmvo/relevance-ai-chat/internal/history"
	"github.com/tanmvo/relevance-ai-chat/internal/search"
	"github.com/tanmvo/relevance-ai-chat/internal/store"
	"github.com/tanmvo/relevance-ai-chat/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	IsGuest      bool
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)

	SaveChat(context.Context, store.Chat) (store.Chat, error)
	GetChat(context.Context, string) (store.Chat, error)
	ListChatsByUser(context.Context, string, int, string, string) (store.ChatPage, error)
	UpdateChatVisibility(context.Context, string, string) error
	UpdateChatTitle(context.Context, string, string) error
	DeleteChat(context.Context, string) (store.Chat, error)
	DeleteChatsByUser(context.Context, string) (int, error)

	CreateItinerary(context.Context, string) (store.Itinerary, error)
	GetItineraryByChat(context.Context, string) (*store.Itinerary, error)
	GetItinerary(context.Context, string) (store.Itinerary, error)
	UpdateItineraryMetadata(context.Context, string, store.ItineraryPatch) (store.Itinerary, error)

	AddItineraryItem(context.Context, store.ItineraryItem) (store.ItineraryItem, error)
	RemoveItineraryItem(context.Context, string) error
	ListItineraryItems(context.Context, string) ([]store.ItineraryItem, error)
	UpsertSlotItem(context.Context, store.ItineraryItem) (store.ItineraryItem, bool, error)

	CreatePoll(context.Context, string, string, string, []store.NewPollOption) (store.Poll, error)
	GetPoll(context.Context, string) (store.Poll, error)
	ListPollsByChat(context.Context, string) ([]store.Poll, error)
	CastVote(context.Context, string, string, string) (store.PollVote, error)
	SubmitPoll(context.Context, string) (store.Poll, error)

	Ping(ctx context.Context) error
}

// sessionStore holds refresh sessions and revoked access tokens. Postgres and
// Redis both satisfy it.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	Ping(ctx context.Context) error
}

type passwordAuth interface {
	SignUp(context.Context, authpw.SignUpRequest) (store.User, error)
	SignIn(context.Context, authpw.SignInRequest) (store.User, error)
	Guest(context.Context) (store.User, error)
}

type historyLog interface {
	Record(string, history.Snapshot, string, string) (history.Revision, bool, error)
	Log(string, int) ([]history.Revision, error)
	Get(string, string) (history.Snapshot, history.Revision, error)
	Remove(string) error
}

type searchIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexItem(search.ItemRecord)
	IndexPoll(search.PollRecord)
	DeleteItem(string)
	Forget([]string, []string)
}

type exporter interface {
	Export(context.Context, export.Document, export.Format) (*export.Result, error)
}

type mailer interface {
	IsConfigured() bool
	SendPollInvite([]string, email.PollInviteData) error
}

// Dependencies are the optional collaborators wired in by cmd/api. Nil fields
// fall back to in-process or disabled implementations.
type Dependencies struct {
	Sessions sessionStore
	Events   events.Bus
	History  *history.Service
	Search   *search.Service
	Export   *export.Service
	Mail     *email.Service
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords passwordAuth
	events    events.Bus
	history   historyLog
	search    searchIndex
	exporter  exporter
	mail      mailer
}

func New(cfg config.Config, dataStore *store.PostgresStore, deps Dependencies) *Service {
	s := &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  dataStore,
		passwords: authpw.NewService(dataStore),
		events:    events.NewMemoryBus(),
		search:    search.NewService(nil, nil),
		exporter:  export.NewService(nil),
		mail:      email.NewService(email.Config{}),
	}
	if deps.Sessions != nil {
		s.sessions = deps.Sessions
	}
	if deps.Events != nil {
		s.events = deps.Events
	}
	if deps.History != nil {
		s.history = deps.History
	}
	if deps.Search != nil {
		s.search = deps.Search
	}
	if deps.Export != nil {
		s.exporter = deps.Export
	}
	if deps.Mail != nil {
		s.mail = deps.Mail
	}
	return s
}

func (s *Service) Events() events.Bus {
	return s.events
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		var inputErr *authpw.InputError
		switch {
		case errors.As(err, &inputErr):
			return Session{}, badRequest("auth", inputErr.Message)
		case errors.Is(err, authpw.ErrEmailTaken):
			return Session{}, badRequest("auth", "Email already registered")
		}
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.passwords.SignIn(ctx, req)
	if err != nil {
		var inputErr *authpw.InputError
		switch {
		case errors.As(err, &inputErr):
			return Session{}, badRequest("auth", inputErr.Message)
		case errors.Is(err, authpw.ErrInvalidCredentials):
			return Session{}, unauthorized("auth", "Invalid email or password")
		}
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Guest(ctx context.Context) (Session, error) {
	user, err := s.passwords.Guest(ctx)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The Redis session store only knows the user id.
	user, err := s.store.GetUserByID(ctx, owner.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewToken("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Guest: user.IsGuest,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refreshTTL := s.cfg.RefreshTTL
	if user.IsGuest && s.cfg.GuestTTL > 0 {
		refreshTTL = s.cfg.GuestTTL
	}
	refresh := util.NewToken("rft") + util.NewToken("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(refreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		IsGuest:      user.IsGuest,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		IsGuest:   user.IsGuest,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// Ping checks the database.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingSessions checks the session store when it is separate from the database.
// ok is false when sessions live in Postgres.
func (s *Service) PingSessions(ctx context.Context) (ok bool, err error) {
	if s.cfg.RedisURL == "" {
		return false, nil
	}
	return true, s.sessions.Ping(ctx)
}
