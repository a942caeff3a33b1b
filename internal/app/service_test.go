package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
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

const testSecret = "test-secret"

// fakeStore keeps rows in memory. The xxxFn fields override single methods.
type fakeStore struct {
	mu          sync.Mutex
	clock       time.Time
	users       map[string]store.User
	chats       map[string]store.Chat
	itineraries map[string]store.Itinerary
	items       []store.ItineraryItem
	polls       map[string]store.Poll
	refresh     map[string]string
	revoked     map[string]bool

	pingFn        func(context.Context) error
	getUserByIDFn func(context.Context, string) (store.User, error)
	castVoteFn    func(context.Context, string, string, string) (store.PollVote, error)
	submitPollFn  func(context.Context, string) (store.Poll, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clock:       time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		users:       map[string]store.User{},
		chats:       map[string]store.Chat{},
		itineraries: map[string]store.Itinerary{},
		polls:       map[string]store.Poll{},
		refresh:     map[string]string{},
		revoked:     map[string]bool{},
	}
}

// tick returns a strictly increasing timestamp so ordering by time is stable.
func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.ID = util.NewID()
	user.CreatedAt = f.tick()
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, addr string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, addr) {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[tokenHash]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return store.User{ID: userID}, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) SaveChat(_ context.Context, chat store.Chat) (store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if chat.Visibility == "" {
		chat.Visibility = store.VisibilityPrivate
	}
	chat.CreatedAt = f.tick()
	f.chats[chat.ID] = chat
	return chat, nil
}

func (f *fakeStore) GetChat(_ context.Context, chatID string) (store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[chatID]
	if !ok {
		return store.Chat{}, store.ErrNotFound
	}
	return chat, nil
}

func (f *fakeStore) ListChatsByUser(_ context.Context, userID string, limit int, startingAfter, endingBefore string) (store.ChatPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var chats []store.Chat
	for _, chat := range f.chats {
		if chat.UserID == userID {
			chats = append(chats, chat)
		}
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].CreatedAt.After(chats[j].CreatedAt) })
	if endingBefore != "" {
		cursor, ok := f.chats[endingBefore]
		if !ok {
			return store.ChatPage{}, store.ErrNotFound
		}
		var older []store.Chat
		for _, chat := range chats {
			if chat.CreatedAt.Before(cursor.CreatedAt) {
				older = append(older, chat)
			}
		}
		chats = older
	}
	if startingAfter != "" {
		if _, ok := f.chats[startingAfter]; !ok {
			return store.ChatPage{}, store.ErrNotFound
		}
	}
	page := store.ChatPage{Chats: chats, HasMore: len(chats) > limit}
	if page.HasMore {
		page.Chats = chats[:limit]
	}
	return page, nil
}

func (f *fakeStore) UpdateChatVisibility(_ context.Context, chatID, visibility string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[chatID]
	if !ok {
		return store.ErrNotFound
	}
	chat.Visibility = visibility
	f.chats[chatID] = chat
	return nil
}

func (f *fakeStore) UpdateChatTitle(_ context.Context, chatID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[chatID]
	if !ok {
		return store.ErrNotFound
	}
	chat.Title = title
	f.chats[chatID] = chat
	return nil
}

// deleteChatLocked drops the chat and everything hanging off it.
func (f *fakeStore) deleteChatLocked(chatID string) {
	for id, it := range f.itineraries {
		if it.ChatID != chatID {
			continue
		}
		kept := f.items[:0]
		for _, item := range f.items {
			if item.ItineraryID != id {
				kept = append(kept, item)
			}
		}
		f.items = kept
		delete(f.itineraries, id)
	}
	for id, poll := range f.polls {
		if poll.ChatID == chatID {
			delete(f.polls, id)
		}
	}
	delete(f.chats, chatID)
}

func (f *fakeStore) DeleteChat(_ context.Context, chatID string) (store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[chatID]
	if !ok {
		return store.Chat{}, store.ErrNotFound
	}
	f.deleteChatLocked(chatID)
	return chat, nil
}

func (f *fakeStore) DeleteChatsByUser(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for id, chat := range f.chats {
		if chat.UserID == userID {
			f.deleteChatLocked(id)
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CreateItinerary(_ context.Context, chatID string) (store.Itinerary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.itineraries {
		if it.ChatID == chatID {
			return it, nil
		}
	}
	now := f.tick()
	it := store.Itinerary{ID: util.NewID(), ChatID: chatID, CreatedAt: now, UpdatedAt: now}
	f.itineraries[it.ID] = it
	return it, nil
}

func (f *fakeStore) GetItineraryByChat(_ context.Context, chatID string) (*store.Itinerary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.itineraries {
		if it.ChatID == chatID {
			found := it
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetItinerary(_ context.Context, itineraryID string) (store.Itinerary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.itineraries[itineraryID]
	if !ok {
		return store.Itinerary{}, store.ErrNotFound
	}
	return it, nil
}

func (f *fakeStore) UpdateItineraryMetadata(_ context.Context, itineraryID string, patch store.ItineraryPatch) (store.Itinerary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.itineraries[itineraryID]
	if !ok {
		return store.Itinerary{}, store.ErrNotFound
	}
	if patch.TripName != nil {
		it.TripName = patch.TripName
	}
	if patch.Destination != nil {
		it.Destination = patch.Destination
	}
	if patch.StartDate != nil {
		it.StartDate = patch.StartDate
	}
	if patch.EndDate != nil {
		it.EndDate = patch.EndDate
	}
	if patch.Adults != nil {
		it.Adults = *patch.Adults
	}
	if patch.Children != nil {
		it.Children = *patch.Children
	}
	it.UpdatedAt = f.tick()
	f.itineraries[itineraryID] = it
	return it, nil
}

func (f *fakeStore) AddItineraryItem(_ context.Context, item store.ItineraryItem) (store.ItineraryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ID = util.NewID()
	item.CreatedAt = f.tick()
	f.items = append(f.items, item)
	return item, nil
}

func (f *fakeStore) RemoveItineraryItem(_ context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, item := range f.items {
		if item.ID == itemID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) ListItineraryItems(_ context.Context, itineraryID string) ([]store.ItineraryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []store.ItineraryItem
	for _, item := range f.items {
		if item.ItineraryID == itineraryID {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Day != items[j].Day {
			return items[i].Day < items[j].Day
		}
		if items[i].SortOrder != items[j].SortOrder {
			return items[i].SortOrder < items[j].SortOrder
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (f *fakeStore) UpsertSlotItem(_ context.Context, item store.ItineraryItem) (store.ItineraryItem, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.items {
		if existing.ItineraryID == item.ItineraryID && existing.Day == item.Day &&
			existing.TimeBlock == item.TimeBlock && existing.Type == item.Type {
			item.ID = existing.ID
			item.CreatedAt = existing.CreatedAt
			f.items[i] = item
			return item, false, nil
		}
	}
	item.ID = util.NewID()
	item.CreatedAt = f.tick()
	f.items = append(f.items, item)
	return item, true, nil
}

func (f *fakeStore) CreatePoll(_ context.Context, chatID, itineraryID, question string, options []store.NewPollOption) (store.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.tick()
	poll := store.Poll{
		ID:          util.NewID(),
		ChatID:      chatID,
		ItineraryID: itineraryID,
		Question:    question,
		Type:        store.PollTypeMultipleChoice,
		Status:      store.PollActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for i, option := range options {
		poll.Options = append(poll.Options, store.PollOption{
			ID:          util.NewID(),
			PollID:      poll.ID,
			Label:       option.Label,
			Description: option.Description,
			SortOrder:   i,
		})
	}
	f.polls[poll.ID] = poll
	return poll, nil
}

func (f *fakeStore) GetPoll(_ context.Context, pollID string) (store.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	poll, ok := f.polls[pollID]
	if !ok {
		return store.Poll{}, store.ErrNotFound
	}
	return poll, nil
}

func (f *fakeStore) ListPollsByChat(_ context.Context, chatID string) ([]store.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var polls []store.Poll
	for _, poll := range f.polls {
		if poll.ChatID == chatID {
			polls = append(polls, poll)
		}
	}
	sort.Slice(polls, func(i, j int) bool { return polls[i].CreatedAt.After(polls[j].CreatedAt) })
	return polls, nil
}

func (f *fakeStore) CastVote(ctx context.Context, pollID, optionID, voterName string) (store.PollVote, error) {
	if f.castVoteFn != nil {
		return f.castVoteFn(ctx, pollID, optionID, voterName)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	poll, ok := f.polls[pollID]
	if !ok {
		return store.PollVote{}, store.ErrNotFound
	}
	if poll.Status == store.PollSubmitted {
		return store.PollVote{}, store.ErrPollClosed
	}
	for i, option := range poll.Options {
		if option.ID != optionID {
			continue
		}
		vote := store.PollVote{ID: util.NewID(), PollOptionID: optionID, VoterName: voterName, CreatedAt: f.tick()}
		poll.Options[i].Votes = append(poll.Options[i].Votes, vote)
		f.polls[pollID] = poll
		return vote, nil
	}
	return store.PollVote{}, fmt.Errorf("poll option %s: %w", optionID, store.ErrNotFound)
}

func (f *fakeStore) SubmitPoll(ctx context.Context, pollID string) (store.Poll, error) {
	if f.submitPollFn != nil {
		return f.submitPollFn(ctx, pollID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	poll, ok := f.polls[pollID]
	if !ok {
		return store.Poll{}, store.ErrNotFound
	}
	if poll.Status == store.PollSubmitted {
		return store.Poll{}, store.ErrPollClosed
	}
	poll.Status = store.PollSubmitted
	poll.UpdatedAt = f.tick()
	f.polls[pollID] = poll
	return poll, nil
}

// fakeSearch records what the service asked the index to do.
type fakeSearch struct {
	mu        sync.Mutex
	items     []search.ItemRecord
	polls     []search.PollRecord
	deleted   []string
	forgotten []string
	lastQuery search.Query
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (f *fakeSearch) IndexItem(record search.ItemRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, record)
}

func (f *fakeSearch) IndexPoll(record search.PollRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls = append(f.polls, record)
}

func (f *fakeSearch) DeleteItem(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

func (f *fakeSearch) Forget(itemIDs, pollIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, itemIDs...)
	f.forgotten = append(f.forgotten, pollIDs...)
}

type fakeMailer struct {
	configured bool
	sendFn     func([]string, email.PollInviteData) error
	sent       []email.PollInviteData
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }

func (f *fakeMailer) SendPollInvite(to []string, data email.PollInviteData) error {
	f.sent = append(f.sent, data)
	if f.sendFn != nil {
		return f.sendFn(to, data)
	}
	return nil
}

type testEnv struct {
	svc     *Service
	store   *fakeStore
	search  *fakeSearch
	mail    *fakeMailer
	bus     *events.MemoryBus
	history *history.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := newFakeStore()
	env := &testEnv{
		store:   fs,
		search:  &fakeSearch{},
		mail:    &fakeMailer{},
		bus:     events.NewMemoryBus(),
		history: history.New(t.TempDir()),
	}
	env.svc = newTestService(fs)
	env.svc.search = env.search
	env.svc.mail = env.mail
	env.svc.events = env.bus
	env.svc.history = env.history
	return env
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:     testSecret,
			AccessTTL:     time.Hour,
			RefreshTTL:    24 * time.Hour,
			GuestTTL:      time.Hour,
			PublicBaseURL: "https://trips.example",
		},
		store:     fs,
		sessions:  fs,
		passwords: authpw.NewService(fs),
		events:    events.NewMemoryBus(),
		search:    search.NewService(nil, nil),
		exporter:  export.NewService(nil),
		mail:      &fakeMailer{},
	}
}

// seedOwner creates a user with a chat and, when withItinerary is set, its itinerary.
func (e *testEnv) seedOwner(t *testing.T, withItinerary bool) (Session, store.Chat, *store.Itinerary) {
	t.Helper()
	ctx := context.Background()
	user, err := e.store.CreateUser(ctx, store.User{DisplayName: "Avery", Email: fmt.Sprintf("avery-%s@example.com", util.NewToken(""))})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	chat, err := e.store.SaveChat(ctx, store.Chat{ID: util.NewID(), UserID: user.ID, Title: "Kyoto"})
	if err != nil {
		t.Fatalf("save chat: %v", err)
	}
	session := Session{UserID: user.ID, UserName: user.DisplayName}
	if !withItinerary {
		return session, chat, nil
	}
	it, err := e.store.CreateItinerary(ctx, chat.ID)
	if err != nil {
		t.Fatalf("create itinerary: %v", err)
	}
	return session, chat, &it
}

func issueTestToken(t *testing.T, session Session) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.Claims{
		Sub:  session.UserID,
		Name: session.UserName,
		JTI:  util.NewToken("jti"),
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }

func requireCode(t *testing.T, err error, code string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error %s, got %v", code, err)
	}
	if domainErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, domainErr.Code, domainErr.Message)
	}
	return domainErr
}

func TestGuestRefreshAndLogoutRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	guest, err := env.svc.Guest(ctx)
	if err != nil {
		t.Fatalf("guest: %v", err)
	}
	if !guest.IsGuest || guest.Token == "" || guest.RefreshToken == "" {
		t.Fatalf("unexpected guest session: %+v", guest)
	}

	parsed, err := env.svc.SessionFromToken(ctx, guest.Token)
	if err != nil {
		t.Fatalf("session from token: %v", err)
	}
	if parsed.UserID != guest.UserID || !parsed.IsGuest {
		t.Fatalf("unexpected parsed session: %+v", parsed)
	}

	refreshed, err := env.svc.Refresh(ctx, guest.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.UserID != guest.UserID || refreshed.UserName != "Guest" {
		t.Fatalf("unexpected refreshed session: %+v", refreshed)
	}
	if _, err := env.svc.Refresh(ctx, guest.RefreshToken); err == nil {
		t.Fatal("expected the first refresh token to be single use")
	}

	if err := env.svc.Logout(ctx, parsed, refreshed.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.svc.SessionFromToken(ctx, guest.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}
}

func TestSignUpMapsDuplicateEmailToBadRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := authpw.SignUpRequest{Email: "sam@example.com", Password: "correct-horse", DisplayName: "Sam"}
	if _, err := env.svc.SignUp(ctx, req); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	_, err := env.svc.SignUp(ctx, req)
	requireCode(t, err, "bad_request:auth")

	_, err = env.svc.SignIn(ctx, authpw.SignInRequest{Email: "sam@example.com", Password: "wrong-password"})
	requireCode(t, err, "unauthorized:auth")

	session, err := env.svc.SignIn(ctx, authpw.SignInRequest{Email: "SAM@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if session.UserName != "Sam" || session.IsGuest {
		t.Fatalf("unexpected signin session: %+v", session)
	}
}

func TestGetItineraryCreatesLazilyAndGroupsDays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, chat, _ := env.seedOwner(t, false)

	payload, err := env.svc.GetItinerary(ctx, session, chat.ID)
	if err != nil {
		t.Fatalf("get itinerary: %v", err)
	}
	it, _ := env.store.GetItineraryByChat(ctx, chat.ID)
	if it == nil {
		t.Fatal("expected itinerary to be created on first read")
	}
	if days := payload["days"].([]map[string]any); len(days) != 0 {
		t.Fatalf("expected no days for an empty itinerary, got %d", len(days))
	}

	if _, err := env.svc.UpdateTripMetadata(ctx, chat.ID, TripMetadataInput{
		StartDate: strPtr("2025-04-01"),
		EndDate:   strPtr("2025-04-03"),
	}); err != nil {
		t.Fatalf("update metadata: %v", err)
	}
	payload, err = env.svc.GetItinerary(ctx, session, chat.ID)
	if err != nil {
		t.Fatalf("get itinerary again: %v", err)
	}
	days := payload["days"].([]map[string]any)
	if len(days) != 3 {
		t.Fatalf("expected 3 days from the date range, got %d", len(days))
	}
	if blocks := days[0]["blocks"].([]map[string]any); len(blocks) != 3 || blocks[2]["timeBlock"] != "night" {
		t.Fatalf("expected morning/afternoon/night blocks, got %v", blocks)
	}
}

func TestGetItineraryAccessRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, chat, _ := env.seedOwner(t, false)
	stranger := Session{UserID: util.NewID(), UserName: "Kai"}

	_, err := env.svc.GetItinerary(ctx, stranger, chat.ID)
	requireCode(t, err, "forbidden:chat")

	_, err = env.svc.GetItinerary(ctx, stranger, util.NewID())
	requireCode(t, err, "forbidden:chat")

	_, err = env.svc.GetItinerary(ctx, stranger, "")
	requireCode(t, err, "bad_request:api")

	if err := env.store.UpdateChatVisibility(ctx, chat.ID, store.VisibilityPublic); err != nil {
		t.Fatalf("make public: %v", err)
	}
	if _, err := env.svc.GetItinerary(ctx, stranger, chat.ID); err != nil {
		t.Fatalf("expected public chat to be readable, got %v", err)
	}
	_, err = env.svc.UpdateChat(ctx, stranger, chat.ID, UpdateChatInput{Title: strPtr("Mine now")})
	requireCode(t, err, "forbidden:chat")
}

func TestDeleteChatForgetsSearchAndHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, chat, it := env.seedOwner(t, true)

	if _, err := env.svc.AddActivity(ctx, chat.ID, AddActivityInput{
		Day: "2025-04-01", TimeBlock: "morning", Type: "activity", Name: "Fushimi Inari",
	}); err != nil {
		t.Fatalf("add activity: %v", err)
	}
	revisions, err := env.history.Log(it.ID, 10)
	if err != nil || len(revisions) != 1 {
		t.Fatalf("expected one history revision, got %d err=%v", len(revisions), err)
	}

	if _, err := env.svc.DeleteChat(ctx, session, chat.ID); err != nil {
		t.Fatalf("delete chat: %v", err)
	}
	if len(env.search.forgotten) != 1 {
		t.Fatalf("expected the item to be dropped from search, got %v", env.search.forgotten)
	}
	revisions, err = env.history.Log(it.ID, 10)
	if err != nil || len(revisions) != 0 {
		t.Fatalf("expected history to be removed, got %d err=%v", len(revisions), err)
	}
	if _, err := env.store.GetChat(ctx, chat.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected chat gone, got %v", err)
	}
}

func TestDeleteAllChatsCountsOnlyOwnChats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, _, _ := env.seedOwner(t, true)
	if _, err := env.svc.CreateChat(ctx, session, CreateChatInput{Title: "Lisbon"}); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	_, otherChat, _ := env.seedOwner(t, false)

	result, err := env.svc.DeleteAllChats(ctx, session)
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if result["deletedCount"] != 2 {
		t.Fatalf("expected 2 deleted chats, got %v", result["deletedCount"])
	}
	if _, err := env.store.GetChat(ctx, otherChat.ID); err != nil {
		t.Fatalf("expected other user's chat to survive, got %v", err)
	}
}

func TestListChatsRejectsBothCursors(t *testing.T) {
	env := newTestEnv(t)
	session, chat, _ := env.seedOwner(t, false)

	_, err := env.svc.ListChats(context.Background(), session, 10, chat.ID, chat.ID)
	requireCode(t, err, "bad_request:api")

	_, err = env.svc.ListChats(context.Background(), session, 10, "", "not-a-uuid")
	requireCode(t, err, "not_found:chat")
}
