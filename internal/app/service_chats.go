package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/tanmvo/relevance-ai-chat/internal/events"
	"github.com/tanmvo/relevance-ai-chat/internal/rbac"
	"github.com/tanmvo/relevance-ai-chat/internal/store"
	"github.com/tanmvo/relevance-ai-chat/internal/util"
)

const (
	defaultChatPageSize = 20
	maxChatPageSize     = 100
	defaultChatTitle    = "New trip"
)

// loadChat returns the chat with the caller's role on it. Unknown and malformed
// ids both come back as store.ErrNotFound.
func (s *Service) loadChat(ctx context.Context, session Session, chatID string) (store.Chat, rbac.Role, error) {
	if !util.ValidID(chatID) {
		return store.Chat{}, rbac.RoleNone, store.ErrNotFound
	}
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return store.Chat{}, rbac.RoleNone, err
	}
	return chat, rbac.ChatRole(chat.UserID, chat.Visibility, session.UserID), nil
}

// authorizeChat loads the chat and checks action. A missing chat is reported as
// forbidden so callers cannot probe for other users' chat ids.
func (s *Service) authorizeChat(ctx context.Context, session Session, chatID string, action rbac.Action, surface string) (store.Chat, error) {
	chat, role, err := s.loadChat(ctx, session, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Chat{}, forbidden(surface, forbiddenMessage(surface))
	}
	if err != nil {
		return store.Chat{}, err
	}
	if !rbac.Can(role, action) {
		return store.Chat{}, forbidden(surface, forbiddenMessage(surface))
	}
	return chat, nil
}

func forbiddenMessage(surface string) string {
	switch surface {
	case "poll":
		return "This poll belongs to another user"
	case "itinerary":
		return "This itinerary belongs to another user"
	default:
		return "This chat belongs to another user"
	}
}

func (s *Service) ListChats(ctx context.Context, session Session, limit int, startingAfter, endingBefore string) (map[string]any, error) {
	if startingAfter != "" && endingBefore != "" {
		return nil, badRequest("api", "Only one of startingAfter or endingBefore can be provided")
	}
	cursor := startingAfter + endingBefore
	if cursor != "" && !util.ValidID(cursor) {
		return nil, notFound("chat", "Chat with id "+cursor+" not found")
	}
	if limit <= 0 {
		limit = defaultChatPageSize
	}
	if limit > maxChatPageSize {
		limit = maxChatPageSize
	}
	page, err := s.store.ListChatsByUser(ctx, session.UserID, limit, startingAfter, endingBefore)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("chat", "Chat with id "+cursor+" not found")
	}
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	chats := make([]map[string]any, 0, len(page.Chats))
	for _, chat := range page.Chats {
		chats = append(chats, chatPayload(chat))
	}
	return map[string]any{"chats": chats, "hasMore": page.HasMore}, nil
}

type CreateChatInput struct {
	ID         string `json:"id" validate:"omitempty,uuid"`
	Title      string `json:"title" validate:"max=200"`
	Visibility string `json:"visibility" validate:"omitempty,oneof=public private"`
}

func (s *Service) CreateChat(ctx context.Context, session Session, input CreateChatInput) (map[string]any, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := validate.Struct(input); err != nil {
		return nil, validationError("chat", err)
	}
	if input.ID == "" {
		input.ID = util.NewID()
	}
	if input.Title == "" {
		input.Title = defaultChatTitle
	}
	if input.Visibility == "" {
		input.Visibility = store.VisibilityPrivate
	}
	chat, err := s.store.SaveChat(ctx, store.Chat{
		ID:         input.ID,
		UserID:     session.UserID,
		Title:      input.Title,
		Visibility: input.Visibility,
	})
	if err != nil {
		return nil, fmt.Errorf("save chat: %w", err)
	}
	return chatPayload(chat), nil
}

type UpdateChatInput struct {
	Title      *string `json:"title" validate:"omitempty,min=1,max=200"`
	Visibility *string `json:"visibility" validate:"omitempty,oneof=public private"`
}

func (s *Service) UpdateChat(ctx context.Context, session Session, chatID string, input UpdateChatInput) (map[string]any, error) {
	if input.Title != nil {
		trimmed := strings.TrimSpace(*input.Title)
		input.Title = &trimmed
	}
	if err := validate.Struct(input); err != nil {
		return nil, validationError("chat", err)
	}
	chat, err := s.authorizeChat(ctx, session, chatID, rbac.ActionAdmin, "chat")
	if err != nil {
		return nil, err
	}
	if input.Title != nil {
		if err := s.store.UpdateChatTitle(ctx, chat.ID, *input.Title); err != nil {
			return nil, fmt.Errorf("update chat title: %w", err)
		}
		chat.Title = *input.Title
	}
	if input.Visibility != nil {
		if err := s.store.UpdateChatVisibility(ctx, chat.ID, *input.Visibility); err != nil {
			return nil, fmt.Errorf("update chat visibility: %w", err)
		}
		chat.Visibility = *input.Visibility
	}
	return chatPayload(chat), nil
}

func (s *Service) DeleteChat(ctx context.Context, session Session, chatID string) (map[string]any, error) {
	chat, err := s.authorizeChat(ctx, session, chatID, rbac.ActionAdmin, "chat")
	if err != nil {
		return nil, err
	}
	footprint := s.chatFootprint(ctx, chat.ID)
	deleted, err := s.store.DeleteChat(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("delete chat: %w", err)
	}
	s.forgetFootprints(footprint)
	return chatPayload(deleted), nil
}

// DeleteAllChats removes every chat the caller owns and returns the count.
func (s *Service) DeleteAllChats(ctx context.Context, session Session) (map[string]any, error) {
	var footprints []chatFootprint
	cursor := ""
	for {
		page, err := s.store.ListChatsByUser(ctx, session.UserID, maxChatPageSize, "", cursor)
		if err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		for _, chat := range page.Chats {
			footprints = append(footprints, s.chatFootprint(ctx, chat.ID))
		}
		if !page.HasMore || len(page.Chats) == 0 {
			break
		}
		cursor = page.Chats[len(page.Chats)-1].ID
	}

	count, err := s.store.DeleteChatsByUser(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("delete chats: %w", err)
	}
	s.forgetFootprints(footprints...)
	return map[string]any{"deletedCount": count}, nil
}

// chatFootprint is what lives outside Postgres for one chat: search documents
// and the itinerary's history repository.
type chatFootprint struct {
	itineraryID string
	itemIDs     []string
	pollIDs     []string
}

func (s *Service) chatFootprint(ctx context.Context, chatID string) chatFootprint {
	var fp chatFootprint
	if it, err := s.store.GetItineraryByChat(ctx, chatID); err == nil && it != nil {
		fp.itineraryID = it.ID
		if items, err := s.store.ListItineraryItems(ctx, it.ID); err == nil {
			for _, item := range items {
				fp.itemIDs = append(fp.itemIDs, item.ID)
			}
		}
	}
	if polls, err := s.store.ListPollsByChat(ctx, chatID); err == nil {
		for _, poll := range polls {
			fp.pollIDs = append(fp.pollIDs, poll.ID)
		}
	}
	return fp
}

func (s *Service) forgetFootprints(footprints ...chatFootprint) {
	var itemIDs, pollIDs []string
	for _, fp := range footprints {
		itemIDs = append(itemIDs, fp.itemIDs...)
		pollIDs = append(pollIDs, fp.pollIDs...)
		if fp.itineraryID != "" && s.history != nil {
			if err := s.history.Remove(fp.itineraryID); err != nil {
				log.Printf("history: remove %s: %v", fp.itineraryID, err)
			}
		}
	}
	s.search.Forget(itemIDs, pollIDs)
}

// SubscribeChat streams tool update events for a chat the caller owns.
func (s *Service) SubscribeChat(ctx context.Context, session Session, chatID string) (<-chan events.Event, func(), error) {
	chat, err := s.authorizeChat(ctx, session, chatID, rbac.ActionWrite, "chat")
	if err != nil {
		return nil, nil, err
	}
	return s.events.Subscribe(ctx, chat.ID)
}
