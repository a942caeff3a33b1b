package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tanmvo/relevance-ai-chat/internal/export"
	"github.com/tanmvo/relevance-ai-chat/internal/history"
	"github.com/tanmvo/relevance-ai-chat/internal/rbac"
	"github.com/tanmvo/relevance-ai-chat/internal/search"
	"github.com/tanmvo/relevance-ai-chat/internal/store"
	"github.com/tanmvo/relevance-ai-chat/internal/tripview"
	"github.com/tanmvo/relevance-ai-chat/internal/util"
)

const defaultHistoryLimit = 50

// GetItinerary returns the chat's trip, creating the itinerary on first read.
func (s *Service) GetItinerary(ctx context.Context, session Session, chatID string) (map[string]any, error) {
	if chatID == "" {
		return nil, badRequest("api", "Missing required query parameter: chatId")
	}
	chat, err := s.authorizeChat(ctx, session, chatID, rbac.ActionRead, "chat")
	if err != nil {
		return nil, err
	}
	it, err := s.store.CreateItinerary(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("ensure itinerary: %w", err)
	}
	items, err := s.store.ListItineraryItems(ctx, it.ID)
	if err != nil {
		return nil, fmt.Errorf("list itinerary items: %w", err)
	}
	return tripPayload(it, items), nil
}

func (s *Service) loadItinerary(ctx context.Context, itineraryID string) (store.Itinerary, []store.ItineraryItem, error) {
	if !util.ValidID(itineraryID) {
		return store.Itinerary{}, nil, notFound("itinerary", "Itinerary not found")
	}
	it, err := s.store.GetItinerary(ctx, itineraryID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Itinerary{}, nil, notFound("itinerary", "Itinerary not found")
	}
	if err != nil {
		return store.Itinerary{}, nil, fmt.Errorf("get itinerary: %w", err)
	}
	items, err := s.store.ListItineraryItems(ctx, it.ID)
	if err != nil {
		return store.Itinerary{}, nil, fmt.Errorf("list itinerary items: %w", err)
	}
	return it, items, nil
}

// authorizeItinerary checks action against the chat that owns the itinerary.
func (s *Service) authorizeItinerary(ctx context.Context, session Session, itineraryID string, action rbac.Action) (store.Itinerary, []store.ItineraryItem, error) {
	it, items, err := s.loadItinerary(ctx, itineraryID)
	if err != nil {
		return store.Itinerary{}, nil, err
	}
	if _, err := s.authorizeChat(ctx, session, it.ChatID, action, "itinerary"); err != nil {
		return store.Itinerary{}, nil, err
	}
	return it, items, nil
}

// PublicItinerary serves share links and needs no session.
func (s *Service) PublicItinerary(ctx context.Context, itineraryID string) (map[string]any, error) {
	it, items, err := s.loadItinerary(ctx, itineraryID)
	if err != nil {
		return nil, err
	}
	return tripPayload(it, items), nil
}

func (s *Service) ExportItinerary(ctx context.Context, session Session, itineraryID, format string) (*export.Result, error) {
	parsed, ok := export.ParseFormat(format)
	if !ok {
		return nil, badRequest("export", "format must be pdf or html")
	}
	it, items, err := s.authorizeItinerary(ctx, session, itineraryID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Export(ctx, export.Document{
		Itinerary: it,
		Days:      tripview.GroupByDay(tripview.DayList(it, items), items),
	}, parsed)
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return nil, domainError(http.StatusServiceUnavailable, "unavailable:export", "PDF export is not available on this server", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("export itinerary: %w", err)
	}
	return result, nil
}

func (s *Service) ItineraryHistory(ctx context.Context, session Session, itineraryID string, limit int) ([]history.Revision, error) {
	if _, _, err := s.authorizeItinerary(ctx, session, itineraryID, rbac.ActionAdmin); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []history.Revision{}, nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	revisions, err := s.history.Log(itineraryID, limit)
	if errors.Is(err, history.ErrNoHistory) {
		return []history.Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("itinerary history: %w", err)
	}
	return revisions, nil
}

func (s *Service) ItineraryRevision(ctx context.Context, session Session, itineraryID, hash string) (map[string]any, error) {
	if _, _, err := s.authorizeItinerary(ctx, session, itineraryID, rbac.ActionAdmin); err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, notFound("history", "Revision not found")
	}
	snap, rev, err := s.history.Get(itineraryID, hash)
	if errors.Is(err, history.ErrNoHistory) {
		return nil, notFound("history", "Revision not found")
	}
	if err != nil {
		return nil, fmt.Errorf("itinerary revision: %w", err)
	}
	return map[string]any{"revision": rev, "snapshot": snap}, nil
}

func (s *Service) Search(ctx context.Context, session Session, text, resultType string, limit, offset int) (search.Response, error) {
	filter := search.ResultType(resultType)
	switch filter {
	case "", search.ResultItem, search.ResultPoll:
	default:
		return search.Response{}, badRequest("search", "type must be item or poll")
	}
	return s.search.Search(ctx, search.Query{
		Text:       text,
		FilterType: filter,
		UserID:     session.UserID,
		Limit:      limit,
		Offset:     offset,
	}), nil
}
