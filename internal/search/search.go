package search

import (
	"context"

	"github.com/tanmvo/relevance-ai-chat/internal/store"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultItem ResultType = "item"
	ResultPoll ResultType = "poll"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	ChatID  string     `json:"chatId"`
	Day     string     `json:"day,omitempty"`
}

// Query describes a search request. UserID scopes results to the caller's
// chats and is required.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	UserID     string
	Limit      int
	Offset     int
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

type Indexer interface {
	IndexItems(items []ItemRecord) error
	IndexPolls(polls []PollRecord) error
	DeleteItems(ids []string) error
	DeletePolls(ids []string) error
}

// Index is a backend that can both search and accept writes.
type Index interface {
	Searcher
	Indexer
}

// ItemRecord is the data we index for an itinerary item.
type ItemRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Day         string `json:"day"`
	TimeBlock   string `json:"timeBlock"`
	Type        string `json:"type"`
	ItineraryID string `json:"itineraryId"`
	ChatID      string `json:"chatId"`
	UserID      string `json:"userId"`
}

// PollRecord is the data we index for a poll question.
type PollRecord struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Status   string `json:"status"`
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
}

func NewItemRecord(item store.ItineraryItem, chat store.Chat) ItemRecord {
	record := ItemRecord{
		ID:          item.ID,
		Name:        item.Name,
		Day:         item.Day,
		TimeBlock:   item.TimeBlock,
		Type:        item.Type,
		ItineraryID: item.ItineraryID,
		ChatID:      chat.ID,
		UserID:      chat.UserID,
	}
	if item.Description != nil {
		record.Description = *item.Description
	}
	return record
}

func NewPollRecord(poll store.Poll, chat store.Chat) PollRecord {
	return PollRecord{
		ID:       poll.ID,
		Question: poll.Question,
		Status:   poll.Status,
		ChatID:   chat.ID,
		UserID:   chat.UserID,
	}
}
