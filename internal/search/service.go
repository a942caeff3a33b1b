package search

import (
	"context"
	"log"
	"strings"
)

// RecordLoader reads every searchable record for a full rebuild.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]ItemRecord, []PollRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	primary  Index
	fallback Searcher
	loader   RecordLoader
	run      func(func())
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{run: func(fn func()) { go fn() }}
	if meili != nil {
		s.primary = meili
	}
	if pgfts != nil {
		s.fallback = pgfts
		s.loader = pgfts
	}
	return s
}

func (s *Service) primaryReady() bool {
	return s.primary != nil && s.primary.Healthy()
}

// Search tries the primary index if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" || q.UserID == "" {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	if s.primaryReady() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexItem pushes one item to the primary index without waiting.
func (s *Service) IndexItem(record ItemRecord) {
	if !s.primaryReady() {
		return
	}
	s.run(func() {
		if err := s.primary.IndexItems([]ItemRecord{record}); err != nil {
			log.Printf("search: index item %s: %v", record.ID, err)
		}
	})
}

func (s *Service) IndexPoll(record PollRecord) {
	if !s.primaryReady() {
		return
	}
	s.run(func() {
		if err := s.primary.IndexPolls([]PollRecord{record}); err != nil {
			log.Printf("search: index poll %s: %v", record.ID, err)
		}
	})
}

func (s *Service) DeleteItem(id string) {
	s.Forget([]string{id}, nil)
}

// Forget drops items and polls, used when an item is removed or a chat is deleted.
func (s *Service) Forget(itemIDs, pollIDs []string) {
	if !s.primaryReady() || (len(itemIDs) == 0 && len(pollIDs) == 0) {
		return
	}
	s.run(func() {
		if len(itemIDs) > 0 {
			if err := s.primary.DeleteItems(itemIDs); err != nil {
				log.Printf("search: delete %d items: %v", len(itemIDs), err)
			}
		}
		if len(pollIDs) > 0 {
			if err := s.primary.DeletePolls(pollIDs); err != nil {
				log.Printf("search: delete %d polls: %v", len(pollIDs), err)
			}
		}
	})
}

// ReindexAll reads every item and poll from Postgres and pushes them to the
// primary index. It returns the counts pushed.
func (s *Service) ReindexAll(ctx context.Context) (items int, polls int, err error) {
	if !s.primaryReady() || s.loader == nil {
		return 0, 0, nil
	}
	itemRecords, pollRecords, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(itemRecords) > 0 {
		if err := s.primary.IndexItems(itemRecords); err != nil {
			return 0, 0, err
		}
	}
	if len(pollRecords) > 0 {
		if err := s.primary.IndexPolls(pollRecords); err != nil {
			return len(itemRecords), 0, err
		}
	}
	return len(itemRecords), len(pollRecords), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
