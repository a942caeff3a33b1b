package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxItems = "trip_itinerary_items"
	idxPolls = "trip_polls"
)

type indexSpec struct {
	uid        string
	rtyp       ResultType
	filterable []string
	searchable []string
}

var indexSpecs = []indexSpec{
	{uid: idxItems, rtyp: ResultItem, filterable: []string{"userId", "chatId", "type", "day"}, searchable: []string{"name", "description"}},
	{uid: idxPolls, rtyp: ResultPoll, filterable: []string{"userId", "chatId", "status"}, searchable: []string{"question"}},
}

// Meili implements Index via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. A failed
// first health check leaves it marked unhealthy; the health loop keeps trying.
func NewMeili(url, apiKey string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
	}
	if _, err := m.client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}
	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	for _, idx := range indexSpecs {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idx.uid, PrimaryKey: "id"}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}
		index := m.client.Index(idx.uid)
		filterable := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		searchable := idx.searchable
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, errors.New("meilisearch unhealthy")
	}
	queries := buildSearchRequests(q)
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}
	return results, total, nil
}

func buildSearchRequests(q Query) []*meili.SearchRequest {
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 20
	}
	var queries []*meili.SearchRequest
	for _, idx := range indexSpecs {
		if q.FilterType != "" && q.FilterType != idx.rtyp {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              idx.uid,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			Filter:                []string{fmt.Sprintf("userId = %q", q.UserID)},
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		})
	}
	return queries
}

func indexToResultType(uid string) ResultType {
	for _, idx := range indexSpecs {
		if idx.uid == uid {
			return idx.rtyp
		}
	}
	return ""
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{
		Type:   rtyp,
		ID:     decodeString(hit, "id"),
		ChatID: decodeString(hit, "chatId"),
	}
	switch rtyp {
	case ResultItem:
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
		r.Day = decodeString(hit, "day")
	case ResultPoll:
		r.Title = firstNonBlank(decodeFormattedString(hit, "question"), decodeString(hit, "question"))
		r.Snippet = decodeString(hit, "status")
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	value, _ := formatted[key].(string)
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (m *Meili) IndexItems(items []ItemRecord) error {
	if len(items) == 0 {
		return nil
	}
	_, err := m.client.Index(idxItems).AddDocuments(items, nil)
	return err
}

func (m *Meili) IndexPolls(polls []PollRecord) error {
	if len(polls) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPolls).AddDocuments(polls, nil)
	return err
}

func (m *Meili) DeleteItems(ids []string) error {
	return m.deleteAll(idxItems, ids)
}

func (m *Meili) DeletePolls(ids []string) error {
	return m.deleteAll(idxPolls, ids)
}

func (m *Meili) deleteAll(uid string, ids []string) error {
	index := m.client.Index(uid)
	var errs []error
	for _, id := range ids {
		if _, err := index.DeleteDocument(id, nil); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
