package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

const tsQuery = "plainto_tsquery('english', $1)"

// buildQueries returns the UNION ALL body and its args. $1 is the text and
// $2 the owning user.
func buildQueries(q Query) (string, []any) {
	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultItem {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'item'::text AS type, it.id::text AS id, it.name AS title,
				ts_headline('english', coalesce(it.description, ''), %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.id::text AS chat_id, to_char(it.day, 'YYYY-MM-DD') AS day,
				ts_rank(it.fts, %[1]s) AS rank
			FROM itinerary_items it
			JOIN itineraries i ON i.id = it.itinerary_id
			JOIN chats c ON c.id = i.chat_id
			WHERE it.fts @@ %[1]s AND c.user_id = $2`, tsQuery))
	}
	if q.FilterType == "" || q.FilterType == ResultPoll {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'poll'::text AS type, p.id::text AS id, p.question AS title,
				p.status AS snippet,
				c.id::text AS chat_id, ''::text AS day,
				ts_rank(p.fts, %[1]s) AS rank
			FROM polls p
			JOIN chats c ON c.id = p.chat_id
			WHERE p.fts @@ %[1]s AND c.user_id = $2`, tsQuery))
	}
	return strings.Join(subQueries, " UNION ALL "), []any{q.Text, q.UserID}
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.UserID == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	union, args := buildQueries(q)
	if union == "" {
		return nil, 0, nil
	}

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM ("+union+") sub", args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT type, id, title, snippet, chat_id, day
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ChatID, &r.Day); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ItemRecord, []PollRecord, error) {
	itemRows, err := p.db.QueryContext(ctx, `
		SELECT it.id::text, it.name, coalesce(it.description, ''), to_char(it.day, 'YYYY-MM-DD'),
			it.time_block, it.type, it.itinerary_id::text, c.id::text, c.user_id::text
		FROM itinerary_items it
		JOIN itineraries i ON i.id = it.itinerary_id
		JOIN chats c ON c.id = i.chat_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load items: %w", err)
	}
	defer itemRows.Close()

	items := make([]ItemRecord, 0)
	for itemRows.Next() {
		var r ItemRecord
		if err := itemRows.Scan(&r.ID, &r.Name, &r.Description, &r.Day, &r.TimeBlock, &r.Type, &r.ItineraryID, &r.ChatID, &r.UserID); err != nil {
			return nil, nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, r)
	}
	if err := itemRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate items: %w", err)
	}

	pollRows, err := p.db.QueryContext(ctx, `
		SELECT p.id::text, p.question, p.status, c.id::text, c.user_id::text
		FROM polls p
		JOIN chats c ON c.id = p.chat_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load polls: %w", err)
	}
	defer pollRows.Close()

	polls := make([]PollRecord, 0)
	for pollRows.Next() {
		var r PollRecord
		if err := pollRows.Scan(&r.ID, &r.Question, &r.Status, &r.ChatID, &r.UserID); err != nil {
			return nil, nil, fmt.Errorf("scan poll: %w", err)
		}
		polls = append(polls, r)
	}
	if err := pollRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate polls: %w", err)
	}
	return items, polls, nil
}
