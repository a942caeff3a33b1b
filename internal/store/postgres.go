package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

const itineraryColumns = `
	id, chat_id, trip_name, destination,
	to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'),
	adults, children, created_at, updated_at`

const itemColumns = `
	id, itinerary_id, to_char(day, 'YYYY-MM-DD'), time_block, type, name,
	description, price, image_url, sort_order, created_at`

func scanItinerary(row rowScanner) (Itinerary, error) {
	var it Itinerary
	var tripName, destination, startDate, endDate sql.NullString
	if err := row.Scan(
		&it.ID, &it.ChatID, &tripName, &destination,
		&startDate, &endDate,
		&it.Adults, &it.Children, &it.CreatedAt, &it.UpdatedAt,
	); err != nil {
		return Itinerary{}, err
	}
	it.TripName = nullableString(tripName)
	it.Destination = nullableString(destination)
	it.StartDate = nullableString(startDate)
	it.EndDate = nullableString(endDate)
	return it, nil
}

func scanItem(row rowScanner) (ItineraryItem, error) {
	var item ItineraryItem
	var description, price, imageURL sql.NullString
	if err := row.Scan(
		&item.ID, &item.ItineraryID, &item.Day, &item.TimeBlock, &item.Type, &item.Name,
		&description, &price, &imageURL, &item.SortOrder, &item.CreatedAt,
	); err != nil {
		return ItineraryItem{}, err
	}
	item.Description = nullableString(description)
	item.Price = nullableString(price)
	item.ImageURL = nullableString(imageURL)
	return item, nil
}

func nullableString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Users and sessions

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	var email any
	if strings.TrimSpace(user.Email) != "" {
		email = user.Email
	}
	var passwordHash any
	if user.PasswordHash != "" {
		passwordHash = user.PasswordHash
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, display_name, password_hash, is_guest)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, email, user.DisplayName, passwordHash, user.IsGuest).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (User, error) {
	var user User
	var email, passwordHash sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, is_guest, created_at
		FROM users WHERE `+where, arg).Scan(
		&user.ID, &email, &user.DisplayName, &passwordHash, &user.IsGuest, &user.CreatedAt,
	)
	if err != nil {
		return User{}, notFound(err)
	}
	user.Email = email.String
	user.PasswordHash = passwordHash.String
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.getUser(ctx, `id = $1`, userID)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, `LOWER(email) = LOWER($1)`, email)
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return User{}, notFound(err)
	}
	return s.GetUserByID(ctx, userID)
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1 AND expires_at > NOW())`, jti).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return exists, nil
}

// Chats

func (s *PostgresStore) SaveChat(ctx context.Context, chat Chat) (Chat, error) {
	if chat.Visibility == "" {
		chat.Visibility = VisibilityPrivate
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chats (id, user_id, title, visibility)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, chat.ID, chat.UserID, chat.Title, chat.Visibility).Scan(&chat.CreatedAt)
	if err != nil {
		return Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	return chat, nil
}

func (s *PostgresStore) GetChat(ctx context.Context, chatID string) (Chat, error) {
	var chat Chat
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, visibility, created_at FROM chats WHERE id=$1
	`, chatID).Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.Visibility, &chat.CreatedAt)
	if err != nil {
		return Chat{}, notFound(err)
	}
	return chat, nil
}

// ListChatsByUser pages through a user's chats newest first. startingAfter and
// endingBefore are chat ids used as cursors; at most one should be set.
func (s *PostgresStore) ListChatsByUser(ctx context.Context, userID string, limit int, startingAfter, endingBefore string) (ChatPage, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, user_id, title, visibility, created_at FROM chats WHERE user_id=$1`
	args := []any{userID}

	cursor := ""
	op := ""
	switch {
	case startingAfter != "":
		cursor, op = startingAfter, ">"
	case endingBefore != "":
		cursor, op = endingBefore, "<"
	}
	if cursor != "" {
		var createdAt time.Time
		err := s.db.QueryRowContext(ctx, `SELECT created_at FROM chats WHERE id=$1`, cursor).Scan(&createdAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ChatPage{}, fmt.Errorf("chat with id %s: %w", cursor, ErrNotFound)
			}
			return ChatPage{}, fmt.Errorf("lookup chat cursor: %w", err)
		}
		query += ` AND created_at ` + op + ` $2`
		args = append(args, createdAt)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ChatPage{}, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]Chat, 0, limit+1)
	for rows.Next() {
		var chat Chat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.Visibility, &chat.CreatedAt); err != nil {
			return ChatPage{}, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return ChatPage{}, fmt.Errorf("iterate chats: %w", err)
	}

	page := ChatPage{Chats: chats, HasMore: len(chats) > limit}
	if page.HasMore {
		page.Chats = chats[:limit]
	}
	return page, nil
}

func (s *PostgresStore) UpdateChatVisibility(ctx context.Context, chatID, visibility string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE chats SET visibility=$2 WHERE id=$1`, chatID, visibility)
	if err != nil {
		return fmt.Errorf("update chat visibility: %w", err)
	}
	return requireAffected(result)
}

func (s *PostgresStore) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE chats SET title=$2 WHERE id=$1`, chatID, title)
	if err != nil {
		return fmt.Errorf("update chat title: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// deleteChatTree removes everything hanging off the chats matched by where.
// Dependents go first since the foreign keys do not cascade.
func deleteChatTree(ctx context.Context, tx *sql.Tx, where string, arg any) error {
	statements := []struct {
		label string
		sql   string
	}{
		{"poll votes", `DELETE FROM poll_votes WHERE poll_option_id IN (
			SELECT po.id FROM poll_options po JOIN polls p ON p.id = po.poll_id
			WHERE p.chat_id IN (SELECT id FROM chats WHERE ` + where + `))`},
		{"poll options", `DELETE FROM poll_options WHERE poll_id IN (
			SELECT id FROM polls WHERE chat_id IN (SELECT id FROM chats WHERE ` + where + `))`},
		{"polls", `DELETE FROM polls WHERE chat_id IN (SELECT id FROM chats WHERE ` + where + `)`},
		{"itinerary items", `DELETE FROM itinerary_items WHERE itinerary_id IN (
			SELECT id FROM itineraries WHERE chat_id IN (SELECT id FROM chats WHERE ` + where + `))`},
		{"itineraries", `DELETE FROM itineraries WHERE chat_id IN (SELECT id FROM chats WHERE ` + where + `)`},
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt.sql, arg); err != nil {
			return fmt.Errorf("delete %s: %w", stmt.label, err)
		}
	}
	return nil
}

func (s *PostgresStore) DeleteChat(ctx context.Context, chatID string) (Chat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Chat{}, fmt.Errorf("begin delete chat tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteChatTree(ctx, tx, `id = $1`, chatID); err != nil {
		return Chat{}, err
	}

	var chat Chat
	err = tx.QueryRowContext(ctx, `
		DELETE FROM chats WHERE id=$1
		RETURNING id, user_id, title, visibility, created_at
	`, chatID).Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.Visibility, &chat.CreatedAt)
	if err != nil {
		return Chat{}, notFound(err)
	}

	if err := tx.Commit(); err != nil {
		return Chat{}, fmt.Errorf("commit delete chat: %w", err)
	}
	return chat, nil
}

func (s *PostgresStore) DeleteChatsByUser(ctx context.Context, userID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete chats tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteChatTree(ctx, tx, `user_id = $1`, userID); err != nil {
		return 0, err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE user_id=$1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete chats: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete chats: %w", err)
	}
	return int(deleted), nil
}

// Itineraries

// CreateItinerary is idempotent: a second call for the same chat returns the existing row.
func (s *PostgresStore) CreateItinerary(ctx context.Context, chatID string) (Itinerary, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO itineraries (chat_id) VALUES ($1)
		ON CONFLICT (chat_id) DO NOTHING
	`, chatID); err != nil {
		return Itinerary{}, fmt.Errorf("create itinerary: %w", err)
	}
	it, err := scanItinerary(s.db.QueryRowContext(ctx, `SELECT `+itineraryColumns+` FROM itineraries WHERE chat_id=$1`, chatID))
	if err != nil {
		return Itinerary{}, fmt.Errorf("read created itinerary: %w", err)
	}
	return it, nil
}

// GetItineraryByChat returns nil when the chat has no itinerary yet.
func (s *PostgresStore) GetItineraryByChat(ctx context.Context, chatID string) (*Itinerary, error) {
	it, err := scanItinerary(s.db.QueryRowContext(ctx, `SELECT `+itineraryColumns+` FROM itineraries WHERE chat_id=$1`, chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get itinerary by chat: %w", err)
	}
	return &it, nil
}

func (s *PostgresStore) GetItinerary(ctx context.Context, itineraryID string) (Itinerary, error) {
	it, err := scanItinerary(s.db.QueryRowContext(ctx, `SELECT `+itineraryColumns+` FROM itineraries WHERE id=$1`, itineraryID))
	if err != nil {
		return Itinerary{}, notFound(err)
	}
	return it, nil
}

func (s *PostgresStore) UpdateItineraryMetadata(ctx context.Context, itineraryID string, patch ItineraryPatch) (Itinerary, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{itineraryID}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.TripName != nil {
		add("trip_name", *patch.TripName)
	}
	if patch.Destination != nil {
		add("destination", *patch.Destination)
	}
	if patch.StartDate != nil {
		add("start_date", *patch.StartDate)
	}
	if patch.EndDate != nil {
		add("end_date", *patch.EndDate)
	}
	if patch.Adults != nil {
		add("adults", *patch.Adults)
	}
	if patch.Children != nil {
		add("children", *patch.Children)
	}

	it, err := scanItinerary(s.db.QueryRowContext(ctx, `
		UPDATE itineraries SET `+strings.Join(sets, ", ")+`
		WHERE id = $1
		RETURNING `+itineraryColumns, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Itinerary{}, ErrNotFound
		}
		return Itinerary{}, fmt.Errorf("update itinerary metadata: %w", err)
	}
	return it, nil
}

// Itinerary items

func (s *PostgresStore) AddItineraryItem(ctx context.Context, item ItineraryItem) (ItineraryItem, error) {
	created, err := scanItem(s.db.QueryRowContext(ctx, `
		INSERT INTO itinerary_items (itinerary_id, day, time_block, type, name, description, price, image_url, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+itemColumns,
		item.ItineraryID, item.Day, item.TimeBlock, item.Type, item.Name,
		item.Description, item.Price, item.ImageURL, item.SortOrder,
	))
	if err != nil {
		return ItineraryItem{}, fmt.Errorf("add itinerary item: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) RemoveItineraryItem(ctx context.Context, itemID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM itinerary_items WHERE id=$1`, itemID)
	if err != nil {
		return fmt.Errorf("remove itinerary item: %w", err)
	}
	return requireAffected(result)
}

// ListItineraryItems returns items by day, then sort order, then insertion.
func (s *PostgresStore) ListItineraryItems(ctx context.Context, itineraryID string) ([]ItineraryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM itinerary_items
		WHERE itinerary_id = $1
		ORDER BY day ASC, sort_order ASC, created_at ASC, id ASC
	`, itineraryID)
	if err != nil {
		return nil, fmt.Errorf("list itinerary items: %w", err)
	}
	defer rows.Close()

	items := make([]ItineraryItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan itinerary item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate itinerary items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateItineraryItem(ctx context.Context, itemID string, patch ItemPatch) (ItineraryItem, error) {
	sets := []string{}
	args := []any{itemID}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Day != nil {
		add("day", *patch.Day)
	}
	if patch.TimeBlock != nil {
		add("time_block", *patch.TimeBlock)
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Price != nil {
		add("price", *patch.Price)
	}
	if patch.ImageURL != nil {
		add("image_url", *patch.ImageURL)
	}
	if patch.SortOrder != nil {
		add("sort_order", *patch.SortOrder)
	}
	if len(sets) == 0 {
		item, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM itinerary_items WHERE id=$1`, itemID))
		return item, notFound(err)
	}

	item, err := scanItem(s.db.QueryRowContext(ctx, `
		UPDATE itinerary_items SET `+strings.Join(sets, ", ")+`
		WHERE id = $1
		RETURNING `+itemColumns, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ItineraryItem{}, ErrNotFound
		}
		return ItineraryItem{}, fmt.Errorf("update itinerary item: %w", err)
	}
	return item, nil
}

// UpsertSlotItem writes the single accommodation or transport row for a day and
// time block, replacing name, description, price and image when one exists.
// created is true when a new row was inserted.
func (s *PostgresStore) UpsertSlotItem(ctx context.Context, item ItineraryItem) (ItineraryItem, bool, error) {
	if item.Type != ItemAccommodation && item.Type != ItemTransport {
		return ItineraryItem{}, false, fmt.Errorf("upsert slot item: unsupported type %q", item.Type)
	}
	var created bool
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO itinerary_items (itinerary_id, day, time_block, type, name, description, price, image_url, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0)
		ON CONFLICT (itinerary_id, day, time_block, type) WHERE type IN ('accommodation', 'transport')
		DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			image_url = EXCLUDED.image_url
		RETURNING `+itemColumns+`, (xmax = 0)`,
		item.ItineraryID, item.Day, item.TimeBlock, item.Type, item.Name,
		item.Description, item.Price, item.ImageURL,
	)
	var saved ItineraryItem
	var description, price, imageURL sql.NullString
	if err := row.Scan(
		&saved.ID, &saved.ItineraryID, &saved.Day, &saved.TimeBlock, &saved.Type, &saved.Name,
		&description, &price, &imageURL, &saved.SortOrder, &saved.CreatedAt, &created,
	); err != nil {
		return ItineraryItem{}, false, fmt.Errorf("upsert %s: %w", item.Type, err)
	}
	saved.Description = nullableString(description)
	saved.Price = nullableString(price)
	saved.ImageURL = nullableString(imageURL)
	return saved, created, nil
}

// Polls

func (s *PostgresStore) CreatePoll(ctx context.Context, chatID, itineraryID, question string, options []NewPollOption) (Poll, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Poll{}, fmt.Errorf("begin create poll tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	poll := Poll{ChatID: chatID, ItineraryID: itineraryID, Question: question}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO polls (chat_id, itinerary_id, question)
		VALUES ($1, $2, $3)
		RETURNING id, type, status, created_at, updated_at
	`, chatID, itineraryID, question).Scan(&poll.ID, &poll.Type, &poll.Status, &poll.CreatedAt, &poll.UpdatedAt)
	if err != nil {
		return Poll{}, fmt.Errorf("insert poll: %w", err)
	}

	poll.Options = make([]PollOption, 0, len(options))
	for i, input := range options {
		option := PollOption{
			PollID:      poll.ID,
			Label:       input.Label,
			Description: input.Description,
			SortOrder:   i,
			Votes:       []PollVote{},
		}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO poll_options (poll_id, label, description, sort_order)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, poll.ID, option.Label, option.Description, option.SortOrder).Scan(&option.ID); err != nil {
			return Poll{}, fmt.Errorf("insert poll option: %w", err)
		}
		poll.Options = append(poll.Options, option)
	}

	if err := tx.Commit(); err != nil {
		return Poll{}, fmt.Errorf("commit create poll: %w", err)
	}
	return poll, nil
}

const pollColumns = `id, chat_id, itinerary_id, question, type, status, created_at, updated_at`

func scanPoll(row rowScanner) (Poll, error) {
	var poll Poll
	err := row.Scan(&poll.ID, &poll.ChatID, &poll.ItineraryID, &poll.Question, &poll.Type, &poll.Status, &poll.CreatedAt, &poll.UpdatedAt)
	return poll, err
}

func (s *PostgresStore) GetPoll(ctx context.Context, pollID string) (Poll, error) {
	poll, err := scanPoll(s.db.QueryRowContext(ctx, `SELECT `+pollColumns+` FROM polls WHERE id=$1`, pollID))
	if err != nil {
		return Poll{}, notFound(err)
	}
	polls := []Poll{poll}
	if err := s.loadPollOptions(ctx, polls); err != nil {
		return Poll{}, err
	}
	return polls[0], nil
}

// ListPollsByChat returns polls newest first with options and votes loaded.
func (s *PostgresStore) ListPollsByChat(ctx context.Context, chatID string) ([]Poll, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pollColumns+` FROM polls
		WHERE chat_id = $1
		ORDER BY created_at DESC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	defer rows.Close()

	polls := make([]Poll, 0)
	for rows.Next() {
		poll, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("scan poll: %w", err)
		}
		polls = append(polls, poll)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate polls: %w", err)
	}
	if err := s.loadPollOptions(ctx, polls); err != nil {
		return nil, err
	}
	return polls, nil
}

func (s *PostgresStore) loadPollOptions(ctx context.Context, polls []Poll) error {
	if len(polls) == 0 {
		return nil
	}
	pollIndex := make(map[string]int, len(polls))
	pollIDs := make([]string, 0, len(polls))
	for i := range polls {
		pollIndex[polls[i].ID] = i
		pollIDs = append(pollIDs, polls[i].ID)
		polls[i].Options = []PollOption{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, poll_id, label, description, sort_order
		FROM poll_options
		WHERE poll_id = ANY($1::uuid[])
		ORDER BY sort_order ASC, id ASC
	`, pollIDs)
	if err != nil {
		return fmt.Errorf("list poll options: %w", err)
	}
	defer rows.Close()

	type optionRef struct{ poll, option int }
	optionIndex := map[string]optionRef{}
	optionIDs := []string{}
	for rows.Next() {
		var option PollOption
		var description sql.NullString
		if err := rows.Scan(&option.ID, &option.PollID, &option.Label, &description, &option.SortOrder); err != nil {
			return fmt.Errorf("scan poll option: %w", err)
		}
		option.Description = nullableString(description)
		option.Votes = []PollVote{}
		p := pollIndex[option.PollID]
		polls[p].Options = append(polls[p].Options, option)
		optionIndex[option.ID] = optionRef{poll: p, option: len(polls[p].Options) - 1}
		optionIDs = append(optionIDs, option.ID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate poll options: %w", err)
	}
	if len(optionIDs) == 0 {
		return nil
	}

	voteRows, err := s.db.QueryContext(ctx, `
		SELECT id, poll_option_id, voter_name, created_at
		FROM poll_votes
		WHERE poll_option_id = ANY($1::uuid[])
		ORDER BY created_at ASC, id ASC
	`, optionIDs)
	if err != nil {
		return fmt.Errorf("list poll votes: %w", err)
	}
	defer voteRows.Close()

	for voteRows.Next() {
		var vote PollVote
		if err := voteRows.Scan(&vote.ID, &vote.PollOptionID, &vote.VoterName, &vote.CreatedAt); err != nil {
			return fmt.Errorf("scan poll vote: %w", err)
		}
		ref := optionIndex[vote.PollOptionID]
		polls[ref.poll].Options[ref.option].Votes = append(polls[ref.poll].Options[ref.option].Votes, vote)
	}
	if err := voteRows.Err(); err != nil {
		return fmt.Errorf("iterate poll votes: %w", err)
	}
	return nil
}

// CastVote records a vote. The poll row is locked so a concurrent submit
// cannot slip a vote in after the poll closes.
func (s *PostgresStore) CastVote(ctx context.Context, pollID, optionID, voterName string) (PollVote, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PollVote{}, fmt.Errorf("begin vote tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM polls WHERE id=$1 FOR UPDATE`, pollID).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PollVote{}, ErrNotFound
		}
		return PollVote{}, fmt.Errorf("lock poll: %w", err)
	}
	if status == PollSubmitted {
		return PollVote{}, ErrPollClosed
	}

	vote := PollVote{PollOptionID: optionID, VoterName: voterName}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO poll_votes (poll_option_id, voter_name)
		SELECT id, $3 FROM poll_options WHERE id=$2 AND poll_id=$1
		RETURNING id, created_at
	`, pollID, optionID, voterName).Scan(&vote.ID, &vote.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PollVote{}, fmt.Errorf("poll option %s: %w", optionID, ErrNotFound)
		}
		return PollVote{}, fmt.Errorf("insert vote: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return PollVote{}, fmt.Errorf("commit vote: %w", err)
	}
	return vote, nil
}

// SubmitPoll closes an active poll. Submitting a closed poll returns ErrPollClosed.
func (s *PostgresStore) SubmitPoll(ctx context.Context, pollID string) (Poll, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		UPDATE polls SET status='submitted', updated_at=NOW()
		WHERE id=$1 AND status='active'
		RETURNING id
	`, pollID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetPoll(ctx, pollID); getErr != nil {
			return Poll{}, getErr
		}
		return Poll{}, ErrPollClosed
	}
	if err != nil {
		return Poll{}, fmt.Errorf("submit poll: %w", err)
	}
	return s.GetPoll(ctx, id)
}
