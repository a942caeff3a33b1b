package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrPollClosed = errors.New("poll closed")
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

const (
	ItemActivity      = "activity"
	ItemAccommodation = "accommodation"
	ItemTransport     = "transport"
	ItemMeal          = "meal"
)

const (
	PollActive    = "active"
	PollSubmitted = "submitted"

	PollTypeMultipleChoice = "multiple_choice"
)

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	IsGuest      bool
	CreatedAt    time.Time
}

type Chat struct {
	ID         string
	UserID     string
	Title      string
	Visibility string
	CreatedAt  time.Time
}

// ChatPage is one page of a user's chat list.
type ChatPage struct {
	Chats   []Chat
	HasMore bool
}

// Itinerary dates are YYYY-MM-DD strings; nil means unset.
type Itinerary struct {
	ID          string
	ChatID      string
	TripName    *string
	Destination *string
	StartDate   *string
	EndDate     *string
	Adults      int
	Children    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItineraryPatch carries the metadata fields to change. Nil fields are left alone.
type ItineraryPatch struct {
	TripName    *string
	Destination *string
	StartDate   *string
	EndDate     *string
	Adults      *int
	Children    *int
}

func (p ItineraryPatch) Empty() bool {
	return p.TripName == nil && p.Destination == nil && p.StartDate == nil &&
		p.EndDate == nil && p.Adults == nil && p.Children == nil
}

type ItineraryItem struct {
	ID          string
	ItineraryID string
	Day         string
	TimeBlock   string
	Type        string
	Name        string
	Description *string
	Price       *string
	ImageURL    *string
	SortOrder   int
	CreatedAt   time.Time
}

// ItemPatch updates an existing item in place.
type ItemPatch struct {
	Day         *string
	TimeBlock   *string
	Name        *string
	Description *string
	Price       *string
	ImageURL    *string
	SortOrder   *int
}

type Poll struct {
	ID          string
	ChatID      string
	ItineraryID string
	Question    string
	Type        string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Options     []PollOption
}

type PollOption struct {
	ID          string
	PollID      string
	Label       string
	Description *string
	SortOrder   int
	Votes       []PollVote
}

type PollVote struct {
	ID           string
	PollOptionID string
	VoterName    string
	CreatedAt    time.Time
}

// NewPollOption is the input for one option when creating a poll.
type NewPollOption struct {
	Label       string
	Description *string
}

// HasOption reports whether optionID belongs to the poll.
func (p Poll) HasOption(optionID string) bool {
	for _, option := range p.Options {
		if option.ID == optionID {
			return true
		}
	}
	return false
}
