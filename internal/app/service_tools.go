package app

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/tanmvo/relevance-ai-chat/internal/events"
	"github.com/tanmvo/relevance-ai-chat/internal/history"
	"github.com/tanmvo/relevance-ai-chat/internal/search"
	"github.com/tanmvo/relevance-ai-chat/internal/store"
	"github.com/tanmvo/relevance-ai-chat/internal/tripview"
	"github.com/tanmvo/relevance-ai-chat/internal/util"
)

// NoItineraryMessage is what the string-returning tools answer when the chat
// has no itinerary yet.
const NoItineraryMessage = "No itinerary found for this chat. Please try again."

const toolAuthor = "assistant"

// Tool names as exposed to the assistant.
const (
	ToolUpdateTripMetadata = "updateTripMetadata"
	ToolAddActivity        = "addActivity"
	ToolRemoveActivity     = "removeActivity"
	ToolSetAccommodation   = "setAccommodation"
	ToolSetTransport       = "setTransport"
	ToolCreatePoll         = "createPoll"
	ToolPresentSuggestions = "presentSuggestions"
)

type TripMetadataInput struct {
	TripName    *string `json:"tripName,omitempty" validate:"omitempty,max=200"`
	Destination *string `json:"destination,omitempty" validate:"omitempty,max=200"`
	StartDate   *string `json:"startDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate     *string `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Adults      *int    `json:"adults,omitempty" validate:"omitempty,min=0"`
	Children    *int    `json:"children,omitempty" validate:"omitempty,min=0"`
}

type AddActivityInput struct {
	Day         string  `json:"day" validate:"required,datetime=2006-01-02"`
	TimeBlock   string  `json:"timeBlock" validate:"required,timeblock"`
	Type        string  `json:"type" validate:"required,oneof=activity meal"`
	Name        string  `json:"name" validate:"required,max=300"`
	Description *string `json:"description,omitempty"`
	Price       *string `json:"price,omitempty"`
	ImageURL    *string `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

type RemoveActivityInput struct {
	Name      string  `json:"name" validate:"required"`
	Day       *string `json:"day,omitempty" validate:"omitempty,datetime=2006-01-02"`
	TimeBlock *string `json:"timeBlock,omitempty" validate:"omitempty,timeblock"`
}

type SetAccommodationInput struct {
	Day         string  `json:"day" validate:"required,datetime=2006-01-02"`
	TimeBlock   string  `json:"timeBlock" validate:"required,timeblock"`
	Name        string  `json:"name" validate:"required,max=300"`
	Description *string `json:"description,omitempty"`
	Price       *string `json:"price,omitempty"`
	ImageURL    *string `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

type SetTransportInput struct {
	Day           string  `json:"day" validate:"required,datetime=2006-01-02"`
	TimeBlock     string  `json:"timeBlock" validate:"required,timeblock"`
	TransportType string  `json:"transportType" validate:"required,oneof=flight train car bus"`
	Name          string  `json:"name" validate:"required,max=300"`
	Description   *string `json:"description,omitempty"`
	Price         *string `json:"price,omitempty"`
}

type PollOptionInput struct {
	Label       string  `json:"label" validate:"required,max=200"`
	Description *string `json:"description,omitempty"`
}

type CreatePollInput struct {
	Question string            `json:"question" validate:"required,max=500"`
	Options  []PollOptionInput `json:"options" validate:"min=2,max=3,dive"`
}

type CreatedPollOption struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Description *string `json:"description,omitempty"`
}

// CreatePollResult is the structured answer of the createPoll tool. On failure
// only Success and Error are set.
type CreatePollResult struct {
	Success  bool                `json:"success"`
	Error    string              `json:"error,omitempty"`
	PollID   string              `json:"pollId,omitempty"`
	Question string              `json:"question,omitempty"`
	Options  []CreatedPollOption `json:"options,omitempty"`
	ShareURL string              `json:"shareUrl,omitempty"`
}

type Suggestion struct {
	Title          string  `json:"title" validate:"required"`
	Description    *string `json:"description,omitempty" validate:"omitempty,max=80"`
	Type           *string `json:"type,omitempty" validate:"omitempty,oneof=activity meal accommodation transport experience destination"`
	EstimatedPrice *string `json:"estimatedPrice,omitempty"`
	Duration       *string `json:"duration,omitempty"`
}

type PresentSuggestionsInput struct {
	Context     string       `json:"context" validate:"required"`
	Suggestions []Suggestion `json:"suggestions" validate:"min=2,max=4,dive"`
}

// itineraryForChat returns nil when the chat has no itinerary. Malformed ids
// behave like unknown chats.
func (s *Service) itineraryForChat(ctx context.Context, chatID string) (*store.Itinerary, error) {
	if !util.ValidID(chatID) {
		return nil, nil
	}
	it, err := s.store.GetItineraryByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load itinerary: %w", err)
	}
	return it, nil
}

func (s *Service) UpdateTripMetadata(ctx context.Context, chatID string, input TripMetadataInput) (string, error) {
	if err := validate.Struct(input); err != nil {
		return "", validationError("tool", err)
	}
	it, err := s.itineraryForChat(ctx, chatID)
	if err != nil {
		return "", err
	}
	if it == nil {
		return NoItineraryMessage, nil
	}

	patch := store.ItineraryPatch{
		TripName:    input.TripName,
		Destination: input.Destination,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		Adults:      input.Adults,
		Children:    input.Children,
	}
	if patch.Empty() {
		return "No fields provided to update.", nil
	}
	if _, err := s.store.UpdateItineraryMetadata(ctx, it.ID, patch); err != nil {
		return "", fmt.Errorf("update itinerary metadata: %w", err)
	}
	s.itineraryChanged(ctx, chatID, it.ID, "Update trip metadata")

	var fields []string
	if input.TripName != nil {
		fields = append(fields, "trip name: "+*input.TripName)
	}
	if input.Destination != nil {
		fields = append(fields, "destination: "+*input.Destination)
	}
	if input.StartDate != nil {
		fields = append(fields, "start date: "+*input.StartDate)
	}
	if input.EndDate != nil {
		fields = append(fields, "end date: "+*input.EndDate)
	}
	if input.Adults != nil {
		fields = append(fields, "adults: "+strconv.Itoa(*input.Adults))
	}
	if input.Children != nil {
		fields = append(fields, "children: "+strconv.Itoa(*input.Children))
	}
	return "Updated trip metadata: " + strings.Join(fields, ", "), nil
}

func (s *Service) AddActivity(ctx context.Context, chatID string, input AddActivityInput) (string, error) {
	if err := validate.Struct(input); err != nil {
		return "", validationError("tool", err)
	}
	it, err := s.itineraryForChat(ctx, chatID)
	if err != nil {
		return "", err
	}
	if it == nil {
		return NoItineraryMessage, nil
	}

	block, _ := tripview.NormalizeTimeBlock(input.TimeBlock)
	items, err := s.store.ListItineraryItems(ctx, it.ID)
	if err != nil {
		return "", fmt.Errorf("list itinerary items: %w", err)
	}
	bucket := lo.Filter(items, func(item store.ItineraryItem, _ int) bool {
		return item.Day == input.Day && item.TimeBlock == block
	})
	sortOrder := 0
	if len(bucket) > 0 {
		sortOrder = lo.MaxBy(bucket, func(a, b store.ItineraryItem) bool { return a.SortOrder > b.SortOrder }).SortOrder + 1
	}

	item, err := s.store.AddItineraryItem(ctx, store.ItineraryItem{
		ItineraryID: it.ID,
		Day:         input.Day,
		TimeBlock:   block,
		Type:        input.Type,
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		ImageURL:    input.ImageURL,
		SortOrder:   sortOrder,
	})
	if err != nil {
		return "", fmt.Errorf("add itinerary item: %w", err)
	}
	s.indexItem(ctx, chatID, item)
	s.itineraryChanged(ctx, chatID, it.ID, fmt.Sprintf("Add %s \"%s\"", input.Type, input.Name))

	return fmt.Sprintf("Added \"%s\" to %s %s as %s.", input.Name, input.Day, input.TimeBlock, input.Type), nil
}

func (s *Service) RemoveActivity(ctx context.Context, chatID string, input RemoveActivityInput) (string, error) {
	if err := validate.Struct(input); err != nil {
		return "", validationError("tool", err)
	}
	it, err := s.itineraryForChat(ctx, chatID)
	if err != nil {
		return "", err
	}
	if it == nil {
		return NoItineraryMessage, nil
	}
	items, err := s.store.ListItineraryItems(ctx, it.ID)
	if err != nil {
		return "", fmt.Errorf("list itinerary items: %w", err)
	}

	needle := strings.ToLower(input.Name)
	matches := lo.Filter(items, func(item store.ItineraryItem, _ int) bool {
		return strings.Contains(strings.ToLower(item.Name), needle)
	})
	if len(matches) == 0 {
		names := lo.Map(items, func(item store.ItineraryItem, _ int) string { return item.Name })
		return fmt.Sprintf("No item matching \"%s\" found in the itinerary. Available items: %s", input.Name, strings.Join(names, ", ")), nil
	}

	// Each filter only applies when it keeps at least one match.
	if len(matches) > 1 && input.Day != nil {
		matches = narrow(matches, func(item store.ItineraryItem) bool { return item.Day == *input.Day })
	}
	if len(matches) > 1 && input.TimeBlock != nil {
		block, _ := tripview.NormalizeTimeBlock(*input.TimeBlock)
		matches = narrow(matches, func(item store.ItineraryItem) bool { return item.TimeBlock == block })
	}
	if len(matches) > 1 {
		listed := lo.Map(matches, func(item store.ItineraryItem, _ int) string {
			return fmt.Sprintf("\"%s\" (%s %s)", item.Name, item.Day, item.TimeBlock)
		})
		return fmt.Sprintf("Multiple items match \"%s\": %s. Please specify the day or time block to narrow it down.", input.Name, strings.Join(listed, ", ")), nil
	}

	target := matches[0]
	if err := s.store.RemoveItineraryItem(ctx, target.ID); err != nil {
		return "", fmt.Errorf("remove itinerary item: %w", err)
	}
	s.search.DeleteItem(target.ID)
	s.itineraryChanged(ctx, chatID, it.ID, fmt.Sprintf("Remove \"%s\"", target.Name))

	return fmt.Sprintf("Removed \"%s\" from %s %s.", target.Name, target.Day, target.TimeBlock), nil
}

func narrow(items []store.ItineraryItem, keep func(store.ItineraryItem) bool) []store.ItineraryItem {
	filtered := lo.Filter(items, func(item store.ItineraryItem, _ int) bool { return keep(item) })
	if len(filtered) == 0 {
		return items
	}
	return filtered
}

func (s *Service) SetAccommodation(ctx context.Context, chatID string, input SetAccommodationInput) (string, error) {
	if err := validate.Struct(input); err != nil {
		return "", validationError("tool", err)
	}
	it, err := s.itineraryForChat(ctx, chatID)
	if err != nil {
		return "", err
	}
	if it == nil {
		return NoItineraryMessage, nil
	}

	block, _ := tripview.NormalizeTimeBlock(input.TimeBlock)
	item, _, err := s.store.UpsertSlotItem(ctx, store.ItineraryItem{
		ItineraryID: it.ID,
		Day:         input.Day,
		TimeBlock:   block,
		Type:        store.ItemAccommodation,
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		ImageURL:    input.ImageURL,
	})
	if err != nil {
		return "", fmt.Errorf("set accommodation: %w", err)
	}
	s.indexItem(ctx, chatID, item)
	s.itineraryChanged(ctx, chatID, it.ID, fmt.Sprintf("Set accommodation for %s %s", input.Day, block))

	return fmt.Sprintf("Set accommodation for %s %s: %s", input.Day, input.TimeBlock, input.Name), nil
}

func (s *Service) SetTransport(ctx context.Context, chatID string, input SetTransportInput) (string, error) {
	if err := validate.Struct(input); err != nil {
		return "", validationError("tool", err)
	}
	it, err := s.itineraryForChat(ctx, chatID)
	if err != nil {
		return "", err
	}
	if it == nil {
		return NoItineraryMessage, nil
	}

	block, _ := tripview.NormalizeTimeBlock(input.TimeBlock)
	item, _, err := s.store.UpsertSlotItem(ctx, store.ItineraryItem{
		ItineraryID: it.ID,
		Day:         input.Day,
		TimeBlock:   block,
		Type:        store.ItemTransport,
		Name:        fmt.Sprintf("[%s] %s", input.TransportType, input.Name),
		Description: input.Description,
		Price:       input.Price,
	})
	if err != nil {
		return "", fmt.Errorf("set transport: %w", err)
	}
	s.indexItem(ctx, chatID, item)
	s.itineraryChanged(ctx, chatID, it.ID, fmt.Sprintf("Set %s for %s %s", input.TransportType, input.Day, block))

	return fmt.Sprintf("Set %s for %s %s: %s", input.TransportType, input.Day, input.TimeBlock, input.Name), nil
}

func (s *Service) CreatePollTool(ctx context.Context, chatID string, input CreatePollInput) (CreatePollResult, error) {
	if err := validate.Struct(input); err != nil {
		return CreatePollResult{}, validationError("tool", err)
	}
	it, err := s.itineraryForChat(ctx, chatID)
	if err != nil {
		return CreatePollResult{}, err
	}
	if it == nil {
		return CreatePollResult{Success: false, Error: NoItineraryMessage}, nil
	}

	poll, err := s.createPoll(ctx, chatID, it.ID, input)
	if err != nil {
		return CreatePollResult{}, err
	}
	return CreatePollResult{
		Success:  true,
		PollID:   poll.ID,
		Question: poll.Question,
		Options: lo.Map(poll.Options, func(option store.PollOption, _ int) CreatedPollOption {
			return CreatedPollOption{ID: option.ID, Label: option.Label, Description: option.Description}
		}),
		ShareURL: "/poll/" + poll.ID,
	}, nil
}

// PresentSuggestions validates and echoes a choice card. It touches no state.
func (s *Service) PresentSuggestions(_ context.Context, input PresentSuggestionsInput) (PresentSuggestionsInput, error) {
	if err := validate.Struct(input); err != nil {
		return PresentSuggestionsInput{}, validationError("tool", err)
	}
	return input, nil
}

// itineraryChanged notifies subscribers and records a history revision. Both
// are best effort.
func (s *Service) itineraryChanged(ctx context.Context, chatID, itineraryID, message string) {
	if err := s.events.Publish(ctx, chatID, events.Event{Type: events.TypeItineraryUpdate, Data: itineraryID}); err != nil {
		log.Printf("events: publish itinerary update for chat %s: %v", chatID, err)
	}
	s.recordHistory(ctx, itineraryID, message)
}

func (s *Service) recordHistory(ctx context.Context, itineraryID, message string) {
	if s.history == nil {
		return
	}
	it, err := s.store.GetItinerary(ctx, itineraryID)
	if err != nil {
		log.Printf("history: load itinerary %s: %v", itineraryID, err)
		return
	}
	items, err := s.store.ListItineraryItems(ctx, itineraryID)
	if err != nil {
		log.Printf("history: load items %s: %v", itineraryID, err)
		return
	}
	if _, _, err := s.history.Record(itineraryID, history.FromStore(it, items), toolAuthor, message); err != nil {
		log.Printf("history: record %s: %v", itineraryID, err)
	}
}

func (s *Service) indexItem(ctx context.Context, chatID string, item store.ItineraryItem) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		log.Printf("search: load chat %s for indexing: %v", chatID, err)
		return
	}
	s.search.IndexItem(search.NewItemRecord(item, chat))
}
