// Package tools exposes the trip planner's itinerary and poll tools over MCP so
// an assistant host can call them directly.
package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tanmvo/relevance-ai-chat/internal/app"
)

// Trips is the part of app.Service the tools call. Calls run on behalf of the
// host, which is trusted to pass only chats it owns.
type Trips interface {
	UpdateTripMetadata(ctx context.Context, chatID string, input app.TripMetadataInput) (string, error)
	AddActivity(ctx context.Context, chatID string, input app.AddActivityInput) (string, error)
	RemoveActivity(ctx context.Context, chatID string, input app.RemoveActivityInput) (string, error)
	SetAccommodation(ctx context.Context, chatID string, input app.SetAccommodationInput) (string, error)
	SetTransport(ctx context.Context, chatID string, input app.SetTransportInput) (string, error)
	CreatePollTool(ctx context.Context, chatID string, input app.CreatePollInput) (app.CreatePollResult, error)
	PresentSuggestions(ctx context.Context, input app.PresentSuggestionsInput) (app.PresentSuggestionsInput, error)
}

// TextResult is the structured form of the tools that answer in plain text.
type TextResult struct {
	Message string `json:"message" jsonschema:"outcome of the tool call, written for the assistant"`
}

func textResult(message string) (*mcp.CallToolResult, TextResult, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
	}, TextResult{Message: message}, nil
}

type UpdateTripMetadataInput struct {
	ChatID      string  `json:"chatId" jsonschema:"chat whose itinerary is updated"`
	TripName    *string `json:"tripName,omitempty" jsonschema:"display name of the trip"`
	Destination *string `json:"destination,omitempty" jsonschema:"main destination"`
	StartDate   *string `json:"startDate,omitempty" jsonschema:"first day, YYYY-MM-DD"`
	EndDate     *string `json:"endDate,omitempty" jsonschema:"last day, YYYY-MM-DD"`
	Adults      *int    `json:"adults,omitempty" jsonschema:"number of adult travelers"`
	Children    *int    `json:"children,omitempty" jsonschema:"number of child travelers"`
}

func UpdateTripMetadataTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        app.ToolUpdateTripMetadata,
		Description: "Updates the trip name, destination, dates or traveler counts. Only the fields provided are changed.",
	}
}

func UpdateTripMetadataHandler(trips Trips) mcp.ToolHandlerFor[UpdateTripMetadataInput, TextResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input UpdateTripMetadataInput) (*mcp.CallToolResult, TextResult, error) {
		message, err := trips.UpdateTripMetadata(ctx, input.ChatID, app.TripMetadataInput{
			TripName:    input.TripName,
			Destination: input.Destination,
			StartDate:   input.StartDate,
			EndDate:     input.EndDate,
			Adults:      input.Adults,
			Children:    input.Children,
		})
		if err != nil {
			return nil, TextResult{}, toolError(ToolUpdateTripMetadata, err)
		}
		return textResult(message)
	}
}

type AddActivityInput struct {
	ChatID      string  `json:"chatId" jsonschema:"chat whose itinerary is updated"`
	Day         string  `json:"day" jsonschema:"day of the activity, YYYY-MM-DD"`
	TimeBlock   string  `json:"timeBlock" jsonschema:"morning, afternoon or night"`
	Type        string  `json:"type" jsonschema:"activity or meal"`
	Name        string  `json:"name" jsonschema:"what to do or where to eat"`
	Description *string `json:"description,omitempty" jsonschema:"short note shown under the name"`
	Price       *string `json:"price,omitempty" jsonschema:"free-form price, e.g. $40 per person"`
	ImageURL    *string `json:"imageUrl,omitempty" jsonschema:"image to show on the card"`
}

func AddActivityTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        app.ToolAddActivity,
		Description: "Adds an activity or meal to a day and time block. New items go after the ones already in that block.",
	}
}

func AddActivityHandler(trips Trips) mcp.ToolHandlerFor[AddActivityInput, TextResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AddActivityInput) (*mcp.CallToolResult, TextResult, error) {
		message, err := trips.AddActivity(ctx, input.ChatID, app.AddActivityInput{
			Day:         input.Day,
			TimeBlock:   input.TimeBlock,
			Type:        input.Type,
			Name:        input.Name,
			Description: input.Description,
			Price:       input.Price,
			ImageURL:    input.ImageURL,
		})
		if err != nil {
			return nil, TextResult{}, toolError(ToolAddActivity, err)
		}
		return textResult(message)
	}
}

type RemoveActivityInput struct {
	ChatID    string  `json:"chatId" jsonschema:"chat whose itinerary is updated"`
	Name      string  `json:"name" jsonschema:"part of the item name, matched case-insensitively"`
	Day       *string `json:"day,omitempty" jsonschema:"narrows the match to a day, YYYY-MM-DD"`
	TimeBlock *string `json:"timeBlock,omitempty" jsonschema:"narrows the match to morning, afternoon or night"`
}

func RemoveActivityTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        app.ToolRemoveActivity,
		Description: "Removes one itinerary item by name. When several items match, the day and time block narrow the choice.",
	}
}

func RemoveActivityHandler(trips Trips) mcp.ToolHandlerFor[RemoveActivityInput, TextResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RemoveActivityInput) (*mcp.CallToolResult, TextResult, error) {
		message, err := trips.RemoveActivity(ctx, input.ChatID, app.RemoveActivityInput{
			Name:      input.Name,
			Day:       input.Day,
			TimeBlock: input.TimeBlock,
		})
		if err != nil {
			return nil, TextResult{}, toolError(ToolRemoveActivity, err)
		}
		return textResult(message)
	}
}

type SetAccommodationInput struct {
	ChatID      string  `json:"chatId" jsonschema:"chat whose itinerary is updated"`
	Day         string  `json:"day" jsonschema:"night of the stay, YYYY-MM-DD"`
	TimeBlock   string  `json:"timeBlock" jsonschema:"morning, afternoon or night"`
	Name        string  `json:"name" jsonschema:"hotel or lodging name"`
	Description *string `json:"description,omitempty" jsonschema:"short note shown under the name"`
	Price       *string `json:"price,omitempty" jsonschema:"free-form price, e.g. $180 per night"`
	ImageURL    *string `json:"imageUrl,omitempty" jsonschema:"image to show on the card"`
}

func SetAccommodationTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        app.ToolSetAccommodation,
		Description: "Sets the accommodation for a day and time block, replacing any accommodation already there.",
	}
}

func SetAccommodationHandler(trips Trips) mcp.ToolHandlerFor[SetAccommodationInput, TextResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SetAccommodationInput) (*mcp.CallToolResult, TextResult, error) {
		message, err := trips.SetAccommodation(ctx, input.ChatID, app.SetAccommodationInput{
			Day:         input.Day,
			TimeBlock:   input.TimeBlock,
			Name:        input.Name,
			Description: input.Description,
			Price:       input.Price,
			ImageURL:    input.ImageURL,
		})
		if err != nil {
			return nil, TextResult{}, toolError(ToolSetAccommodation, err)
		}
		return textResult(message)
	}
}

type SetTransportInput struct {
	ChatID        string  `json:"chatId" jsonschema:"chat whose itinerary is updated"`
	Day           string  `json:"day" jsonschema:"day of travel, YYYY-MM-DD"`
	TimeBlock     string  `json:"timeBlock" jsonschema:"morning, afternoon or night"`
	TransportType string  `json:"transportType" jsonschema:"flight, train, car or bus"`
	Name          string  `json:"name" jsonschema:"carrier, route or booking name"`
	Description   *string `json:"description,omitempty" jsonschema:"short note shown under the name"`
	Price         *string `json:"price,omitempty" jsonschema:"free-form price"`
}

func SetTransportTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        app.ToolSetTransport,
		Description: "Sets the transport for a day and time block, replacing any transport already there.",
	}
}

func SetTransportHandler(trips Trips) mcp.ToolHandlerFor[SetTransportInput, TextResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SetTransportInput) (*mcp.CallToolResult, TextResult, error) {
		message, err := trips.SetTransport(ctx, input.ChatID, app.SetTransportInput{
			Day:           input.Day,
			TimeBlock:     input.TimeBlock,
			TransportType: input.TransportType,
			Name:          input.Name,
			Description:   input.Description,
			Price:         input.Price,
		})
		if err != nil {
			return nil, TextResult{}, toolError(ToolSetTransport, err)
		}
		return textResult(message)
	}
}

type PollOption struct {
	Label       string  `json:"label" jsonschema:"choice shown to voters"`
	Description *string `json:"description,omitempty" jsonschema:"extra detail for the choice"`
}

type CreatePollInput struct {
	ChatID   string       `json:"chatId" jsonschema:"chat the poll belongs to"`
	Question string       `json:"question" jsonschema:"question put to the group"`
	Options  []PollOption `json:"options" jsonschema:"two or three choices"`
}

func CreatePollTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        app.ToolCreatePoll,
		Description: "Creates a group poll with two or three options and returns a share link voters can open without an account.",
	}
}

func CreatePollHandler(trips Trips) mcp.ToolHandlerFor[CreatePollInput, app.CreatePollResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CreatePollInput) (*mcp.CallToolResult, app.CreatePollResult, error) {
		options := make([]app.PollOptionInput, 0, len(input.Options))
		for _, option := range input.Options {
			options = append(options, app.PollOptionInput{Label: option.Label, Description: option.Description})
		}
		result, err := trips.CreatePollTool(ctx, input.ChatID, app.CreatePollInput{Question: input.Question, Options: options})
		if err != nil {
			return nil, app.CreatePollResult{}, toolError(ToolCreatePoll, err)
		}
		return nil, result, nil
	}
}

func PresentSuggestionsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        app.ToolPresentSuggestions,
		Description: "Shows the traveler two to four options to pick from. Nothing is saved.",
	}
}

func PresentSuggestionsHandler(trips Trips) mcp.ToolHandlerFor[app.PresentSuggestionsInput, app.PresentSuggestionsInput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input app.PresentSuggestionsInput) (*mcp.CallToolResult, app.PresentSuggestionsInput, error) {
		output, err := trips.PresentSuggestions(ctx, input)
		if err != nil {
			return nil, app.PresentSuggestionsInput{}, toolError(ToolPresentSuggestions, err)
		}
		return nil, output, nil
	}
}

// Tool names, re-exported so callers of this package need not import app.
const (
	ToolUpdateTripMetadata = app.ToolUpdateTripMetadata
	ToolAddActivity        = app.ToolAddActivity
	ToolRemoveActivity     = app.ToolRemoveActivity
	ToolSetAccommodation   = app.ToolSetAccommodation
	ToolSetTransport       = app.ToolSetTransport
	ToolCreatePoll         = app.ToolCreatePoll
	ToolPresentSuggestions = app.ToolPresentSuggestions
)

func toolError(tool string, err error) error {
	return fmt.Errorf("%s failed: %w", tool, err)
}

func registerTripTools(server *mcp.Server, trips Trips) {
	mcp.AddTool(server, UpdateTripMetadataTool(), UpdateTripMetadataHandler(trips))
	mcp.AddTool(server, AddActivityTool(), AddActivityHandler(trips))
	mcp.AddTool(server, RemoveActivityTool(), RemoveActivityHandler(trips))
	mcp.AddTool(server, SetAccommodationTool(), SetAccommodationHandler(trips))
	mcp.AddTool(server, SetTransportTool(), SetTransportHandler(trips))
}

func registerPollTools(server *mcp.Server, trips Trips) {
	mcp.AddTool(server, CreatePollTool(), CreatePollHandler(trips))
	mcp.AddTool(server, PresentSuggestionsTool(), PresentSuggestionsHandler(trips))
}
