package app

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/tanmvo/relevance-ai-chat/internal/rbac"
)

// ToolResult wraps the plain-text answer of the string-returning tools.
type ToolResult struct {
	Tool   string `json:"tool"`
	Result string `json:"result"`
}

func decodeToolArgs(args json.RawMessage, target any) error {
	if len(bytes.TrimSpace(args)) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, target); err != nil {
		return badRequest("tool", "Invalid tool arguments")
	}
	return nil
}

// InvokeTool runs a tool on behalf of the chat owner. It is the HTTP
// counterpart of the MCP server, which trusts its host and skips this check.
func (s *Service) InvokeTool(ctx context.Context, session Session, chatID, name string, args json.RawMessage) (any, error) {
	if _, err := s.authorizeChat(ctx, session, chatID, rbac.ActionWrite, "chat"); err != nil {
		return nil, err
	}
	return s.RunTool(ctx, chatID, name, args)
}

func (s *Service) RunTool(ctx context.Context, chatID, name string, args json.RawMessage) (any, error) {
	text := func(result string, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		return ToolResult{Tool: name, Result: result}, nil
	}

	switch name {
	case ToolUpdateTripMetadata:
		var input TripMetadataInput
		if err := decodeToolArgs(args, &input); err != nil {
			return nil, err
		}
		return text(s.UpdateTripMetadata(ctx, chatID, input))
	case ToolAddActivity:
		var input AddActivityInput
		if err := decodeToolArgs(args, &input); err != nil {
			return nil, err
		}
		return text(s.AddActivity(ctx, chatID, input))
	case ToolRemoveActivity:
		var input RemoveActivityInput
		if err := decodeToolArgs(args, &input); err != nil {
			return nil, err
		}
		return text(s.RemoveActivity(ctx, chatID, input))
	case ToolSetAccommodation:
		var input SetAccommodationInput
		if err := decodeToolArgs(args, &input); err != nil {
			return nil, err
		}
		return text(s.SetAccommodation(ctx, chatID, input))
	case ToolSetTransport:
		var input SetTransportInput
		if err := decodeToolArgs(args, &input); err != nil {
			return nil, err
		}
		return text(s.SetTransport(ctx, chatID, input))
	case ToolCreatePoll:
		var input CreatePollInput
		if err := decodeToolArgs(args, &input); err != nil {
			return nil, err
		}
		return s.CreatePollTool(ctx, chatID, input)
	case ToolPresentSuggestions:
		var input PresentSuggestionsInput
		if err := decodeToolArgs(args, &input); err != nil {
			return nil, err
		}
		return s.PresentSuggestions(ctx, input)
	default:
		return nil, notFound("tool", "Unknown tool: "+name)
	}
}
