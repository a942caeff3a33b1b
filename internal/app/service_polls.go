package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/samber/lo"

	"github.com/tanmvo/relevance-ai-chat/internal/email"
	"github.com/tanmvo/relevance-ai-chat/internal/events"
	"github.com/tanmvo/relevance-ai-chat/internal/rbac"
	"github.com/tanmvo/relevance-ai-chat/internal/search"
	"github.com/tanmvo/relevance-ai-chat/internal/store"
	"github.com/tanmvo/relevance-ai-chat/internal/tripview"
	"github.com/tanmvo/relevance-ai-chat/internal/util"
)

const (
	pollRequiredMessage  = "chatId, question, and at least 2 options are required"
	pollTooManyMessage   = "A poll can have at most 3 options"
	pollClosedMessage    = "This poll is closed and no longer accepting votes"
	pollSubmittedMessage = "This poll has already been submitted"
	pollOptionMessage    = "Invalid option ID for this poll"
	maxPollOptions       = 3
)

func (s *Service) getPoll(ctx context.Context, pollID string) (store.Poll, error) {
	if !util.ValidID(pollID) {
		return store.Poll{}, notFound("poll", "Poll not found")
	}
	poll, err := s.store.GetPoll(ctx, pollID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Poll{}, notFound("poll", "Poll not found")
	}
	if err != nil {
		return store.Poll{}, fmt.Errorf("get poll: %w", err)
	}
	return poll, nil
}

// ListPolls returns the chat's polls, active first. An unknown chat has no polls.
func (s *Service) ListPolls(ctx context.Context, session Session, chatID string) ([]map[string]any, error) {
	if chatID == "" {
		return nil, badRequest("api", "Missing required query parameter: chatId")
	}
	chat, role, err := s.loadChat(ctx, session, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return []map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if !rbac.Can(role, rbac.ActionWrite) {
		return nil, forbidden("poll", forbiddenMessage("poll"))
	}
	polls, err := s.store.ListPollsByChat(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	return lo.Map(tripview.SortPolls(polls), func(poll store.Poll, _ int) map[string]any {
		return pollPayload(poll)
	}), nil
}

type CreatePollRequest struct {
	ChatID   string            `json:"chatId"`
	Question string            `json:"question"`
	Options  []PollOptionInput `json:"options"`
}

func (s *Service) CreatePoll(ctx context.Context, session Session, req CreatePollRequest) (map[string]any, error) {
	if req.ChatID == "" || strings.TrimSpace(req.Question) == "" || len(req.Options) < 2 {
		return nil, badRequest("poll", pollRequiredMessage)
	}
	if len(req.Options) > maxPollOptions {
		return nil, badRequest("poll", pollTooManyMessage)
	}
	input := CreatePollInput{Question: req.Question, Options: req.Options}
	if err := validate.Struct(input); err != nil {
		return nil, validationError("poll", err)
	}

	chat, err := s.authorizeChat(ctx, session, req.ChatID, rbac.ActionWrite, "poll")
	if err != nil {
		return nil, err
	}
	it, err := s.store.GetItineraryByChat(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("load itinerary: %w", err)
	}
	if it == nil {
		return nil, notFound("poll", "No itinerary found for this chat")
	}

	poll, err := s.createPoll(ctx, chat.ID, it.ID, input)
	if err != nil {
		return nil, err
	}
	return pollPayload(poll), nil
}

func (s *Service) createPoll(ctx context.Context, chatID, itineraryID string, input CreatePollInput) (store.Poll, error) {
	options := lo.Map(input.Options, func(option PollOptionInput, _ int) store.NewPollOption {
		return store.NewPollOption{Label: option.Label, Description: option.Description}
	})
	poll, err := s.store.CreatePoll(ctx, chatID, itineraryID, input.Question, options)
	if err != nil {
		return store.Poll{}, fmt.Errorf("create poll: %w", err)
	}
	s.pollChanged(ctx, poll)
	return poll, nil
}

func (s *Service) pollChanged(ctx context.Context, poll store.Poll) {
	if err := s.events.Publish(ctx, poll.ChatID, events.Event{Type: events.TypePollUpdate, Data: poll.ID}); err != nil {
		log.Printf("events: publish poll update for chat %s: %v", poll.ChatID, err)
	}
	chat, err := s.store.GetChat(ctx, poll.ChatID)
	if err != nil {
		log.Printf("search: load chat %s for indexing: %v", poll.ChatID, err)
		return
	}
	s.search.IndexPoll(search.NewPollRecord(poll, chat))
}

// PublicPoll is the voter-facing view and needs no session.
func (s *Service) PublicPoll(ctx context.Context, pollID string) (map[string]any, error) {
	poll, err := s.getPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	var tripContext any
	if it, err := s.store.GetItinerary(ctx, poll.ItineraryID); err == nil {
		tripContext = tripContextPayload(it)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load itinerary: %w", err)
	}
	return map[string]any{
		"poll":        pollPayload(poll),
		"tripContext": tripContext,
	}, nil
}

func (s *Service) Vote(ctx context.Context, pollID, optionID, voterName string) (map[string]any, error) {
	voterName = strings.TrimSpace(voterName)
	if optionID == "" || voterName == "" {
		return nil, badRequest("poll", "optionId and voterName are required")
	}
	poll, err := s.getPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if poll.Status == store.PollSubmitted {
		return nil, badRequest("poll", pollClosedMessage)
	}
	if !poll.HasOption(optionID) {
		return nil, badRequest("poll", pollOptionMessage)
	}

	vote, err := s.store.CastVote(ctx, poll.ID, optionID, voterName)
	switch {
	case errors.Is(err, store.ErrPollClosed):
		return nil, badRequest("poll", pollClosedMessage)
	case errors.Is(err, store.ErrNotFound):
		return nil, badRequest("poll", pollOptionMessage)
	case err != nil:
		return nil, fmt.Errorf("cast vote: %w", err)
	}
	if err := s.events.Publish(ctx, poll.ChatID, events.Event{Type: events.TypePollUpdate, Data: poll.ID}); err != nil {
		log.Printf("events: publish poll update for chat %s: %v", poll.ChatID, err)
	}
	return votePayload(vote), nil
}

// SubmitPoll closes voting. Submitted is terminal.
func (s *Service) SubmitPoll(ctx context.Context, session Session, pollID string) (map[string]any, error) {
	poll, err := s.getPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if poll.Status == store.PollSubmitted {
		return nil, badRequest("poll", pollSubmittedMessage)
	}
	if _, err := s.authorizeChat(ctx, session, poll.ChatID, rbac.ActionWrite, "poll"); err != nil {
		return nil, err
	}

	updated, err := s.store.SubmitPoll(ctx, poll.ID)
	if errors.Is(err, store.ErrPollClosed) {
		return nil, badRequest("poll", pollSubmittedMessage)
	}
	if err != nil {
		return nil, fmt.Errorf("submit poll: %w", err)
	}
	s.pollChanged(ctx, updated)
	return pollPayload(updated), nil
}

// PollResults renders the tally as text the organizer can hand to the assistant.
func (s *Service) PollResults(ctx context.Context, session Session, pollID, userMessage string) (map[string]any, error) {
	poll, err := s.getPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeChat(ctx, session, poll.ChatID, rbac.ActionWrite, "poll"); err != nil {
		return nil, err
	}
	return map[string]any{"message": tripview.ResultsMessage(tripview.TallyPoll(poll), userMessage)}, nil
}

type InvitePollInput struct {
	Emails []string `json:"emails" validate:"min=1,max=20,dive,required,email"`
}

// InvitePoll emails the public poll link. Without SMTP the link is returned
// instead so it can be shared by hand.
func (s *Service) InvitePoll(ctx context.Context, session Session, pollID string, input InvitePollInput) (map[string]any, error) {
	input.Emails = lo.Uniq(lo.Map(input.Emails, func(addr string, _ int) string {
		return strings.ToLower(strings.TrimSpace(addr))
	}))
	if err := validate.Struct(input); err != nil {
		return nil, validationError("poll", err)
	}
	poll, err := s.getPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if poll.Status == store.PollSubmitted {
		return nil, badRequest("poll", pollClosedMessage)
	}
	if _, err := s.authorizeChat(ctx, session, poll.ChatID, rbac.ActionWrite, "poll"); err != nil {
		return nil, err
	}

	pollURL := s.cfg.PublicBaseURL + "/poll/" + poll.ID
	if !s.mail.IsConfigured() {
		return map[string]any{
			"sent":    false,
			"pollUrl": pollURL,
			"message": "Email is not configured. Share the link directly.",
		}, nil
	}

	data := email.PollInviteData{
		InviterName: session.UserName,
		Question:    poll.Question,
		Options:     lo.Map(poll.Options, func(option store.PollOption, _ int) string { return option.Label }),
		PollURL:     pollURL,
	}
	if it, err := s.store.GetItinerary(ctx, poll.ItineraryID); err == nil && it.TripName != nil {
		data.TripName = *it.TripName
	}
	if err := s.mail.SendPollInvite(input.Emails, data); err != nil {
		return nil, fmt.Errorf("send poll invite: %w", err)
	}
	return map[string]any{
		"sent":       true,
		"pollUrl":    pollURL,
		"recipients": len(input.Emails),
	}, nil
}
