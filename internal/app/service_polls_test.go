package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tanmvo/relevance-ai-chat/internal/email"
	"github.com/tanmvo/relevance-ai-chat/internal/store"
	"github.com/tanmvo/relevance-ai-chat/internal/util"
)

func seedPoll(t *testing.T, env *testEnv, chatID string, labels ...string) store.Poll {
	t.Helper()
	options := make([]PollOptionInput, 0, len(labels))
	for _, label := range labels {
		options = append(options, PollOptionInput{Label: label})
	}
	result, err := env.svc.CreatePollTool(context.Background(), chatID, CreatePollInput{Question: "Where next?", Options: options})
	if err != nil || !result.Success {
		t.Fatalf("seed poll: %+v err=%v", result, err)
	}
	poll, err := env.store.GetPoll(context.Background(), result.PollID)
	if err != nil {
		t.Fatalf("load seeded poll: %v", err)
	}
	return poll
}

func TestCreatePollRequestValidationOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, chat, _ := env.seedOwner(t, false)

	_, err := env.svc.CreatePoll(ctx, session, CreatePollRequest{ChatID: chat.ID, Question: "Q", Options: []PollOptionInput{{Label: "A"}}})
	if domainErr := requireCode(t, err, "bad_request:poll"); domainErr.Message != pollRequiredMessage {
		t.Fatalf("unexpected message: %s", domainErr.Message)
	}

	four := []PollOptionInput{{Label: "A"}, {Label: "B"}, {Label: "C"}, {Label: "D"}}
	_, err = env.svc.CreatePoll(ctx, session, CreatePollRequest{ChatID: chat.ID, Question: "Q", Options: four})
	if domainErr := requireCode(t, err, "bad_request:poll"); domainErr.Message != pollTooManyMessage {
		t.Fatalf("unexpected message: %s", domainErr.Message)
	}

	two := []PollOptionInput{{Label: "A"}, {Label: "B"}}
	_, err = env.svc.CreatePoll(ctx, Session{UserID: util.NewID()}, CreatePollRequest{ChatID: chat.ID, Question: "Q", Options: two})
	requireCode(t, err, "forbidden:poll")

	_, err = env.svc.CreatePoll(ctx, session, CreatePollRequest{ChatID: chat.ID, Question: "Q", Options: two})
	requireCode(t, err, "not_found:poll")

	if _, err := env.store.CreateItinerary(ctx, chat.ID); err != nil {
		t.Fatalf("create itinerary: %v", err)
	}
	payload, err := env.svc.CreatePoll(ctx, session, CreatePollRequest{ChatID: chat.ID, Question: "Q", Options: two})
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	if payload["status"] != store.PollActive || len(payload["options"].([]map[string]any)) != 2 {
		t.Fatalf("unexpected poll payload: %v", payload)
	}
	if len(env.search.polls) != 1 {
		t.Fatalf("expected poll to be indexed, got %d", len(env.search.polls))
	}
}

func TestListPollsOrdersActiveFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, chat, _ := env.seedOwner(t, true)

	first := seedPoll(t, env, chat.ID, "Nara", "Osaka")
	second := seedPoll(t, env, chat.ID, "Tea", "Coffee")
	if _, err := env.svc.SubmitPoll(ctx, session, second.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	polls, err := env.svc.ListPolls(ctx, session, chat.ID)
	if err != nil {
		t.Fatalf("list polls: %v", err)
	}
	if len(polls) != 2 || polls[0]["id"] != first.ID || polls[1]["status"] != store.PollSubmitted {
		t.Fatalf("expected active poll first, got %v", polls)
	}

	polls, err = env.svc.ListPolls(ctx, session, util.NewID())
	if err != nil || len(polls) != 0 {
		t.Fatalf("expected unknown chat to have no polls, got %v err=%v", polls, err)
	}

	_, err = env.svc.ListPolls(ctx, Session{UserID: util.NewID()}, chat.ID)
	requireCode(t, err, "forbidden:poll")

	_, err = env.svc.ListPolls(ctx, session, "")
	requireCode(t, err, "bad_request:api")
}

func TestVoteChecksInOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, chat, _ := env.seedOwner(t, true)
	poll := seedPoll(t, env, chat.ID, "Nara", "Osaka")
	optionID := poll.Options[0].ID

	_, err := env.svc.Vote(ctx, poll.ID, optionID, "   ")
	requireCode(t, err, "bad_request:poll")

	_, err = env.svc.Vote(ctx, util.NewID(), optionID, "Sam")
	requireCode(t, err, "not_found:poll")

	_, err = env.svc.Vote(ctx, poll.ID, util.NewID(), "Sam")
	if domainErr := requireCode(t, err, "bad_request:poll"); domainErr.Message != pollOptionMessage {
		t.Fatalf("unexpected message: %s", domainErr.Message)
	}

	vote, err := env.svc.Vote(ctx, poll.ID, optionID, "  Sam ")
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if vote["voterName"] != "Sam" || vote["pollOptionId"] != optionID {
		t.Fatalf("unexpected vote payload: %v", vote)
	}
	if _, err := env.svc.Vote(ctx, poll.ID, optionID, "Sam"); err != nil {
		t.Fatalf("expected repeat votes to be accepted, got %v", err)
	}

	if _, err := env.svc.SubmitPoll(ctx, session, poll.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// A closed poll reports closed even for an unknown option.
	_, err = env.svc.Vote(ctx, poll.ID, util.NewID(), "Sam")
	if domainErr := requireCode(t, err, "bad_request:poll"); domainErr.Message != pollClosedMessage {
		t.Fatalf("unexpected message: %s", domainErr.Message)
	}
}

func TestVoteLosingRaceWithSubmit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, chat, _ := env.seedOwner(t, true)
	poll := seedPoll(t, env, chat.ID, "Nara", "Osaka")
	env.store.castVoteFn = func(context.Context, string, string, string) (store.PollVote, error) {
		return store.PollVote{}, store.ErrPollClosed
	}

	_, err := env.svc.Vote(ctx, poll.ID, poll.Options[1].ID, "Sam")
	if domainErr := requireCode(t, err, "bad_request:poll"); domainErr.Message != pollClosedMessage {
		t.Fatalf("unexpected message: %s", domainErr.Message)
	}
}

func TestSubmitPollChecksInOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, chat, _ := env.seedOwner(t, true)
	poll := seedPoll(t, env, chat.ID, "Nara", "Osaka")
	stranger := Session{UserID: util.NewID()}

	_, err := env.svc.SubmitPoll(ctx, session, "not-a-uuid")
	requireCode(t, err, "not_found:poll")

	_, err = env.svc.SubmitPoll(ctx, stranger, poll.ID)
	requireCode(t, err, "forbidden:poll")

	payload, err := env.svc.SubmitPoll(ctx, session, poll.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if payload["status"] != store.PollSubmitted {
		t.Fatalf("expected submitted status, got %v", payload["status"])
	}

	// Already submitted is reported before ownership.
	_, err = env.svc.SubmitPoll(ctx, stranger, poll.ID)
	if domainErr := requireCode(t, err, "bad_request:poll"); domainErr.Message != pollSubmittedMessage {
		t.Fatalf("unexpected message: %s", domainErr.Message)
	}
}

func TestPollResultsMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, chat, _ := env.seedOwner(t, true)
	poll := seedPoll(t, env, chat.ID, "Nara", "Osaka")

	for _, voter := range []string{"Sam", "Kai", "Noor"} {
		option := poll.Options[0].ID
		if voter == "Noor" {
			option = poll.Options[1].ID
		}
		if _, err := env.svc.Vote(ctx, poll.ID, option, voter); err != nil {
			t.Fatalf("vote %s: %v", voter, err)
		}
	}

	result, err := env.svc.PollResults(ctx, session, poll.ID, "Let's book it")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	message := result["message"].(string)
	for _, want := range []string{
		"Poll Results: Where next?",
		"- Nara: 2 votes (67%) - Sam, Kai",
		"- Osaka: 1 vote (33%) - Noor",
		"Total: 3 votes",
		"Let's book it",
	} {
		if !strings.Contains(message, want) {
			t.Fatalf("expected %q in results:\n%s", want, message)
		}
	}
}

func TestPublicPollIncludesTripContext(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, chat, _ := env.seedOwner(t, true)
	if _, err := env.svc.UpdateTripMetadata(ctx, chat.ID, TripMetadataInput{TripName: strPtr("Spring in Kyoto")}); err != nil {
		t.Fatalf("update metadata: %v", err)
	}
	poll := seedPoll(t, env, chat.ID, "Nara", "Osaka")

	payload, err := env.svc.PublicPoll(ctx, poll.ID)
	if err != nil {
		t.Fatalf("public poll: %v", err)
	}
	tripContext, ok := payload["tripContext"].(map[string]any)
	if !ok {
		t.Fatalf("expected trip context, got %v", payload["tripContext"])
	}
	if name, _ := tripContext["tripName"].(*string); name == nil || *name != "Spring in Kyoto" {
		t.Fatalf("unexpected trip name: %v", tripContext["tripName"])
	}

	_, err = env.svc.PublicPoll(ctx, util.NewID())
	requireCode(t, err, "not_found:poll")
}

func TestInvitePollWithoutSMTPReturnsLink(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, chat, _ := env.seedOwner(t, true)
	poll := seedPoll(t, env, chat.ID, "Nara", "Osaka")

	result, err := env.svc.InvitePoll(ctx, session, poll.ID, InvitePollInput{Emails: []string{"kai@example.com"}})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if result["sent"] != false || result["pollUrl"] != "https://trips.example/poll/"+poll.ID {
		t.Fatalf("unexpected invite result: %v", result)
	}
	if len(env.mail.sent) != 0 {
		t.Fatalf("expected no mail without SMTP, got %d", len(env.mail.sent))
	}
}

func TestInvitePollSendsOnceToUniqueRecipients(t *testing.T) {
	env := newTestEnv(t)
	env.mail.configured = true
	ctx := context.Background()
	session, chat, _ := env.seedOwner(t, true)
	poll := seedPoll(t, env, chat.ID, "Nara", "Osaka")

	var recipients []string
	env.mail.sendFn = func(to []string, _ email.PollInviteData) error {
		recipients = to
		return nil
	}
	result, err := env.svc.InvitePoll(ctx, session, poll.ID, InvitePollInput{
		Emails: []string{"Kai@Example.com", " kai@example.com", "noor@example.com"},
	})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if result["sent"] != true || result["recipients"] != 2 || len(recipients) != 2 {
		t.Fatalf("unexpected invite result: %v recipients=%v", result, recipients)
	}
	if data := env.mail.sent[0]; data.InviterName != session.UserName || len(data.Options) != 2 {
		t.Fatalf("unexpected invite data: %+v", data)
	}

	_, err = env.svc.InvitePoll(ctx, session, poll.ID, InvitePollInput{Emails: []string{"not-an-email"}})
	requireCode(t, err, "bad_request:poll")

	env.mail.sendFn = func([]string, email.PollInviteData) error { return errors.New("smtp down") }
	if _, err := env.svc.InvitePoll(ctx, session, poll.ID, InvitePollInput{Emails: []string{"kai@example.com"}}); err == nil {
		t.Fatal("expected send failure to surface")
	}
}
