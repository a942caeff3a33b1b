package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const eventHeartbeat = 25 * time.Second

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "bad_request:api", "Method not allowed", nil)
}

// handleChats serves /api/chats and everything below it.
func (s *HTTPServer) handleChats(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query()
			result, err := s.service.ListChats(r.Context(), session, queryInt(r, "limit"), q.Get("startingAfter"), q.Get("endingBefore"))
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		case http.MethodPost:
			var body CreateChatInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "bad_request:chat", err.Error(), nil)
				return
			}
			result, err := s.service.CreateChat(r.Context(), session, body)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, result)
		case http.MethodDelete:
			result, err := s.service.DeleteAllChats(r.Context(), session)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		default:
			methodNotAllowed(w)
		}
		return
	}

	chatID := rest[0]
	switch {
	case len(rest) == 1 && r.Method == http.MethodPatch:
		var body UpdateChatInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request:chat", err.Error(), nil)
			return
		}
		result, err := s.service.UpdateChat(r.Context(), session, chatID, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		result, err := s.service.DeleteChat(r.Context(), session, chatID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case len(rest) == 2 && rest[1] == "events" && r.Method == http.MethodGet:
		s.streamEvents(w, r, session, chatID)
	case len(rest) == 3 && rest[1] == "tools" && r.Method == http.MethodPost:
		args, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request:tool", "Could not read tool arguments", nil)
			return
		}
		result, err := s.service.InvokeTool(r.Context(), session, chatID, rest[2], json.RawMessage(args))
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeError(w, http.StatusNotFound, "not_found:api", "Not found", nil)
	}
}

// streamEvents relays itinerary and poll updates as server-sent events until
// the client goes away.
func (s *HTTPServer) streamEvents(w http.ResponseWriter, r *http.Request, session Session, chatID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "Streaming unsupported", nil)
		return
	}
	stream, cancel, err := s.service.SubscribeChat(r.Context(), session, chatID)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer cancel()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(eventHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-stream:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleItinerary serves /api/itinerary and the per-itinerary routes below it.
func (s *HTTPServer) handleItinerary(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if len(rest) == 0 {
		result, err := s.service.GetItinerary(r.Context(), session, r.URL.Query().Get("chatId"))
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	itineraryID := rest[0]
	switch {
	case len(rest) == 2 && rest[1] == "export":
		result, err := s.service.ExportItinerary(r.Context(), session, itineraryID, r.URL.Query().Get("format"))
		if err != nil {
			s.fail(w, err)
			return
		}
		if result.URL != "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"url":       result.URL,
				"expiresAt": formatTime(result.ExpiresAt),
				"filename":  result.Filename,
				"mimeType":  result.MimeType,
			})
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
	case len(rest) == 2 && rest[1] == "history":
		revisions, err := s.service.ItineraryHistory(r.Context(), session, itineraryID, queryInt(r, "limit"))
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revisions": revisions})
	case len(rest) == 3 && rest[1] == "history":
		result, err := s.service.ItineraryRevision(r.Context(), session, itineraryID, rest[2])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeError(w, http.StatusNotFound, "not_found:api", "Not found", nil)
	}
}

// handlePolls serves the owner-side poll routes. Public and vote routes are
// dispatched before the session check.
func (s *HTTPServer) handlePolls(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			result, err := s.service.ListPolls(r.Context(), session, r.URL.Query().Get("chatId"))
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		case http.MethodPost:
			var body CreatePollRequest
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "bad_request:poll", err.Error(), nil)
				return
			}
			result, err := s.service.CreatePoll(r.Context(), session, body)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, result)
		default:
			methodNotAllowed(w)
		}
		return
	}
	if len(rest) != 2 {
		writeError(w, http.StatusNotFound, "not_found:api", "Not found", nil)
		return
	}

	pollID, action := rest[0], rest[1]
	switch {
	case action == "submit" && r.Method == http.MethodPatch:
		result, err := s.service.SubmitPoll(r.Context(), session, pollID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case action == "results" && r.Method == http.MethodGet:
		result, err := s.service.PollResults(r.Context(), session, pollID, r.URL.Query().Get("message"))
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case action == "invite" && r.Method == http.MethodPost:
		var body InvitePollInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request:poll", err.Error(), nil)
			return
		}
		result, err := s.service.InvitePoll(r.Context(), session, pollID, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeError(w, http.StatusNotFound, "not_found:api", "Not found", nil)
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) != 0 || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "not_found:api", "Not found", nil)
		return
	}
	q := r.URL.Query()
	result, err := s.service.Search(r.Context(), session, q.Get("q"), q.Get("type"), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
