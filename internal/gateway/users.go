package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/gobutler/internal/directory"
	"github.com/nextlevelbuilder/gobutler/internal/fault"
	"github.com/nextlevelbuilder/gobutler/internal/gate"
	"github.com/nextlevelbuilder/gobutler/internal/registry"
	"github.com/nextlevelbuilder/gobutler/internal/store"
)

// defaultConversationLimit caps how many messages a conversation fetch
// returns when the client does not ask for a specific window.
const defaultConversationLimit = 50

// handleDetected runs a proximity detection through the gate: score the
// pair, check the owner's autonomy policy, then act on the result.
func (s *Server) handleDetected(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	if !s.limiter.Allow(userID) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "rate limit exceeded",
		})
		return
	}

	var body struct {
		OtherUserID string         `json:"other_user_id"`
		Context     map[string]any `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.OtherUserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "other_user_id is required"})
		return
	}

	outcome, err := s.gate.HandleDetection(r.Context(), userID, body.OtherUserID, body.Context)
	if err != nil {
		s.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// handleIncoming records an inbound message and runs the reply
// pipeline. The watcher normally feeds the pipeline directly; this
// endpoint exists for bridges that receive messages out of band.
func (s *Server) handleIncoming(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	var body struct {
		SenderID       string `json:"sender_id"`
		Message        string `json:"message"`
		ConversationID string `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.SenderID == "" || body.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sender_id and message are required"})
		return
	}

	conversationID := body.ConversationID
	if conversationID == "" {
		conversationID = registry.ConversationID(userID, body.SenderID)
	}

	reply, takeover, err := s.butler.HandleIncoming(r.Context(), body.SenderID, body.Message, conversationID)
	if err != nil {
		s.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"response":           reply,
		"should_notify_user": takeover,
		"conversation_id":    conversationID,
	})
}

// handleSend resolves a recipient through the directory and dispatches
// the message over the relay.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RecipientID string `json:"recipient_id"`
		Message     string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.RecipientID == "" || body.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "recipient_id and message are required"})
		return
	}

	profile, err := s.dir.Profile(r.Context(), body.RecipientID)
	switch {
	case errors.Is(err, directory.ErrDisabled):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "directory not configured"})
		return
	case fault.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Recipient not found"})
		return
	case err != nil:
		s.httpError(w, err)
		return
	}
	if profile.Contact.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Recipient has no phone number"})
		return
	}

	sendErr := s.dispatch.Send(r.Context(), profile.Contact.Phone, body.Message)
	if sendErr != nil {
		s.log.Error("send failed", "recipient", body.RecipientID, "error", sendErr)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"method":  "imessage",
		"success": sendErr == nil,
	})
}

func (s *Server) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	profile, err := s.dir.Profile(r.Context(), userID)
	switch {
	case errors.Is(err, directory.ErrDisabled):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "directory not configured"})
	case fault.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
	case err != nil:
		s.httpError(w, err)
	default:
		writeJSON(w, http.StatusOK, profile)
	}
}

func (s *Server) handleProfilePatch(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if _, err := s.dir.UpdateProfile(r.Context(), userID, updates); err != nil {
		if errors.Is(err, directory.ErrDisabled) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "directory not configured"})
			return
		}
		s.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handlePreferencesGet returns the owner's autonomy settings. A user
// the directory has no record for gets the defaults rather than a 404,
// so fresh installs behave sanely before onboarding.
func (s *Server) handlePreferencesGet(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	prefs, err := s.dir.Preferences(r.Context(), userID)
	switch {
	case errors.Is(err, directory.ErrDisabled):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "directory not configured"})
	case fault.IsNotFound(err):
		writeJSON(w, http.StatusOK, gate.DefaultPreferences())
	case err != nil:
		s.httpError(w, err)
	default:
		writeJSON(w, http.StatusOK, prefs)
	}
}

func (s *Server) handlePreferencesPatch(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if _, err := s.dir.UpdatePreferences(r.Context(), userID, updates); err != nil {
		if errors.Is(err, directory.ErrDisabled) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "directory not configured"})
			return
		}
		s.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleConversation returns the most recent messages of one tracked
// conversation, newest window last.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversationID")

	limit := defaultConversationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	convo, err := s.stores.Conversations.GetConversation(r.Context(), conversationID)
	if err != nil {
		s.httpError(w, err)
		return
	}

	messages := convo.LastMessages(limit)
	if messages == nil {
		messages = []store.StoredMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"messages":        messages,
		"count":           len(messages),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
