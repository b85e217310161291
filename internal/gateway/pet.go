package gateway

import (
	"net/http"

	"github.com/nextlevelbuilder/gobutler/internal/fault"
	"github.com/nextlevelbuilder/gobutler/internal/store"
	"github.com/nextlevelbuilder/gobutler/pkg/protocol"
)

// Pet endpoints back the desktop companion UI: conversation lists,
// unread badges, and on-demand summaries.

func (s *Server) handlePetConversations(w http.ResponseWriter, r *http.Request) {
	convos, err := s.stores.Conversations.ListConversations(r.Context())
	if err != nil {
		s.httpError(w, err)
		return
	}
	unread, err := s.stores.Conversations.UnreadCount(r.Context())
	if err != nil {
		s.httpError(w, err)
		return
	}
	if convos == nil {
		convos = []*store.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": convos,
		"unread_count":  unread,
	})
}

func (s *Server) handlePetClear(w http.ResponseWriter, r *http.Request) {
	if err := s.stores.Conversations.Clear(r.Context()); err != nil {
		s.httpError(w, err)
		return
	}
	s.broadcast(protocol.EventConversationCleared, nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handlePetUnread(w http.ResponseWriter, r *http.Request) {
	convos, err := s.stores.Conversations.ListUnread(r.Context())
	if err != nil {
		s.httpError(w, err)
		return
	}
	if convos == nil {
		convos = []*store.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": convos,
		"unread_count":  len(convos),
	})
}

func (s *Server) handlePetUnreadCount(w http.ResponseWriter, r *http.Request) {
	unread, err := s.stores.Conversations.UnreadCount(r.Context())
	if err != nil {
		s.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread_count": unread})
}

func (s *Server) handlePetMarkRead(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversationID")

	if err := s.stores.Conversations.MarkRead(r.Context(), conversationID); err != nil {
		s.httpError(w, err)
		return
	}
	s.broadcast(protocol.EventConversationRead, map[string]any{
		"conversation_id": conversationID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handlePetMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := s.stores.Conversations.MarkAllRead(r.Context()); err != nil {
		s.httpError(w, err)
		return
	}
	s.broadcast(protocol.EventConversationRead, map[string]any{"all": true})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handlePetSummarize(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversationID")

	summary, err := s.butler.Summarizer().Summarize(r.Context(), conversationID)
	if err != nil {
		if fault.IsNotFound(err) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Conversation not found"})
			return
		}
		s.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func (s *Server) handlePetSummarizeAll(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.butler.Summarizer().SummarizeAll(r.Context())
	if err != nil {
		s.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summaries": summaries,
		"count":     len(summaries),
	})
}
