// Package gateway serves the daemon's HTTP surface: the detection
// webhook, message endpoints, profile and preference passthrough, the
// desktop pet's conversation API, and a WebSocket event stream fed by
// the in-process bus.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/gobutler/internal/bus"
	"github.com/nextlevelbuilder/gobutler/internal/butler"
	"github.com/nextlevelbuilder/gobutler/internal/config"
	"github.com/nextlevelbuilder/gobutler/internal/directory"
	"github.com/nextlevelbuilder/gobutler/internal/fault"
	"github.com/nextlevelbuilder/gobutler/internal/gate"
	"github.com/nextlevelbuilder/gobutler/internal/store"
)

// healthProbeTimeout bounds the live relay check inside /health so a
// hung relay cannot stall the pet's status poll.
const healthProbeTimeout = 2 * time.Second

// Server is the gateway HTTP server.
type Server struct {
	cfg      *config.Config
	butler   *butler.Butler
	gate     *gate.Gate
	stores   *store.Stores
	dir      directory.Service
	dispatch butler.Dispatcher
	bus      *bus.Bus
	log      *slog.Logger

	upgrader websocket.Upgrader
	limiter  *RateLimiter
	clients  map[string]*wsClient
	mu       sync.RWMutex

	httpServer *http.Server
	mux        *http.ServeMux
}

// Deps are the collaborators the server fronts.
type Deps struct {
	Butler    *butler.Butler
	Gate      *gate.Gate
	Stores    *store.Stores
	Directory directory.Service
	Dispatch  butler.Dispatcher
	Bus       *bus.Bus
	Log       *slog.Logger
}

// NewServer creates a gateway server.
func NewServer(cfg *config.Config, d Deps) *Server {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		butler:   d.Butler,
		gate:     d.Gate,
		stores:   d.Stores,
		dir:      d.Directory,
		dispatch: d.Dispatch,
		bus:      d.Bus,
		log:      log,
		clients:  make(map[string]*wsClient),
		limiter:  NewRateLimiter(cfg.Gateway.DetectionRPM),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin validates the WebSocket origin against the configured
// whitelist. No configuration allows every origin; so does an empty
// Origin header, which is what non-browser clients send.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	s.log.Warn("websocket origin rejected", "origin", origin)
	return false
}

// BuildMux creates and caches the mux with every route registered. Call
// before Start when the same routes must serve an extra listener.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("POST /users/{userID}/detected", s.handleDetected)
	mux.HandleFunc("POST /users/{userID}/messages/incoming", s.handleIncoming)
	mux.HandleFunc("POST /users/{userID}/messages/send", s.handleSend)
	mux.HandleFunc("GET /users/{userID}/profile", s.handleProfileGet)
	mux.HandleFunc("PATCH /users/{userID}/profile", s.handleProfilePatch)
	mux.HandleFunc("GET /users/{userID}/preferences", s.handlePreferencesGet)
	mux.HandleFunc("PATCH /users/{userID}/preferences", s.handlePreferencesPatch)
	mux.HandleFunc("GET /users/{userID}/conversations/{conversationID}", s.handleConversation)

	mux.HandleFunc("GET /pet/conversations", s.handlePetConversations)
	mux.HandleFunc("DELETE /pet/conversations", s.handlePetClear)
	mux.HandleFunc("GET /pet/conversations/unread", s.handlePetUnread)
	mux.HandleFunc("GET /pet/conversations/unread/count", s.handlePetUnreadCount)
	mux.HandleFunc("POST /pet/conversations/{conversationID}/read", s.handlePetMarkRead)
	mux.HandleFunc("POST /pet/conversations/read-all", s.handlePetMarkAllRead)
	mux.HandleFunc("POST /pet/conversations/{conversationID}/summarize", s.handlePetSummarize)
	mux.HandleFunc("POST /pet/summarize-all", s.handlePetSummarizeAll)

	mux.HandleFunc("GET /approvals", s.handleApprovalsList)
	mux.HandleFunc("POST /approvals/{approvalID}/approve", s.handleApprovalApprove)
	mux.HandleFunc("POST /approvals/{approvalID}/deny", s.handleApprovalDeny)

	s.mux = mux
	return mux
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.log.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// handleHealth reports overall status plus per-service reachability.
// The relay is probed live; the provider was verified at startup and a
// dead one would have failed preflight, so it reports configured state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	services := map[string]bool{
		"generation": true,
		"directory":  s.cfg.Directory.Enabled(),
		"dispatch":   s.dispatch.Health(ctx) == nil,
	}
	status := "healthy"
	for _, up := range services {
		if !up {
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
	})
}

func (s *Server) broadcast(event string, data map[string]any) {
	if s.bus != nil {
		s.bus.Broadcast(event, data)
	}
}

// httpError maps the fault taxonomy onto status codes.
func (s *Server) httpError(w http.ResponseWriter, err error) {
	switch {
	case fault.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case fault.IsMalformed(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case fault.IsTransient(err):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// StartTestServer listens on a random localhost port and returns the
// address plus a start function. Used by integration tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	mux := s.BuildMux()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}

	s.httpServer = &http.Server{Handler: mux}
	addr = ln.Addr().String()

	start = func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.httpServer.Shutdown(shutdownCtx)
		}()
		s.httpServer.Serve(ln)
	}

	return addr, start
}
