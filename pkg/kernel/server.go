package kernel

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
	"github.com/manthysbr/incidentdesk/internal/core/services"
)

const maxBodyBytes = 1 << 20

// Server is the transport shim in front of the dispatcher. Everything it
// knows about incidents goes through services.Dispatcher.
type Server struct {
	logger     *slog.Logger
	dispatcher *services.Dispatcher
	eventBus   *services.EventBus
	gatherer   prometheus.Gatherer
	validator  *requestValidator
	upgrader   websocket.Upgrader
}

// NewServer wires the HTTP surface. allowedOrigins gates websocket upgrades;
// an empty list accepts any origin.
func NewServer(
	logger *slog.Logger,
	dispatcher *services.Dispatcher,
	eventBus *services.EventBus,
	gatherer prometheus.Gatherer,
	allowedOrigins []string,
) (*Server, error) {
	v, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	s := &Server{
		logger:     logger,
		dispatcher: dispatcher,
		eventBus:   eventBus,
		gatherer:   gatherer,
		validator:  v,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, origin)
		},
	}
	return s, nil
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/operations", s.handleListOperations)
	mux.HandleFunc("POST /v1/operations/{name}", s.handleExecuteOperation)
	mux.HandleFunc("GET /v1/sessions/{id}/messages", s.handleSessionMessages)
	mux.HandleFunc("GET /v1/dispatcher", s.handleDispatcher)
	mux.HandleFunc("GET /v1/ws", s.handleWebSocket)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return s.validator.middleware(mux)
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sessionID := domain.SessionID(strings.TrimSpace(req.SessionID))
	if sessionID == "" {
		sessionID = domain.NewSessionID()
	}

	outcome := s.dispatcher.HandleMessage(r.Context(), req.Message, sessionID)
	status := http.StatusOK
	if outcome.Error != nil && outcome.Error.Code == domain.CodeInvalidMessage {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, outcome)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":               "ok",
		"backend":              s.dispatcher.BackendName(),
		"reasoning_configured": s.dispatcher.ReasoningConfigured(),
		"mode":                 s.dispatcher.Mode(),
	})
}

type dispatcherStatus struct {
	services.BreakerStats
	Sessions int `json:"sessions"`
}

func (s *Server) handleDispatcher(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dispatcherStatus{
		BreakerStats: s.dispatcher.BreakerStats(),
		Sessions:     s.dispatcher.SessionCount(),
	})
}

// decodeBody reads a JSON body. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type errorBody struct {
	Error domain.DispatchError `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code domain.ErrorCode, message string) {
	writeJSON(w, status, errorBody{Error: domain.DispatchError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
