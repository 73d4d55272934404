package kernel

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
	"github.com/manthysbr/incidentdesk/internal/core/services"
)

const wsWriteTimeout = 10 * time.Second

// Frame types sent to websocket clients.
const (
	frameSession  = "session"
	frameComplete = "complete"
	frameNotice   = "notice"
	frameError    = "error"
)

type wsRequest struct {
	Message string `json:"message"`
}

type wsFrame struct {
	Type      string                  `json:"type"`
	SessionID domain.SessionID        `json:"session_id,omitempty"`
	Outcome   *domain.DispatchOutcome `json:"outcome,omitempty"`
	Event     string                  `json:"event,omitempty"`
	Data      json.RawMessage         `json:"data,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(f wsFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(f)
}

// handleWebSocket serves chat over one websocket. Each text frame is one
// user turn; dispatcher events for the process and the session are
// forwarded as notice frames.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	conn := &wsConn{conn: ws}

	sessionID := domain.SessionID(strings.TrimSpace(r.URL.Query().Get("session_id")))
	if sessionID == "" {
		sessionID = domain.NewSessionID()
	}
	if err := conn.send(wsFrame{Type: frameSession, SessionID: sessionID}); err != nil {
		return
	}
	s.logger.Info("websocket session started", "session_id", string(sessionID))

	dispatcherEvents, unsubDispatcher := s.eventBus.Subscribe(services.TopicDispatcher)
	defer unsubDispatcher()
	sessionEvents, unsubSession := s.eventBus.Subscribe(string(sessionID))
	defer unsubSession()

	done := make(chan struct{})
	defer close(done)
	go s.forwardEvents(conn, done, dispatcherEvents, sessionEvents)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			s.logger.Info("websocket client disconnected", "session_id", string(sessionID), "error", err)
			return
		}
		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if err := conn.send(wsFrame{Type: frameError, SessionID: sessionID, Error: "invalid JSON: " + err.Error()}); err != nil {
				return
			}
			continue
		}
		outcome := s.dispatcher.HandleMessage(r.Context(), req.Message, sessionID)
		if err := conn.send(wsFrame{Type: frameComplete, SessionID: sessionID, Outcome: &outcome}); err != nil {
			return
		}
	}
}

func (s *Server) forwardEvents(conn *wsConn, done <-chan struct{}, feeds ...<-chan services.Event) {
	merged := make(chan services.Event)
	var wg sync.WaitGroup
	for _, feed := range feeds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				case ev, ok := <-feed:
					if !ok {
						return
					}
					select {
					case merged <- ev:
					case <-done:
						return
					}
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	for ev := range merged {
		frame := wsFrame{Type: frameNotice, Event: string(ev.Type)}
		if json.Valid([]byte(ev.Data)) {
			frame.Data = json.RawMessage(ev.Data)
		} else {
			frame.Error = ev.Data
		}
		if err := conn.send(frame); err != nil {
			return
		}
	}
}
