// Package feed exposes the connection status and message history over HTTP
// and a websocket stream. It only reads from the connection manager.
package feed

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"mqtt-live-feed/internal/connection"
	"mqtt-live-feed/internal/logger"
	"mqtt-live-feed/internal/message"
	"mqtt-live-feed/internal/stats"
)

// Source is the read-only view of the connection manager the feed needs
type Source interface {
	CurrentState() connection.State
	Snapshot() []message.InboundMessage
	OnStateChange(fn func(connection.State)) func()
	OnMessage(fn func(message.InboundMessage)) func()
}

// Options describe what the feed reports besides the source itself
type Options struct {
	Topic  string
	Broker string
	Stats  *stats.StatsCollector
	Logger *logger.Logger
}

// StatusView is the body of GET /status
type StatusView struct {
	Status    string `json:"status"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
	Topic     string `json:"topic"`
	Broker    string `json:"broker"`
	Buffered  int    `json:"buffered"`
	Timestamp string `json:"timestamp"`
}

// MessageView is one history entry as served to clients
type MessageView struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	ReceivedAt time.Time `json:"receivedAt"`
	Kind       string    `json:"kind"`
	Text       string    `json:"text"`
	Display    string    `json:"display"`
}

// NewMessageView converts a message for display
func NewMessageView(msg message.InboundMessage) MessageView {
	return MessageView{
		ID:         msg.ID,
		Topic:      msg.Topic,
		ReceivedAt: msg.ReceivedAt,
		Kind:       string(msg.Body.Kind),
		Text:       msg.Body.Render(),
		Display:    msg.DisplayText(),
	}
}

// Server serves the feed endpoints
type Server struct {
	source Source
	opts   Options
	logger *logger.Logger
	hub    *Hub

	unsubscribe []func()
}

// NewServer creates a feed server. Call Start to begin streaming events.
func NewServer(source Source, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With("component", "feed")

	return &Server{
		source: source,
		opts:   opts,
		logger: log,
		hub:    NewHub(log),
	}
}

// Register mounts the feed endpoints on mux
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/messages", s.handleMessages)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/ws", s.handleWebSocket)
}

// Start relays state changes and new messages to websocket clients
func (s *Server) Start() {
	s.unsubscribe = append(s.unsubscribe,
		s.source.OnStateChange(func(connection.State) {
			status := s.status()
			s.hub.Broadcast(Event{Type: EventStatus, Status: &status})
		}),
		s.source.OnMessage(func(msg message.InboundMessage) {
			view := NewMessageView(msg)
			s.hub.Broadcast(Event{Type: EventMessage, Message: &view})
		}),
	)
}

// Close stops relaying and disconnects every websocket client
func (s *Server) Close() {
	for _, fn := range s.unsubscribe {
		fn()
	}
	s.unsubscribe = nil
	s.hub.CloseAll()
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) status() StatusView {
	st := s.source.CurrentState()
	return StatusView{
		Status:    st.String(),
		State:     st.Kind.String(),
		Reason:    st.Reason,
		Topic:     s.opts.Topic,
		Broker:    s.opts.Broker,
		Buffered:  len(s.source.Snapshot()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func (s *Server) messages(limit int) []MessageView {
	snap := s.source.Snapshot()
	if limit > 0 && limit < len(snap) {
		snap = snap[:limit]
	}
	views := make([]MessageView, 0, len(snap))
	for _, msg := range snap {
		views = append(views, NewMessageView(msg))
	}
	return views
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

// handleMessages serves the history newest first; ?limit=N trims it
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"topic":    s.opts.Topic,
		"messages": s.messages(limit),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.opts.Stats == nil {
		writeError(w, http.StatusNotFound, "statistics are disabled")
		return
	}
	out := s.opts.Stats.GetStats()
	out["websocket_clients"] = s.hub.ClientCount()
	writeJSON(w, http.StatusOK, out)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // client may already be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
