package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsprackett/event-reserve/internal/admission"
	"github.com/zsprackett/event-reserve/internal/catalog"
	"github.com/zsprackett/event-reserve/internal/events"
	"github.com/zsprackett/event-reserve/internal/metrics"
	"github.com/zsprackett/event-reserve/internal/protocol"
)

type Config struct {
	// Addr is the host:port to listen on.
	Addr                string
	// ConfirmationTimeout is how long a temporary reservation is held.
	ConfirmationTimeout time.Duration
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer          int
}

type Server struct {
	store   *catalog.Store
	admit   *admission.Manager
	cfg     Config
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[string]*client
	srv     *http.Server
}

var _ events.Broadcaster = (*Server)(nil)

func New(store *catalog.Store, admit *admission.Manager, cfg Config, logger *slog.Logger) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	return &Server{
		store:   store,
		admit:   admit,
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*client),
	}
}

// Broadcast implements events.Broadcaster. Clients whose buffer is full miss
// the event.
func (s *Server) Broadcast(e events.Event) {
	frame, ok := s.encode(e)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		s.push(c, e.Type, frame)
	}
}

// SendTo implements events.Broadcaster.
func (s *Server) SendTo(id string, e events.Event) {
	frame, ok := s.encode(e)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[id]; ok {
		s.push(c, e.Type, frame)
	}
}

// Connected reports whether id has an open socket.
func (s *Server) Connected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.clients[id]
	return ok
}

// OnlineCount returns the number of open sockets.
func (s *Server) OnlineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) encode(e events.Event) ([]byte, bool) {
	env, err := protocol.NewEnvelope(e.Type, e.Data)
	if err == nil {
		var frame []byte
		if frame, err = env.Encode(); err == nil {
			return frame, true
		}
	}
	s.logger.Error("webserver: encode event", "type", e.Type, "err", err)
	return nil, false
}

// push queues frame on c. Caller holds s.mu.
func (s *Server) push(c *client, msgType string, frame []byte) {
	select {
	case c.send <- frame:
		metrics.Outbound(msgType)
	default:
		metrics.MessagesDropped.Inc()
		s.logger.Warn("webserver: client buffer full, message dropped", "conn", c.id, "type", msgType)
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	metrics.ConnectionsActive.Inc()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		close(c.send)
		metrics.ConnectionsActive.Dec()
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleSocket)
	mux.HandleFunc("GET /api/events", s.handleListEvents)
	mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start listens in the background. Listen errors other than a clean
// shutdown are logged.
func (s *Server) Start() error {
	addr := s.cfg.Addr
	s.srv = &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("webserver: listen", "addr", addr, "err", err)
		}
	}()
	s.logger.Info("webserver: listening", "addr", addr)
	return nil
}

// Shutdown stops accepting requests and closes every open socket.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.srv != nil {
		err = s.srv.Shutdown(ctx)
	}
	s.mu.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
	return err
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.Snapshot())
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name       string `json:"name"`
		TotalSlots int    `json:"total_slots"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	e, err := s.store.AddEvent(body.Name, body.TotalSlots)
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	s.logger.Info("webserver: event created", "event", e.ID, "name", e.Name, "slots", e.TotalSlots)
	s.Broadcast(s.snapshotEvent())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(201)
	json.NewEncoder(w).Encode(protocol.EventState{
		ID:             e.ID,
		Name:           e.Name,
		TotalSlots:     e.TotalSlots,
		AvailableSlots: e.AvailableSlots,
		CreatedAt:      e.CreatedAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "online": s.OnlineCount()})
}
