package dispatch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/ride-sharing/internal/models"
	"github.com/example/ride-sharing/internal/observability"
)

var ErrNoSession = errors.New("no ws session")

const writeWait = 5 * time.Second

// Message is the envelope written to driver sockets.
type Message struct {
	Type  string             `json:"type"`
	Match models.MatchResult `json:"match"`
}

// WSSession represents a connected driver session
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// WSRegistry holds one session per driver. A new connection for the same
// driver replaces the old one.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[int]*WSSession
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSRegistry(logger *zap.Logger) *WSRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSRegistry{
		sessions: make(map[int]*WSSession),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger,
	}
}

func (r *WSRegistry) Add(driverID int, conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	old := r.sessions[driverID]
	r.sessions[driverID] = s
	n := len(r.sessions)
	r.mu.Unlock()
	if old != nil {
		_ = old.conn.Close()
	}
	observability.DriverSockets.Set(float64(n))
	return s
}

// Remove drops the driver's session if it is still s.
func (r *WSRegistry) Remove(driverID int, s *WSSession) {
	r.mu.Lock()
	if r.sessions[driverID] == s {
		delete(r.sessions, driverID)
	}
	n := len(r.sessions)
	r.mu.Unlock()
	_ = s.conn.Close()
	observability.DriverSockets.Set(float64(n))
}

func (r *WSRegistry) Connected(driverID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[driverID]
	return ok
}

func (r *WSRegistry) Send(driverID int, v any) error {
	r.mu.RLock()
	s, ok := r.sessions[driverID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.Send(v); err != nil {
		r.logger.Warn("ws send error", zap.Int("driver_id", driverID), zap.Error(err))
		return err
	}
	return nil
}

// Notify pushes a match to the driver's socket. A driver without a session
// is not an error.
func (r *WSRegistry) Notify(_ context.Context, res models.MatchResult) error {
	err := r.Send(res.DriverID, Message{Type: "match", Match: res})
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}

// ServeDriver upgrades the request and keeps the session until the peer
// goes away. Incoming frames are discarded.
func (r *WSRegistry) ServeDriver(w http.ResponseWriter, req *http.Request, driverID int) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("ws upgrade failed", zap.Int("driver_id", driverID), zap.Error(err))
		return
	}
	s := r.Add(driverID, conn)
	r.logger.Info("driver connected", zap.Int("driver_id", driverID))
	defer func() {
		r.Remove(driverID, s)
		r.logger.Info("driver disconnected", zap.Int("driver_id", driverID))
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
