package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ServerOptions configures the HTTP and websocket surface of the relay.
type ServerOptions struct {
	Relay RelayConfig
	// ConnectLimit caps upgrades and history reads per client IP per minute; 0 disables it.
	ConnectLimit int
	Logger       *slog.Logger
}

// Server serves the websocket relay and its small HTTP API.
type Server struct {
	relay   *Relay
	store   HistoryStore
	metrics *Metrics
	limiter *RateLimiter
	logger  *slog.Logger

	mutex   sync.Mutex
	conns   map[ConnID]*wsConn
	closing bool
	drained chan struct{} // closed once closing and no connection is left
}

func NewServer(store HistoryStore, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := NewMetrics()
	server := &Server{
		relay:   NewRelay(store, metrics, logger, opts.Relay),
		store:   store,
		metrics: metrics,
		logger:  logger.With("component", "server"),
		conns:   make(map[ConnID]*wsConn),
	}
	if opts.ConnectLimit > 0 {
		server.limiter = NewRateLimiter(opts.ConnectLimit, time.Minute)
	}
	return server
}

func (s *Server) Relay() *Relay { return s.relay }

func (s *Server) MetricsHandler() http.Handler { return s.metrics }

// ServeWS upgrades the request and runs the connection until it closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.limiter != nil && !s.limiter.Allow(clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	websocketConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "err", err)
		return
	}

	id := ConnID(uuid.NewString())
	// the request context ends when this handler returns
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	conn := newWSConn(id, websocketConn, cancel, s.logger.With("conn", string(id)))
	if !s.track(conn) {
		cancel()
		_ = websocketConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = websocketConn.Close()
		return
	}
	s.metrics.IncConn()
	s.logger.Debug("connection opened", "conn", id, "remote", clientIP(r))

	session := s.relay.NewSession(id, conn)

	go conn.writePump()
	go conn.readPump()
	go func() {
		defer func() {
			conn.close()
			s.untrack(id)
			s.metrics.DecConn()
			s.logger.Debug("connection closed", "conn", id)
		}()
		conn.dispatch(ctx, session)
	}()
}

// CloseConnections asks every open websocket to close. Used on shutdown since
// http.Server.Shutdown does not touch hijacked connections.
func (s *Server) CloseConnections() {
	s.mutex.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mutex.Unlock()
	for _, conn := range conns {
		conn.close()
	}
}

// Drain refuses new websockets, closes the open ones, waits until every
// session has disconnected and then for pending history writes. It may be
// called more than once.
func (s *Server) Drain(ctx context.Context) error {
	s.mutex.Lock()
	if !s.closing {
		s.closing = true
		s.drained = make(chan struct{})
		if len(s.conns) == 0 {
			close(s.drained)
		}
	}
	drained := s.drained
	s.mutex.Unlock()

	s.CloseConnections()
	select {
	case <-drained:
	case <-ctx.Done():
		return errors.Join(fmt.Errorf("sessions still open: %w", ctx.Err()), s.relay.Close(ctx))
	}
	return s.relay.Close(ctx)
}

func (s *Server) track(conn *wsConn) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn.id] = conn
	return true
}

func (s *Server) untrack(id ConnID) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.conns, id)
	if s.closing && len(s.conns) == 0 {
		select {
		case <-s.drained:
		default:
			close(s.drained)
		}
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
