package gameserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamelobby/internal/config"
	"github.com/cory-johannsen/gamelobby/internal/games"
	"github.com/cory-johannsen/gamelobby/internal/lobby"
	"github.com/cory-johannsen/gamelobby/internal/merr"
	"github.com/cory-johannsen/gamelobby/internal/observability"
)

// maxCreateBody caps the POST /api/games request body.
const maxCreateBody = 4 << 10

// CreateGameRequest is the optional body of POST /api/games.
type CreateGameRequest struct {
	Capacity int `json:"capacity"`
}

// GameInfo describes one game in HTTP responses.
type GameInfo struct {
	ID        string           `json:"id"`
	Capacity  int              `json:"capacity"`
	Clients   int              `json:"clients"`
	Positions []lobby.Occupant `json:"positions"`
}

// Server serves the game HTTP API and websocket endpoint.
type Server struct {
	cfg      config.ServerConfig
	lobbyCfg config.LobbyConfig
	registry *games.Registry
	calls    *lobby.CallRegistry
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	logger   *zap.Logger

	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	stopped  bool
}

// NewServer creates a Server.
//
// Precondition: registry, calls, metrics, gatherer and logger must be non-nil.
// Postcondition: Returns a Server ready for ListenAndServe or Handler.
func NewServer(
	cfg config.ServerConfig,
	lobbyCfg config.LobbyConfig,
	registry *games.Registry,
	calls *lobby.CallRegistry,
	metrics *observability.Metrics,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *Server {
	s := &Server{
		cfg:            cfg,
		lobbyCfg:       lobbyCfg,
		registry:       registry,
		calls:          calls,
		metrics:        metrics,
		gatherer:       gatherer,
		logger:         logger,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/games", s.handleCreateGame)
	mux.HandleFunc("GET /api/games", s.handleListGames)
	mux.HandleFunc("GET /api/games/{id}", s.handleGetGame)
	mux.HandleFunc("DELETE /api/games/{id}", s.handleDeleteGame)
	mux.HandleFunc("GET /ws/{id}", s.handleWS)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe binds the configured address and serves until Stop.
//
// Postcondition: Returns nil after a clean Stop, or the listen/serve error. If
// Stop has already been called, returns nil without serving.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.cfg.Addr())
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = ln.Close()
		s.logger.Info("game server stopped before it started serving")
		return nil
	}
	s.listener = ln
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info("game server listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serving http")
	}
	return nil
}

// Addr returns the bound address, or nil before ListenAndServe has bound.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops accepting requests, then closes every game. A ListenAndServe
// that has not bound yet will not serve.
//
// Postcondition: Returns the combined HTTP shutdown and game close failures.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	srv := s.srv
	s.mu.Unlock()

	var shutdownErr error
	if srv != nil {
		shutdownErr = srv.Shutdown(ctx)
	}
	closeErr := s.registry.CloseAll(ctx)
	s.metrics.Games.Set(float64(s.registry.Len()))
	return merr.Combine(shutdownErr, closeErr)
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCreateBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}

	capacity := req.Capacity
	if capacity == 0 {
		capacity = s.lobbyCfg.DefaultCapacity
	}
	if capacity < 1 || capacity > s.lobbyCfg.MaxCapacity {
		writeError(w, http.StatusBadRequest, "capacity must be between 1 and "+strconv.Itoa(s.lobbyCfg.MaxCapacity))
		return
	}

	id := uuid.NewString()
	game, err := NewGame(id, capacity, s.calls, s.cfg, s.metrics, s.logger)
	if err != nil {
		s.logger.Error("creating game", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "creating game")
		return
	}
	if err := s.registry.AddGame(id, game); err != nil {
		s.logger.Error("registering game", zap.String("game_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "registering game")
		return
	}
	s.metrics.Games.Set(float64(s.registry.Len()))

	writeJSON(w, http.StatusCreated, gameInfo(game))
}

func (s *Server) handleListGames(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"games": s.registry.GameIDs()})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	game, ok := s.lookup(w, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, gameInfo(game))
}

// handleDeleteGame closes under its own deadline rather than the request's: a
// close cut short by a departed client would leave the game listed but refusing
// every join.
func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.ShutdownTimeout)
	defer cancel()
	err := s.registry.RemoveGame(ctx, id)
	s.metrics.Games.Set(float64(s.registry.Len()))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, games.ErrUnknownGame):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, games.ErrGameClosing):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Warn("removing game", zap.String("game_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	game, ok := s.lookup(w, r.PathValue("id"))
	if !ok {
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	if err := game.Serve(ws, r.URL.Query().Get("name")); err != nil {
		s.logger.Debug("websocket refused", zap.String("game_id", game.ID()), zap.Error(err))
	}
}

func (s *Server) lookup(w http.ResponseWriter, id string) (*Game, bool) {
	g, err := s.registry.GetGame(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	game, ok := g.(*Game)
	if !ok {
		writeError(w, http.StatusInternalServerError, "game "+id+" is not served over websockets")
		return nil, false
	}
	return game, true
}

// checkOrigin admits requests without an Origin header, origins listed in the
// configuration, and otherwise same-host or loopback origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func gameInfo(g *Game) GameInfo {
	return GameInfo{
		ID:        g.ID(),
		Capacity:  g.Session().Capacity(),
		Clients:   g.ClientCount(),
		Positions: g.Session().Positions(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
