package gameserver

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamelobby/internal/config"
	"github.com/cory-johannsen/gamelobby/internal/lobby"
	"github.com/cory-johannsen/gamelobby/internal/observability"
)

// ErrGameClosed is returned when joining a game that has been closed.
var ErrGameClosed = errors.New("game closed")

// Game is one lobby session and the websocket clients connected to it.
// It implements games.Game.
//
// Lock order: mu before the session's own lock.
type Game struct {
	id      string
	session *lobby.Manager
	cfg     config.ServerConfig
	metrics *observability.Metrics
	logger  *zap.Logger

	mu     sync.Mutex
	conns  map[uuid.UUID]*conn
	closed bool
	// idleSince is when the last client left, or creation time; zero while
	// clients are connected.
	idleSince time.Time
	// loops counts the read and write goroutines of every connection ever joined.
	loops sync.WaitGroup
}

// NewGame creates a game with its own session.
//
// Precondition: capacity > 0; calls, metrics and logger must be non-nil.
// Postcondition: Returns an open Game with no clients, or an error from the
// session constructor.
func NewGame(id string, capacity int, calls *lobby.CallRegistry, cfg config.ServerConfig, metrics *observability.Metrics, logger *zap.Logger) (*Game, error) {
	logger = logger.With(zap.String("game_id", id))
	session, err := lobby.NewManager(capacity, calls, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "creating game %s", id)
	}
	return &Game{
		id:        id,
		session:   session,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		conns:     make(map[uuid.UUID]*conn),
		idleSince: time.Now(),
	}, nil
}

// ID returns the game identifier.
func (g *Game) ID() string { return g.id }

// Session returns the game's lobby session.
func (g *Game) Session() *lobby.Manager { return g.session }

// Serve runs ws as a client of the game under name until the socket closes.
//
// Postcondition: Returns ErrGameClosed without registering the client if the
// game has been closed, or the session's error if it refuses the client;
// otherwise returns nil once the client has left.
func (g *Game) Serve(ws *websocket.Conn, name string) error {
	c := newConn(ws, g, g.cfg, g.logger)
	if err := g.join(c, name); err != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "game closed"),
			time.Now().Add(g.cfg.WriteTimeout))
		_ = ws.Close()
		return err
	}
	go func() {
		defer g.loops.Done()
		c.writeLoop()
	}()
	defer g.loops.Done()
	c.readLoop()
	return nil
}

func (g *Game) join(c *conn, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrGameClosed
	}

	if err := g.session.AddClient(c.id, name); err != nil {
		return err
	}
	g.conns[c.id] = c
	g.idleSince = time.Time{}
	g.loops.Add(2)
	g.metrics.Clients.Inc()

	joined, _ := g.session.ClientName(c.id)
	g.enqueueLocked(c, welcomeMessage(WelcomeParameters{
		ClientID: c.id.String(),
		GameID:   g.id,
		Name:     joined,
		Capacity: g.session.Capacity(),
		Calls:    g.session.Calls().Names(),
	}))
	g.broadcastPositionsLocked()

	c.logger.Info("client joined", zap.String("name", joined), zap.Int("clients", len(g.conns)))
	return nil
}

// leave takes c out of the session and tells everyone else.
func (g *Game) leave(c *conn) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.detachLocked(c)
	if err := g.session.RemoveClient(c.id); err != nil {
		return
	}
	c.logger.Info("client left", zap.Int("clients", len(g.conns)))
	if !g.closed {
		g.broadcastPositionsLocked()
	}
}

// dispatch applies one remote call for c and reports the outcome: positions to
// everyone on success, the error to c alone on failure.
func (g *Game) dispatch(c *conn, call FunctionCall) {
	start := time.Now()
	resp := g.session.HandleFunctionCall(c.id, call.FunctionName, call.Parameters)

	label := call.FunctionName
	if _, ok := g.session.Calls().Resolve(label); !ok {
		label = observability.UnsupportedFunction
	}
	g.metrics.ObserveCall(label, resp != nil, time.Since(start))

	g.mu.Lock()
	defer g.mu.Unlock()
	if resp != nil {
		g.enqueueLocked(c, errorMessage(resp))
		return
	}
	g.broadcastPositionsLocked()
}

// reject reports a malformed message to c.
func (g *Game) reject(c *conn, msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enqueueLocked(c, errorMessage(lobby.NewErrorResponse(msg)))
}

// CloseGame disconnects every client and waits until their connections have
// shut down. New clients are refused from the first call on.
//
// Postcondition: Returns ctx's error if the connections did not finish in time.
func (g *Game) CloseGame(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	for _, c := range g.conns {
		g.detachLocked(c)
	}
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.loops.Wait()
		close(done)
	}()
	select {
	case <-done:
		g.logger.Info("game closed")
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "waiting for clients of game %s", g.id)
	}
}

// ClientCount returns the number of connected clients.
func (g *Game) ClientCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// IdleFor reports how long the game has had no clients as of now.
//
// Postcondition: Returns 0 while any client is connected.
func (g *Game) IdleFor(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.conns) > 0 || g.idleSince.IsZero() {
		return 0
	}
	return now.Sub(g.idleSince)
}

// detachLocked stops delivery to c. Closing send makes its writer say goodbye
// and close the socket, which in turn ends its reader.
func (g *Game) detachLocked(c *conn) {
	if g.conns[c.id] != c {
		return
	}
	delete(g.conns, c.id)
	close(c.send)
	g.metrics.Clients.Dec()
	if len(g.conns) == 0 {
		g.idleSince = time.Now()
	}
}

func (g *Game) enqueueLocked(c *conn, msg ServerMessage) {
	if g.conns[c.id] != c {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("client too slow, disconnecting")
		g.detachLocked(c)
	}
}

func (g *Game) broadcastPositionsLocked() {
	msg := positionsMessage(g.session.Positions())
	for _, c := range g.conns {
		g.enqueueLocked(c, msg)
	}
}
