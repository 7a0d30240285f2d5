package gameserver

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamelobby/internal/config"
)

// sendBuffer is the number of outbound messages queued per connection before
// the client is considered too slow and dropped.
const sendBuffer = 64

// conn is one websocket client of a game. Its id is also its lobby.ClientID.
type conn struct {
	id     uuid.UUID
	ws     *websocket.Conn
	game   *Game
	send   chan ServerMessage
	cfg    config.ServerConfig
	logger *zap.Logger
}

func newConn(ws *websocket.Conn, game *Game, cfg config.ServerConfig, logger *zap.Logger) *conn {
	id := uuid.New()
	return &conn{
		id:     id,
		ws:     ws,
		game:   game,
		send:   make(chan ServerMessage, sendBuffer),
		cfg:    cfg,
		logger: logger.With(zap.String("client_id", id.String())),
	}
}

func (c *conn) pingPeriod() time.Duration {
	return c.cfg.PongTimeout * 9 / 10
}

// readLoop dispatches inbound calls until the socket fails or is closed, then
// takes the client out of the game.
func (c *conn) readLoop() {
	defer func() {
		c.game.leave(c)
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.game.reject(c, "only text messages are accepted")
			continue
		}
		call, err := decodeFunctionCall(data)
		if err != nil {
			c.game.reject(c, err.Error())
			continue
		}
		c.game.dispatch(c, call)
	}
}

// writeLoop drains send onto the socket and keeps the peer alive with pings. It
// returns once send is closed or a write fails.
func (c *conn) writeLoop() {
	ticker := time.NewTicker(c.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
