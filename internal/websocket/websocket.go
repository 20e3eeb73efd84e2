package websocket

import (
	"net/http"
	"time"

	"duel/internal/auth"
	"duel/internal/handle/game"
	"duel/internal/handle/message"
	"duel/internal/session"
	"duel/internal/types"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	bufferSize     = 64
)

// Engine is what the transport needs from the matchmaking service.
type Engine interface {
	message.Engine
	Disconnect(connID string)
	Stats() game.Stats
}

type Options struct {
	AllowedOrigins []string
	JWTSecret      string
	InputRate      float64
	InputBurst     int
	Leaderboard    Leaderboard
}

type Server struct {
	registry *session.Registry
	engine   Engine
	handler  *message.Handler
	opts     Options
	upgrader websocket.Upgrader
}

func NewServer(registry *session.Registry, engine Engine, opts Options) *Server {
	s := &Server{
		registry: registry,
		engine:   engine,
		handler:  message.NewHandler(engine),
		opts:     opts,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return originAllowed(opts.AllowedOrigins, r.Header.Get("Origin")) },
	}
	return s
}

func (s *Server) ServeWS(ctx *gin.Context) {
	var identity types.Identity
	if token := ctx.Query("token"); token != "" && s.opts.JWTSecret != "" {
		id, err := auth.ParseToken(s.opts.JWTSecret, token)
		if err != nil {
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": "bad-token"})
			return
		}
		identity = id
	}

	conn, err := s.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	limit, burst := rate.Inf, s.opts.InputBurst
	if s.opts.InputRate > 0 {
		limit = rate.Limit(s.opts.InputRate)
	}
	if burst < 1 {
		burst = 1
	}
	client := &types.Client{
		ID:      uuid.NewString(),
		Conn:    conn,
		Send:    make(chan []byte, bufferSize),
		Inbox:   make(chan []byte, bufferSize),
		Done:    make(chan struct{}),
		Limiter: rate.NewLimiter(limit, burst),
		User:    identity,
	}

	s.registry.AddClient(client)
	log.Infof("Client connected: %s (%s)", client.ID, conn.RemoteAddr())

	go s.readPump(client)
	go s.writePump(client)
	go s.processMessages(client)
}

// disconnect runs once per client, whichever pump fails first. Send is never
// closed since handlers may still reply on it; Done stops the writer instead.
func (s *Server) disconnect(c *types.Client) {
	c.Once.Do(func() {
		s.registry.RemoveClient(c.ID)
		close(c.Done)
		c.Conn.Close()
		s.engine.Disconnect(c.ID)
		log.Infof("Client disconnected: %s", c.ID)
	})
}

func (s *Server) readPump(c *types.Client) {
	defer func() {
		close(c.Inbox)
		s.disconnect(c)
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("Read error from %s: %v", c.ID, err)
			}
			return
		}
		c.Inbox <- msg
	}
}

func (s *Server) writePump(c *types.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.disconnect(c)
	}()

	for {
		select {
		case <-c.Done:
			return
		case msg := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Warnf("Write error to %s: %v", c.ID, err)
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) processMessages(c *types.Client) {
	for msg := range c.Inbox {
		s.handleGameMessage(c, msg)
	}
}
