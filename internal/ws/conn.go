package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/DLT11-dev/be-chat/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client 是一个已认证用户的实时连接。
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	userID  uint
	uname   string
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool

	// 由 hub.mu 保护
	rooms map[string]struct{}
}

func newClient(h *Hub, conn *websocket.Conn, user *models.User, limiter *rate.Limiter) *Client {
	return &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		userID:  user.ID,
		uname:   user.Username,
		limiter: limiter,
		rooms:   make(map[string]struct{}),
	}
}

// Emit 把事件放入发送缓冲区，不会阻塞；连接已关闭或缓冲区已满时返回 false。
func (c *Client) Emit(event string, data interface{}) bool {
	b, err := encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("ws: encode event")
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		log.Warn().Uint("user_id", c.userID).Str("event", event).Msg("ws: send buffer full, event dropped")
		return false
	}
}

// close 关闭发送通道，写协程随后发送 close 帧并断开连接。可重复调用。
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Options 控制每个连接的入站事件限速，EventsPerSecond <= 0 表示不限速。
type Options struct {
	EventsPerSecond float64
	EventBurst      int
}

func (o Options) limiter() *rate.Limiter {
	if o.EventsPerSecond <= 0 {
		return nil
	}
	burst := o.EventBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(o.EventsPerSecond), burst)
}

// Serve 在升级前完成握手认证，失败时只返回 401，不建立连接。
func Serve(h *Hub, g *Gatekeeper, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := g.Authenticate(c.Request)
		if err != nil {
			log.Debug().Err(err).Str("ip", c.ClientIP()).Msg("ws: handshake rejected")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("ws: upgrade failed")
			return
		}
		client := newClient(h, conn, user, opts.limiter())
		h.Register(client)
		log.Info().Uint("user_id", user.ID).Str("username", user.Username).Msg("ws: connected")

		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.hub.Unregister(c)
		_ = c.conn.Close()
		log.Info().Uint("user_id", c.userID).Msg("ws: disconnected")
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Uint("user_id", c.userID).Msg("ws: read error")
			}
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.Emit(EventError, ErrorEvent{Message: "rate limit exceeded"})
			continue
		}
		var in InboundEvent
		if err := json.Unmarshal(data, &in); err != nil || in.Event == "" {
			c.Emit(EventError, ErrorEvent{Message: "malformed event"})
			continue
		}
		c.hub.Dispatch(ctx, c, in)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
