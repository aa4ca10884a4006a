package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrQueueFull     = errors.New("channel send queue full")
)

const (
	sendQueueSize = 32
	writeTimeout  = 10 * time.Second
)

// Frame is the JSON envelope written to clients.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// wsChannel queues outbound frames and writes them from its own goroutine,
// so Send never waits on a slow peer.
type wsChannel struct {
	id   string
	conn *websocket.Conn
	out  chan Frame

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{
		id:   "ch_" + uuid.NewString(),
		conn: conn,
		out:  make(chan Frame, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *wsChannel) ID() string { return c.id }

func (c *wsChannel) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.out <- Frame{Event: event, Data: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *wsChannel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

func (c *wsChannel) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case f := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, f)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("channel_id", c.id).Msg("websocket write failed")
				c.close()
				return
			}
		}
	}
}

// Authenticator resolves the user behind a connection request.
type Authenticator func(r *http.Request) (userID string, err error)

// Handler upgrades authenticated requests to websocket channels registered
// in reg for the lifetime of the connection.
func Handler(reg *Registry, auth Authenticator, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth(r)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("websocket accept")
			return
		}
		defer conn.CloseNow()

		ch := newWSChannel(conn)
		reg.Register(userID, ch)
		defer reg.Remove(userID, ch.id)
		log.Debug().Str("user_id", userID).Str("channel_id", ch.id).Msg("channel connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go ch.writeLoop(ctx)

		// Clients only listen; reading keeps control frames flowing and
		// detects disconnects.
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				break
			}
		}
		ch.close()
		log.Debug().Str("user_id", userID).Str("channel_id", ch.id).Msg("channel disconnected")
	}
}
