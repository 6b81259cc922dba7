package server

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/event"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var _ contract.EventSink = (*Conn)(nil)

// Conn is one WebSocket client. Outbound frames go through a bounded buffer
// drained by the write pump; a client too slow to drain it is dropped so no
// room actor ever blocks on it.
type Conn struct {
	id            string
	participantID string
	ws            *websocket.Conn
	pipeline      *event.Pipeline
	limiter       *rate.Limiter
	slot          event.Slot
	send          chan []byte
	done          chan struct{}
	closeOnce     sync.Once
	cfg           HubConfig
	log           *slog.Logger
}

func newConn(id, participantID string, ws *websocket.Conn, pipeline *event.Pipeline, cfg HubConfig, log *slog.Logger) *Conn {
	return &Conn{
		id:            id,
		participantID: participantID,
		ws:            ws,
		pipeline:      pipeline,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		send:          make(chan []byte, cfg.SendBuffer),
		done:          make(chan struct{}),
		cfg:           cfg,
		log:           log.With("connection_id", id, "participant_id", participantID),
	}
}

// Emit seals data and queues the frame. It never blocks.
func (c *Conn) Emit(name string, data any) error {
	frame, err := c.pipeline.Encode(event.Name(name), data)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

func (c *Conn) emitError(err error) {
	frame, encErr := c.pipeline.EncodeError(err)
	if encErr != nil {
		c.log.Error("Unable to encode error frame", "error", encErr)
		return
	}
	_ = c.enqueue(frame)
}

func (c *Conn) enqueue(frame []byte) error {
	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.log.Warn("Send buffer full, dropping connection", "buffer", cap(c.send))
		c.close()
		return errors.ErrSendBufferFull
	}
}

// close signals both pumps. The write pump owns the socket and closes it.
func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump hands every text frame to handle, one at a time, until the
// socket fails or the connection is closed.
func (c *Conn) readPump(handle func(raw []byte)) {
	defer c.close()

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		messageType, raw, err := c.ws.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !strings.Contains(err.Error(), net.ErrClosed.Error()) &&
				websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.log.Info("Connection read failed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.emitError(errors.ErrMalformedEvent)
			continue
		}
		if !c.limiter.Allow() {
			c.emitError(errors.ErrRateLimited)
			continue
		}
		handle(raw)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Connection write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
