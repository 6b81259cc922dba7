package server

import (
	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/event"
	"chat-relay/runtime"
	"chat-relay/services"
	"chat-relay/signaling"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type HubConfig struct {
	SendBuffer     int
	RateLimit      float64
	RateBurst      int
	MaxMessageSize int64
	PongWait       time.Duration
	WriteWait      time.Duration
	// HandlerTimeout bounds each inbound event, signaling calls included.
	HandlerTimeout time.Duration
}

func (c HubConfig) PingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

func (c HubConfig) withDefaults() HubConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 20
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 40
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 << 10
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 10 * time.Second
	}
	return c
}

// Ack confirms events that have no other reply.
type Ack struct {
	Event     event.Name `json:"event"`
	ChannelID string     `json:"channelId,omitempty"`
}

type ProducerList struct {
	ChannelID string               `json:"channelId"`
	Producers []signaling.Producer `json:"producers"`
}

// Hub upgrades authenticated requests to WebSocket connections and routes
// their validated events to the chat service and the signaling registry.
type Hub struct {
	log       *slog.Logger
	pipeline  *event.Pipeline
	identity  auth.IdentityProvider
	rooms     *runtime.Registry
	chat      services.IChatService
	signaling *signaling.Registry
	cfg       HubConfig
	upgrader  websocket.Upgrader
}

func NewHub(
	log *slog.Logger,
	pipeline *event.Pipeline,
	identity auth.IdentityProvider,
	rooms *runtime.Registry,
	chat services.IChatService,
	signalingRegistry *signaling.Registry,
	cfg HubConfig) *Hub {
	return &Hub{
		log:       log,
		pipeline:  pipeline,
		identity:  identity,
		rooms:     rooms,
		chat:      chat,
		signaling: signalingRegistry,
		cfg:       cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// bearer reads the token from the Authorization header, or from the "token"
// query parameter for browsers that cannot set headers on an upgrade.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject, err := h.identity.Verify(r.Context(), bearer(r))
	if err != nil {
		auth.WriteError(w, err)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Info("WebSocket upgrade failed", "participant_id", subject, "error", err)
		return
	}

	c := newConn(uuid.NewString(), subject, ws, h.pipeline, h.cfg, h.log)
	h.rooms.Register(subject, c.id, c)
	c.log.Info("Participant connected")

	go c.writePump()
	c.readPump(func(raw []byte) { h.handle(c, raw) })
	h.disconnect(c)
}

// handle validates one frame and runs it in the connection's slot. Failures
// become an error frame; the connection stays open.
func (h *Hub) handle(c *Conn, raw []byte) {
	ev, err := h.pipeline.Decode(raw)
	if err != nil {
		c.log.Debug("Inbound event rejected", "error", err)
		c.emitError(err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.HandlerTimeout)
	defer cancel()
	err = c.slot.Handle(ev, func(ev event.Event) error {
		return h.dispatch(ctx, c, ev)
	})
	if err != nil {
		if errors.Classify(err).StatusCode >= http.StatusInternalServerError {
			c.log.Error("Event handler failed", "event", ev.Name(), "error", err)
		}
		c.emitError(err)
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Conn, ev event.Event) error {
	me := c.participantID
	switch e := ev.(type) {
	case event.SendMessage:
		_, err := h.chat.SendMessage(ctx, me, e)
		return err

	case event.MarkChannelRead:
		if err := h.chat.MarkChannelRead(ctx, me, e); err != nil {
			return err
		}
		return c.Emit(string(event.AckEvent), Ack{Event: e.Name(), ChannelID: e.ChannelID})

	case event.FetchConversation:
		page, err := h.chat.FetchConversation(ctx, me, e)
		if err != nil {
			return err
		}
		return c.Emit(string(event.ConversationEvent), page)

	case event.CreateConversation:
		conv, err := h.chat.CreateConversation(ctx, me, e)
		if err != nil {
			return err
		}
		return c.Emit(string(event.ConversationCreatedEvent), conv)

	case event.FetchMessages:
		page, err := h.chat.FetchMessages(ctx, me, e)
		if err != nil {
			return err
		}
		return c.Emit(string(event.MessagesEvent), page)

	case event.JoinChannel:
		h.chat.JoinChannel(me, e.ChannelID)
		return c.Emit(string(event.AckEvent), Ack{Event: e.Name(), ChannelID: e.ChannelID})

	case event.LeaveChannel:
		h.chat.LeaveChannel(me, e.ChannelID)
		if err := h.signaling.Leave(ctx, me, e.ChannelID); err != nil {
			return err
		}
		return c.Emit(string(event.AckEvent), Ack{Event: e.Name(), ChannelID: e.ChannelID})

	case event.CreateProducer:
		h.chat.JoinChannel(me, e.ChannelID)
		p, err := h.signaling.CreateProducer(ctx, signaling.ProducerRequest{
			ChannelID: e.ChannelID, ParticipantID: me, Kind: e.Kind, SDP: e.SDP,
		})
		if err != nil {
			return err
		}
		return c.Emit(string(event.ProducerCreatedEvent), p)

	case event.CreateConsumerForProducer:
		h.chat.JoinChannel(me, e.ChannelID)
		created, err := h.signaling.CreateConsumer(ctx, signaling.ConsumerRequest{
			ChannelID:     e.ChannelID,
			ParticipantID: me,
			ProducerID:    e.ProducerID,
			ProducerOwner: e.ParticipantID,
			Kind:          e.Kind,
			SDP:           e.SDP,
		})
		if err != nil {
			return err
		}
		return c.Emit(string(event.ConsumerCreatedEvent), created)

	case event.ConsumerConnected:
		if err := h.signaling.ConsumerConnected(ctx, e.ChannelID, me, e.ConsumerID); err != nil {
			return err
		}
		return c.Emit(string(event.AckEvent), Ack{Event: e.Name(), ChannelID: e.ChannelID})

	case event.FetchProducers:
		h.chat.JoinChannel(me, e.ChannelID)
		producers, err := h.signaling.FetchProducers(ctx, e.ChannelID, me)
		if err != nil {
			return err
		}
		return c.Emit(string(event.ProducersEvent), ProducerList{ChannelID: e.ChannelID, Producers: producers})

	case event.IceCandidate:
		// The sender is always the authenticated participant
		return h.signaling.RelayICE(ctx, signaling.ICECandidate{
			Candidate:  e.Candidate,
			RoomID:     e.RoomID,
			Target:     e.Target,
			ProducerID: e.ProducerID,
			ConsumerID: e.ConsumerID,
			UserID:     me,
		})

	case event.PeerDisconnected:
		err := h.signaling.PeerDisconnected(ctx, signaling.DisconnectRequest{
			ChannelID: e.ChannelID, ParticipantID: me, ProducerID: e.ProducerID, Kind: e.Kind,
		})
		if err != nil {
			return err
		}
		return c.Emit(string(event.AckEvent), Ack{Event: e.Name(), ChannelID: e.ChannelID})

	default:
		return fmt.Errorf("%w: %s", errors.ErrUnknownEvent, ev.Name())
	}
}

// disconnect drops the connection. The participant's last connection going
// away runs the media cascade and the presence update in every room it was
// in.
func (h *Hub) disconnect(c *Conn) {
	rooms, last := h.rooms.Unregister(c.participantID, c.id)
	c.log.Info("Participant disconnected", "last_connection", last)
	if !last || len(rooms) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.HandlerTimeout)
	defer cancel()
	if err := h.signaling.Leave(ctx, c.participantID, rooms...); err != nil {
		c.log.Error("Media cascade failed", "rooms", rooms, "error", err)
	}
	for _, roomID := range rooms {
		h.rooms.Broadcast(roomID, string(event.ParticipantLeftEvent), services.MemberEvent{ChannelID: roomID, ParticipantID: c.participantID})
	}
}
