package signaling

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	DefaultNegotiationTimeout = 30 * time.Second
	defaultInboxSize          = 64
)

type Config struct {
	// NegotiationTimeout bounds how long a consumer may stay pending.
	NegotiationTimeout time.Duration
	InboxSize          int
}

type result struct {
	value any
	err   error
}

type command struct {
	run  func(*roomState) (any, []notification, error)
	done chan result
}

type room struct {
	id    string
	inbox chan command
	// pending counts commands submitted and not yet finished. Guarded by
	// Registry.mu; a room only retires at zero.
	pending int
}

// Registry is the process-wide media signaling state. Each active room is an
// actor: one goroutine applies that room's commands in arrival order, so two
// participants touching the same room never race, while different rooms
// progress independently. Idle rooms retire their goroutine.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*room
	closed   bool
	wg       sync.WaitGroup
	notifier contract.Notifier
	log      *slog.Logger
	cfg      Config
	now      func() time.Time
}

func NewRegistry(log *slog.Logger, notifier contract.Notifier, cfg Config) *Registry {
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = DefaultNegotiationTimeout
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	return &Registry{
		rooms:    make(map[string]*room),
		notifier: notifier,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// CreateProducer registers the participant's producer for a kind, replacing
// and tearing down any previous one, and announces it to the room.
func (r *Registry) CreateProducer(ctx context.Context, req ProducerRequest) (Producer, error) {
	return call(ctx, r, req.ChannelID, func(s *roomState) (Producer, []notification, error) {
		p, out := s.upsertProducer(req, r.now())
		return p, out, nil
	})
}

// CreateConsumer opens a pending consumer on a live producer and forwards the
// consumer's description to the producer's owner. A missing producer is
// errors.ErrProducerNotFound; the client is expected to resync with
// FetchProducers.
func (r *Registry) CreateConsumer(ctx context.Context, req ConsumerRequest) (ConsumerCreated, error) {
	return call(ctx, r, req.ChannelID, func(s *roomState) (ConsumerCreated, []notification, error) {
		return s.createConsumer(req, r.now())
	})
}

// ConsumerConnected ends the negotiation of a pending consumer.
func (r *Registry) ConsumerConnected(ctx context.Context, channelID, participantID, consumerID string) error {
	_, err := call(ctx, r, channelID, func(s *roomState) (struct{}, []notification, error) {
		return struct{}{}, nil, s.activateConsumer(participantID, consumerID)
	})
	return err
}

// FetchProducers joins the participant to the room and lists the producers
// it can consume.
func (r *Registry) FetchProducers(ctx context.Context, channelID, participantID string) ([]Producer, error) {
	return call(ctx, r, channelID, func(s *roomState) ([]Producer, []notification, error) {
		s.join(participantID)
		producers := make([]Producer, 0, len(s.producers))
		for _, p := range s.snapshot().Producers {
			if p.ParticipantID != participantID {
				producers = append(producers, p)
			}
		}
		return producers, nil, nil
	})
}

// PeerDisconnected removes the selected producers of a participant. Each
// removal is committed before any participant hears about it.
func (r *Registry) PeerDisconnected(ctx context.Context, req DisconnectRequest) error {
	_, err := call(ctx, r, req.ChannelID, func(s *roomState) (struct{}, []notification, error) {
		out, err := s.disconnect(req)
		return struct{}{}, out, err
	})
	return err
}

// Leave runs the transport disconnect cascade for every listed room.
func (r *Registry) Leave(ctx context.Context, participantID string, channelIDs ...string) error {
	var errs []error
	for _, channelID := range channelIDs {
		_, err := call(ctx, r, channelID, func(s *roomState) (struct{}, []notification, error) {
			return struct{}{}, s.leave(participantID), nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("leave %s: %w", channelID, err))
		}
	}
	return errors.Join(errs...)
}

// RelayICE forwards a candidate to its target. Nothing is stored.
func (r *Registry) RelayICE(_ context.Context, candidate ICECandidate) error {
	if candidate.Target == "" {
		return fmt.Errorf("%w: ice candidate without target", errors.ErrValidation)
	}
	r.notifier.Notify(candidate.Target, EventIceCandidate, candidate)
	return nil
}

// Sweep reclaims pending consumers older than the negotiation timeout in
// every room and returns how many were dropped.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	deadline := r.now().Add(-r.cfg.NegotiationTimeout)
	expired := 0
	for _, channelID := range r.roomIDs() {
		n, err := call(ctx, r, channelID, func(s *roomState) (int, []notification, error) {
			out := s.expire(deadline)
			return len(out), out, nil
		})
		if err != nil {
			return expired, err
		}
		expired += n
	}
	return expired, nil
}

// Snapshot copies one room's state. An unknown room is empty.
func (r *Registry) Snapshot(ctx context.Context, channelID string) (Snapshot, error) {
	return call(ctx, r, channelID, func(s *roomState) (Snapshot, []notification, error) {
		return s.snapshot(), nil, nil
	})
}

// ActiveRooms is the number of rooms currently holding an actor.
func (r *Registry) ActiveRooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Close stops accepting commands and waits for every room actor to drain.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	for id, rm := range r.rooms {
		if rm.pending == 0 {
			delete(r.rooms, id)
			close(rm.inbox)
		}
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Registry) roomIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	return ids
}

// call submits a typed command to the room's actor.
func call[T any](ctx context.Context, r *Registry, channelID string, run func(*roomState) (T, []notification, error)) (T, error) {
	var zero T
	value, err := r.do(ctx, channelID, func(s *roomState) (any, []notification, error) {
		return run(s)
	})
	if err != nil {
		return zero, err
	}
	v, _ := value.(T)
	return v, nil
}

// do submits a command to the room's actor, starting it if needed, and waits
// for the result. A ctx done while the inbox is full withdraws the command;
// once queued a command always runs and a canceled ctx only stops the caller
// from waiting.
func (r *Registry) do(ctx context.Context, channelID string, run func(*roomState) (any, []notification, error)) (any, error) {
	if channelID == "" {
		return nil, fmt.Errorf("%w: channelId", errors.ErrMissingField)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.ErrRegistryClosed
	}
	rm, ok := r.rooms[channelID]
	if !ok {
		rm = &room{id: channelID, inbox: make(chan command, r.cfg.InboxSize)}
		r.rooms[channelID] = rm
		r.wg.Add(1)
		go r.loop(rm)
	}
	rm.pending++
	r.mu.Unlock()

	cmd := command{run: run, done: make(chan result, 1)}
	select {
	case rm.inbox <- cmd:
	case <-ctx.Done():
		r.withdraw(rm)
		return nil, ctx.Err()
	}

	select {
	case res := <-cmd.done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// withdraw undoes the pending count of a command that never reached the
// inbox. An idle room left at zero keeps its actor until the next command or
// sweep; during Close it retires here.
func (r *Registry) withdraw(rm *room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm.pending--
	if rm.pending == 0 && r.closed {
		delete(r.rooms, rm.id)
		close(rm.inbox)
	}
}

func (r *Registry) loop(rm *room) {
	defer r.wg.Done()
	state := newRoomState(rm.id)

	for cmd := range rm.inbox {
		cmd.done <- r.apply(state, cmd)

		r.mu.Lock()
		rm.pending--
		if rm.pending == 0 && (state.empty() || r.closed) {
			delete(r.rooms, rm.id)
			close(rm.inbox)
		}
		r.mu.Unlock()
	}
	r.log.Debug("Room actor retired", "channel_id", rm.id)
}

// apply runs one command and then delivers its notifications. A panic fails
// the command without killing the room.
func (r *Registry) apply(state *roomState, cmd command) (res result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Signaling command panicked", "channel_id", state.id, "panic", rec, "stack", string(debug.Stack()))
			res = result{err: fmt.Errorf("signaling command panicked: %v", rec)}
		}
	}()

	value, out, err := cmd.run(state)
	if err != nil {
		return result{err: err}
	}
	for _, n := range out {
		r.notifier.Notify(n.to, n.event, n.data)
	}
	return result{value: value}
}
