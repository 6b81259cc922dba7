package runtime

import (
	"chat-relay/contract"
	"log/slog"
	"sync"
)

type Set map[string]struct{}

var _ contract.Notifier = (*Registry)(nil)

// Registry tracks live connections and the rooms each participant joined.
// A participant may hold several connections (tabs, devices); events
// addressed to the participant go to all of them.
type Registry struct {
	mu          sync.RWMutex
	log         *slog.Logger
	sessions    map[string]map[string]contract.EventSink // participant -> connection -> sink
	roomMembers map[string]Set                           // room -> participants
	joined      map[string]Set                           // participant -> rooms
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:         log,
		sessions:    make(map[string]map[string]contract.EventSink),
		roomMembers: make(map[string]Set),
		joined:      make(map[string]Set),
	}
}

// Register attaches a connection to a participant.
func (r *Registry) Register(participantID, connectionID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.sessions[participantID]
	if !ok {
		conns = make(map[string]contract.EventSink)
		r.sessions[participantID] = conns
	}
	conns[connectionID] = sink
}

// Unregister detaches one connection. When it was the participant's last one,
// the participant leaves every room and the rooms it was in are returned so
// the caller can run the disconnect cascade for each of them.
func (r *Registry) Unregister(participantID, connectionID string) (rooms []string, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.sessions[participantID]
	if !ok {
		return nil, false
	}
	delete(conns, connectionID)
	if len(conns) > 0 {
		return nil, false
	}
	delete(r.sessions, participantID)

	for roomID := range r.joined[participantID] {
		rooms = append(rooms, roomID)
		r.leaveLocked(participantID, roomID)
	}
	return rooms, true
}

// Join adds the participant to a room. Joining twice is a no-op.
func (r *Registry) Join(participantID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roomMembers[roomID]; !ok {
		r.roomMembers[roomID] = make(Set)
	}
	r.roomMembers[roomID][participantID] = struct{}{}

	if _, ok := r.joined[participantID]; !ok {
		r.joined[participantID] = make(Set)
	}
	r.joined[participantID][roomID] = struct{}{}
}

func (r *Registry) Leave(participantID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(participantID, roomID)
}

// leaveLocked drops empty sets so rooms and participants do not leak.
func (r *Registry) leaveLocked(participantID, roomID string) {
	if members, ok := r.roomMembers[roomID]; ok {
		delete(members, participantID)
		if len(members) == 0 {
			delete(r.roomMembers, roomID)
		}
	}
	if rooms, ok := r.joined[participantID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.joined, participantID)
		}
	}
}

// Members returns a snapshot of the participants in a room.
func (r *Registry) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]string, 0, len(r.roomMembers[roomID]))
	for id := range r.roomMembers[roomID] {
		members = append(members, id)
	}
	return members
}

func (r *Registry) IsMember(participantID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roomMembers[roomID][participantID]
	return ok
}

func (r *Registry) Online(participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[participantID]) > 0
}

// Notify emits to every connection of the participant. Delivery failures are
// logged: the sink itself closes connections that cannot keep up.
func (r *Registry) Notify(participantID string, event string, data any) {
	for _, sink := range r.sinks(participantID) {
		if err := sink.Emit(event, data); err != nil {
			r.log.Debug("Event not delivered", "participant_id", participantID, "event", event, "error", err)
		}
	}
}

// Broadcast notifies every room member except the ones listed.
func (r *Registry) Broadcast(roomID string, event string, data any, except ...string) {
	skip := make(Set, len(except))
	for _, id := range except {
		skip[id] = struct{}{}
	}
	for _, participantID := range r.Members(roomID) {
		if _, ok := skip[participantID]; ok {
			continue
		}
		r.Notify(participantID, event, data)
	}
}

// sinks copies the sinks out so Emit never runs under the registry lock.
func (r *Registry) sinks(participantID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.sessions[participantID]
	sinks := make([]contract.EventSink, 0, len(conns))
	for _, sink := range conns {
		sinks = append(sinks, sink)
	}
	return sinks
}
