package signaling

import (
	"chat-relay/errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type ownerKey struct {
	participantID string
	kind          Kind
}

type notification struct {
	to    string
	event string
	data  any
}

// roomState is owned by exactly one actor goroutine. Methods mutate first and
// return the notifications to send; the actor delivers them afterwards, so a
// participant reacting to a notification always observes the committed state.
type roomState struct {
	id           string
	producers    map[string]*Producer
	owners       map[ownerKey]string
	consumers    map[string]*Consumer
	participants map[string]struct{}
}

func newRoomState(id string) *roomState {
	return &roomState{
		id:           id,
		producers:    make(map[string]*Producer),
		owners:       make(map[ownerKey]string),
		consumers:    make(map[string]*Consumer),
		participants: make(map[string]struct{}),
	}
}

func (s *roomState) empty() bool {
	return len(s.producers) == 0 && len(s.consumers) == 0 && len(s.participants) == 0
}

func (s *roomState) join(participantID string) {
	s.participants[participantID] = struct{}{}
}

// others lists participants except the given one, in a stable order.
func (s *roomState) others(participantID string) []string {
	ids := lo.Filter(lo.Keys(s.participants), func(id string, _ int) bool { return id != participantID })
	slices.Sort(ids)
	return ids
}

func (s *roomState) broadcast(from, event string, data any) []notification {
	return lo.Map(s.others(from), func(to string, _ int) notification {
		return notification{to: to, event: event, data: data}
	})
}

func (s *roomState) upsertProducer(req ProducerRequest, now time.Time) (Producer, []notification) {
	s.join(req.ParticipantID)

	var out []notification
	key := ownerKey{participantID: req.ParticipantID, kind: req.Kind}
	if oldID, ok := s.owners[key]; ok {
		out = append(out, s.removeProducers([]string{oldID})...)
	}

	p := &Producer{
		ID:            uuid.NewString(),
		ChannelID:     s.id,
		ParticipantID: req.ParticipantID,
		Kind:          req.Kind,
		SDP:           req.SDP,
		CreatedAt:     now,
	}
	s.producers[p.ID] = p
	s.owners[key] = p.ID

	out = append(out, s.broadcast(req.ParticipantID, EventProducerAvailable, notice(p))...)
	return *p, out
}

func (s *roomState) createConsumer(req ConsumerRequest, now time.Time) (ConsumerCreated, []notification, error) {
	p, ok := s.producers[req.ProducerID]
	if !ok || (req.ProducerOwner != "" && req.ProducerOwner != p.ParticipantID) {
		return ConsumerCreated{}, nil, fmt.Errorf("%w %s in channel %s", errors.ErrProducerNotFound, req.ProducerID, s.id)
	}
	if req.Kind != "" && req.Kind != p.Kind {
		return ConsumerCreated{}, nil, fmt.Errorf("%w: producer %s is %s, not %s", errors.ErrValidation, p.ID, p.Kind, req.Kind)
	}
	if p.ParticipantID == req.ParticipantID {
		return ConsumerCreated{}, nil, fmt.Errorf("%w: cannot consume own producer", errors.ErrValidation)
	}
	s.join(req.ParticipantID)

	// A renegotiation replaces the previous consumer of the same pair.
	for id, c := range s.consumers {
		if c.ProducerID == p.ID && c.ParticipantID == req.ParticipantID {
			delete(s.consumers, id)
		}
	}

	c := &Consumer{
		ID:            uuid.NewString(),
		ChannelID:     s.id,
		ParticipantID: req.ParticipantID,
		ProducerID:    p.ID,
		Kind:          p.Kind,
		SDP:           req.SDP,
		State:         Pending,
		CreatedAt:     now,
	}
	s.consumers[c.ID] = c

	answer := notification{
		to:    p.ParticipantID,
		event: EventConsumerAnswer,
		data: ConsumerAnswer{
			ChannelID:     s.id,
			ConsumerID:    c.ID,
			ProducerID:    p.ID,
			ParticipantID: c.ParticipantID,
			Kind:          p.Kind,
			SDP:           req.SDP,
		},
	}
	created := ConsumerCreated{
		ConsumerID: c.ID,
		ProducerID: p.ID,
		Kind:       p.Kind,
		Offer:      p.SDP,
		Answer:     req.SDP,
	}
	return created, []notification{answer}, nil
}

func (s *roomState) activateConsumer(participantID, consumerID string) error {
	c, ok := s.consumers[consumerID]
	if !ok || c.ParticipantID != participantID {
		return fmt.Errorf("%w %s in channel %s", errors.ErrConsumerNotFound, consumerID, s.id)
	}
	c.State = Active
	return nil
}

// disconnect removes the producers selected by req and tells every other
// participant about each removal.
func (s *roomState) disconnect(req DisconnectRequest) ([]notification, error) {
	var ids []string
	switch {
	case req.ProducerID != "":
		p, ok := s.producers[req.ProducerID]
		if !ok || p.ParticipantID != req.ParticipantID {
			return nil, fmt.Errorf("%w %s in channel %s", errors.ErrProducerNotFound, req.ProducerID, s.id)
		}
		ids = []string{p.ID}
	case req.Kind != "":
		id, ok := s.owners[ownerKey{participantID: req.ParticipantID, kind: req.Kind}]
		if !ok {
			return nil, fmt.Errorf("%w: no %s producer for %s", errors.ErrProducerNotFound, req.Kind, req.ParticipantID)
		}
		ids = []string{id}
	default:
		ids = s.producerIDsOf(req.ParticipantID)
	}
	return s.removeProducers(ids), nil
}

// leave is the transport-level disconnect: everything the participant owns
// goes, including the consumers it was receiving on.
func (s *roomState) leave(participantID string) []notification {
	delete(s.participants, participantID)
	for id, c := range s.consumers {
		if c.ParticipantID == participantID {
			delete(s.consumers, id)
		}
	}
	return s.removeProducers(s.producerIDsOf(participantID))
}

// expire drops pending consumers created before the deadline.
func (s *roomState) expire(deadline time.Time) []notification {
	var out []notification
	for id, c := range s.consumers {
		if c.State != Pending || c.CreatedAt.After(deadline) {
			continue
		}
		delete(s.consumers, id)
		out = append(out, notification{
			to:    c.ParticipantID,
			event: EventConsumerExpired,
			data:  ConsumerNotice{ChannelID: s.id, ConsumerID: c.ID, ProducerID: c.ProducerID},
		})
	}
	return out
}

func (s *roomState) producerIDsOf(participantID string) []string {
	var ids []string
	for id, p := range s.producers {
		if p.ParticipantID == participantID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// removeProducers commits every removal, cascading to consumers, before
// building any notification.
func (s *roomState) removeProducers(ids []string) []notification {
	removed := make([]*Producer, 0, len(ids))
	for _, id := range ids {
		p, ok := s.producers[id]
		if !ok {
			continue
		}
		delete(s.producers, id)
		delete(s.owners, ownerKey{participantID: p.ParticipantID, kind: p.Kind})
		for cid, c := range s.consumers {
			if c.ProducerID == id {
				delete(s.consumers, cid)
			}
		}
		removed = append(removed, p)
	}

	var out []notification
	for _, p := range removed {
		out = append(out, s.broadcast(p.ParticipantID, EventProducerRemoved, notice(p))...)
	}
	return out
}

func (s *roomState) snapshot() Snapshot {
	producers := lo.Map(lo.Values(s.producers), func(p *Producer, _ int) Producer { return *p })
	slices.SortFunc(producers, func(a, b Producer) int { return a.CreatedAt.Compare(b.CreatedAt) })
	consumers := lo.Map(lo.Values(s.consumers), func(c *Consumer, _ int) Consumer { return *c })
	slices.SortFunc(consumers, func(a, b Consumer) int { return a.CreatedAt.Compare(b.CreatedAt) })
	participants := lo.Keys(s.participants)
	slices.Sort(participants)
	return Snapshot{Producers: producers, Consumers: consumers, Participants: participants}
}

func notice(p *Producer) ProducerNotice {
	return ProducerNotice{
		ChannelID:     p.ChannelID,
		ProducerID:    p.ID,
		ParticipantID: p.ParticipantID,
		Kind:          p.Kind,
	}
}
