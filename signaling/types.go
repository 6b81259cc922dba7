package signaling

import (
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
)

type Kind string

const (
	Audio  Kind = "audio"
	Video  Kind = "video"
	Screen Kind = "screen"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Audio, Video, Screen:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown media kind %q", errors.ErrValidation, s)
}

// Outbound notification names.
const (
	EventProducerAvailable = "producerAvailable"
	EventProducerRemoved   = "producerRemoved"
	EventConsumerAnswer    = "consumerAnswer"
	EventConsumerExpired   = "consumerExpired"
	EventIceCandidate      = "iceCandidate"
)

type Producer struct {
	ID            string                    `json:"id"`
	ChannelID     string                    `json:"channelId"`
	ParticipantID string                    `json:"participantId"`
	Kind          Kind                      `json:"kind"`
	SDP           webrtc.SessionDescription `json:"sdp"`
	CreatedAt     time.Time                 `json:"createdAt"`
}

type ConsumerState string

const (
	Pending ConsumerState = "pending"
	Active  ConsumerState = "active"
)

type Consumer struct {
	ID            string                    `json:"id"`
	ChannelID     string                    `json:"channelId"`
	ParticipantID string                    `json:"participantId"`
	ProducerID    string                    `json:"producerId"`
	Kind          Kind                      `json:"kind"`
	SDP           webrtc.SessionDescription `json:"sdp"`
	State         ConsumerState             `json:"state"`
	CreatedAt     time.Time                 `json:"createdAt"`
}

type ProducerRequest struct {
	ChannelID     string
	ParticipantID string
	Kind          Kind
	SDP           webrtc.SessionDescription
}

type ConsumerRequest struct {
	ChannelID     string
	ParticipantID string
	ProducerID    string
	// ProducerOwner is optional; a producer owned by someone else is treated
	// as gone.
	ProducerOwner string
	// Kind is optional; when set it must match the producer.
	Kind Kind
	SDP  webrtc.SessionDescription
}

// ConsumerCreated is returned to the consuming participant.
type ConsumerCreated struct {
	ConsumerID string                    `json:"consumerId"`
	ProducerID string                    `json:"producerId"`
	Kind       Kind                      `json:"kind"`
	Offer      webrtc.SessionDescription `json:"offer"`
	Answer     webrtc.SessionDescription `json:"answer"`
}

// DisconnectRequest selects which producers of a participant go away: the one
// named by ProducerID, else the one of Kind, else all of them.
type DisconnectRequest struct {
	ChannelID     string
	ParticipantID string
	ProducerID    string
	Kind          Kind
}

// ICECandidate is relayed verbatim to Target. Exactly one of ProducerID or
// ConsumerID names the transport the candidate belongs to.
type ICECandidate struct {
	Candidate  webrtc.ICECandidateInit `json:"candidate"`
	RoomID     string                  `json:"roomId"`
	Target     string                  `json:"target"`
	ProducerID string                  `json:"producerId,omitempty"`
	ConsumerID string                  `json:"consumerId,omitempty"`
	UserID     string                  `json:"userId"`
}

type ProducerNotice struct {
	ChannelID     string `json:"channelId"`
	ProducerID    string `json:"producerId"`
	ParticipantID string `json:"participantId"`
	Kind          Kind   `json:"kind"`
}

type ConsumerAnswer struct {
	ChannelID     string                    `json:"channelId"`
	ConsumerID    string                    `json:"consumerId"`
	ProducerID    string                    `json:"producerId"`
	ParticipantID string                    `json:"participantId"`
	Kind          Kind                      `json:"kind"`
	SDP           webrtc.SessionDescription `json:"sdp"`
}

type ConsumerNotice struct {
	ChannelID  string `json:"channelId"`
	ConsumerID string `json:"consumerId"`
	ProducerID string `json:"producerId"`
}

// Snapshot is a copy of one room's state.
type Snapshot struct {
	Producers    []Producer
	Consumers    []Consumer
	Participants []string
}
