package event

import (
	"chat-relay/signaling"

	"github.com/pion/webrtc/v4"
)

type Name string

const (
	SendMessageEvent               Name = "sendMessage"
	MarkChannelReadEvent           Name = "markChannelRead"
	FetchConversationEvent         Name = "fetchConversation"
	CreateConversationEvent        Name = "createConversation"
	FetchMessagesEvent             Name = "fetchMessages"
	JoinChannelEvent               Name = "joinChannel"
	LeaveChannelEvent              Name = "leaveChannel"
	CreateProducerEvent            Name = "createProducer"
	CreateConsumerForProducerEvent Name = "createConsumerForProducer"
	ConsumerConnectedEvent         Name = "consumerConnected"
	FetchProducersEvent            Name = "fetchProducers"
	IceCandidateEvent              Name = "iceCandidate"
	PeerDisconnectedEvent          Name = "peerDisconnected"

	// ErrorEvent is the only outbound event whose data is not encrypted.
	ErrorEvent Name = "error"
)

// Outbound replies and broadcasts. Signaling notifications are named by the
// signaling package.
const (
	NewMessageEvent          Name = "newMessage"
	MessagesEvent            Name = "messages"
	ConversationEvent        Name = "conversation"
	ConversationCreatedEvent Name = "conversationCreated"
	ParticipantJoinedEvent   Name = "participantJoined"
	ParticipantLeftEvent     Name = "participantLeft"
	ProducerCreatedEvent     Name = "producerCreated"
	ConsumerCreatedEvent     Name = "consumerCreated"
	ProducersEvent           Name = "producers"
	AckEvent                 Name = "ack"
)

// Event is one validated inbound payload. Each variant carries only the
// fields of its kind.
type Event interface {
	Name() Name
}

type TargetKind string

const (
	Channel      TargetKind = "channel"
	Conversation TargetKind = "conversation"
)

type SendMessage struct {
	TargetKind TargetKind `json:"targetKind"`
	TargetID   string     `json:"targetId"`
	Content    string     `json:"content"`
}

type MarkChannelRead struct {
	ChannelID string `json:"channelId"`
}

type FetchConversation struct {
	ConversationID string `json:"conversationId"`
	Limit          int    `json:"limit"`
}

type CreateConversation struct {
	MemberID string `json:"memberId"`
}

type FetchMessages struct {
	TargetKind TargetKind `json:"targetKind"`
	TargetID   string     `json:"targetId"`
	Cursor     string     `json:"cursor"`
	Limit      int        `json:"limit"`
}

type JoinChannel struct {
	ChannelID string `json:"channelId"`
}

type LeaveChannel struct {
	ChannelID string `json:"channelId"`
}

type CreateProducer struct {
	ChannelID string                    `json:"channelId"`
	SDP       webrtc.SessionDescription `json:"sdp"`
	Kind      signaling.Kind            `json:"kind"`
}

type CreateConsumerForProducer struct {
	ChannelID string                    `json:"channelId"`
	SDP       webrtc.SessionDescription `json:"sdp"`
	// ParticipantID is the producer's owner.
	ParticipantID string         `json:"participantId"`
	Kind          signaling.Kind `json:"kind"`
	ProducerID    string         `json:"producerId"`
}

type ConsumerConnected struct {
	ChannelID  string `json:"channelId"`
	ConsumerID string `json:"consumerId"`
}

type FetchProducers struct {
	ChannelID string `json:"channelId"`
}

type IceCandidate struct {
	Candidate  webrtc.ICECandidateInit `json:"candidate"`
	RoomID     string                  `json:"roomId"`
	Target     string                  `json:"target"`
	ProducerID string                  `json:"producerId,omitempty"`
	ConsumerID string                  `json:"consumerId,omitempty"`
	UserID     string                  `json:"userId"`
}

type PeerDisconnected struct {
	ChannelID  string         `json:"channelId"`
	ProducerID string         `json:"producerId"`
	Kind       signaling.Kind `json:"kind"`
}

func (SendMessage) Name() Name               { return SendMessageEvent }
func (MarkChannelRead) Name() Name           { return MarkChannelReadEvent }
func (FetchConversation) Name() Name         { return FetchConversationEvent }
func (CreateConversation) Name() Name        { return CreateConversationEvent }
func (FetchMessages) Name() Name             { return FetchMessagesEvent }
func (JoinChannel) Name() Name               { return JoinChannelEvent }
func (LeaveChannel) Name() Name              { return LeaveChannelEvent }
func (CreateProducer) Name() Name            { return CreateProducerEvent }
func (CreateConsumerForProducer) Name() Name { return CreateConsumerForProducerEvent }
func (ConsumerConnected) Name() Name         { return ConsumerConnectedEvent }
func (FetchProducers) Name() Name            { return FetchProducersEvent }
func (IceCandidate) Name() Name              { return IceCandidateEvent }
func (PeerDisconnected) Name() Name          { return PeerDisconnectedEvent }

// variants maps each inbound name to a constructor of its zero payload.
var variants = map[Name]func() Event{
	SendMessageEvent:               func() Event { return &SendMessage{} },
	MarkChannelReadEvent:           func() Event { return &MarkChannelRead{} },
	FetchConversationEvent:         func() Event { return &FetchConversation{} },
	CreateConversationEvent:        func() Event { return &CreateConversation{} },
	FetchMessagesEvent:             func() Event { return &FetchMessages{} },
	JoinChannelEvent:               func() Event { return &JoinChannel{} },
	LeaveChannelEvent:              func() Event { return &LeaveChannel{} },
	CreateProducerEvent:            func() Event { return &CreateProducer{} },
	CreateConsumerForProducerEvent: func() Event { return &CreateConsumerForProducer{} },
	ConsumerConnectedEvent:         func() Event { return &ConsumerConnected{} },
	FetchProducersEvent:            func() Event { return &FetchProducers{} },
	IceCandidateEvent:              func() Event { return &IceCandidate{} },
	PeerDisconnectedEvent:          func() Event { return &PeerDisconnected{} },
}
