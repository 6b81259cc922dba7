package services

import (
	"chat-relay/errors"
	"chat-relay/event"
	"chat-relay/moderation"
	"chat-relay/receipts"
	"chat-relay/runtime"
	"chat-relay/storage"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type IChatService interface {
	SendMessage(ctx context.Context, authorID string, ev event.SendMessage) (storage.Message, error)
	MarkChannelRead(ctx context.Context, memberID string, ev event.MarkChannelRead) error
	FetchConversation(ctx context.Context, memberID string, ev event.FetchConversation) (ConversationPage, error)
	CreateConversation(ctx context.Context, memberID string, ev event.CreateConversation) (storage.Conversation, error)
	FetchMessages(ctx context.Context, memberID string, ev event.FetchMessages) (MessagePage, error)
	JoinChannel(memberID, channelID string)
	LeaveChannel(memberID, channelID string)
}

type MessagePage struct {
	TargetKind event.TargetKind  `json:"targetKind"`
	TargetID   string            `json:"targetId"`
	Messages   []storage.Message `json:"messages"`
	Cursor     string            `json:"cursor,omitempty"`
}

type ConversationPage struct {
	Conversation storage.Conversation `json:"conversation"`
	Messages     []storage.Message    `json:"messages"`
	Cursor       string               `json:"cursor,omitempty"`
}

type MemberEvent struct {
	ChannelID     string `json:"channelId"`
	ParticipantID string `json:"participantId"`
}

var _ IChatService = (*ChatService)(nil)

// ChatService handles the chat side of the real-time surface: messages,
// conversations and channel presence. Read markers are never written inline,
// they go through the read-receipt queue.
type ChatService struct {
	log           *slog.Logger
	messages      MessageRepository
	conversations ConversationRepository
	rooms         *runtime.Registry
	queue         receipts.Queue
	moderator     *moderation.Moderator
	now           func() time.Time
}

// NewChatService wires the service. moderator may be nil to disable
// censoring.
func NewChatService(
	log *slog.Logger,
	messages MessageRepository,
	conversations ConversationRepository,
	rooms *runtime.Registry,
	queue receipts.Queue,
	moderator *moderation.Moderator) *ChatService {
	return &ChatService{
		log:           log,
		messages:      messages,
		conversations: conversations,
		rooms:         rooms,
		queue:         queue,
		moderator:     moderator,
		now:           time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *ChatService) WithClock(now func() time.Time) *ChatService {
	s.now = now
	return s
}

// SendMessage stores the message and fans it out: to the channel's members,
// or to both members of the conversation.
func (s *ChatService) SendMessage(ctx context.Context, authorID string, ev event.SendMessage) (storage.Message, error) {
	var recipients []string
	switch ev.TargetKind {
	case event.Channel:
		if !s.rooms.IsMember(authorID, ev.TargetID) {
			return storage.Message{}, fmt.Errorf("%w: join channel %s first", errors.ErrNotAMember, ev.TargetID)
		}
	case event.Conversation:
		conv, err := s.member(ctx, authorID, ev.TargetID)
		if err != nil {
			return storage.Message{}, err
		}
		recipients = conv.MemberIDs
	default:
		return storage.Message{}, fmt.Errorf("%w: unknown target kind %q", errors.ErrValidation, ev.TargetKind)
	}

	content := ev.Content
	if s.moderator != nil {
		var words []string
		content, words = s.moderator.Censor(content)
		if len(words) > 0 {
			s.log.Info("Message censored", "author_id", authorID, "target_id", ev.TargetID, "matches", len(words))
		}
	}

	msg := storage.Message{
		ID:         uuid.New(),
		TargetKind: string(ev.TargetKind),
		TargetID:   ev.TargetID,
		AuthorID:   authorID,
		Content:    content,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.messages.Store(ctx, msg); err != nil {
		return storage.Message{}, err
	}

	if ev.TargetKind == event.Channel {
		s.rooms.Broadcast(ev.TargetID, string(event.NewMessageEvent), msg)
	} else {
		for _, id := range recipients {
			s.rooms.Notify(id, string(event.NewMessageEvent), msg)
		}
	}
	return msg, nil
}

func (s *ChatService) MarkChannelRead(ctx context.Context, memberID string, ev event.MarkChannelRead) error {
	task, err := receipts.Enqueue(ctx, s.queue, receipts.ChannelRead{
		MemberID:   memberID,
		ChannelID:  ev.ChannelID,
		LastReadAt: s.now().UTC(),
	})
	if err != nil {
		return err
	}
	s.log.Debug("Channel read enqueued", "job_id", task.ID, "member_id", memberID, "channel_id", ev.ChannelID)
	return nil
}

// FetchConversation returns the latest page of a conversation and records
// the read. A failed enqueue is logged, the page is still returned.
func (s *ChatService) FetchConversation(ctx context.Context, memberID string, ev event.FetchConversation) (ConversationPage, error) {
	conv, err := s.member(ctx, memberID, ev.ConversationID)
	if err != nil {
		return ConversationPage{}, err
	}
	messages, cursor, err := s.messages.List(ctx, string(event.Conversation), conv.ID, "", ev.Limit)
	if err != nil {
		return ConversationPage{}, err
	}

	_, err = receipts.Enqueue(ctx, s.queue, receipts.ConversationRead{
		MemberID:       memberID,
		ConversationID: conv.ID,
		LastReadAt:     s.now().UTC(),
	})
	if err != nil {
		s.log.Error("Unable to enqueue conversation read", "member_id", memberID, "conversation_id", conv.ID, "error", err)
	}
	return ConversationPage{Conversation: conv, Messages: messages, Cursor: cursor}, nil
}

// CreateConversation is idempotent: the pair's existing conversation is
// returned. The other member hears about it only on creation.
func (s *ChatService) CreateConversation(ctx context.Context, memberID string, ev event.CreateConversation) (storage.Conversation, error) {
	conv, created, err := s.conversations.GetOrCreate(ctx, memberID, ev.MemberID)
	if err != nil {
		return storage.Conversation{}, err
	}
	if created {
		s.log.Info("Conversation created", "conversation_id", conv.ID)
		s.rooms.Notify(ev.MemberID, string(event.ConversationCreatedEvent), conv)
	}
	return conv, nil
}

func (s *ChatService) FetchMessages(ctx context.Context, memberID string, ev event.FetchMessages) (MessagePage, error) {
	switch ev.TargetKind {
	case event.Channel:
		if !s.rooms.IsMember(memberID, ev.TargetID) {
			return MessagePage{}, fmt.Errorf("%w: join channel %s first", errors.ErrNotAMember, ev.TargetID)
		}
	case event.Conversation:
		if _, err := s.member(ctx, memberID, ev.TargetID); err != nil {
			return MessagePage{}, err
		}
	default:
		return MessagePage{}, fmt.Errorf("%w: unknown target kind %q", errors.ErrValidation, ev.TargetKind)
	}

	messages, cursor, err := s.messages.List(ctx, string(ev.TargetKind), ev.TargetID, ev.Cursor, ev.Limit)
	if err != nil {
		return MessagePage{}, err
	}
	return MessagePage{TargetKind: ev.TargetKind, TargetID: ev.TargetID, Messages: messages, Cursor: cursor}, nil
}

// ChannelHistory serves the signed HTTP endpoint, where the caller is a
// trusted client rather than a member.
func (s *ChatService) ChannelHistory(ctx context.Context, channelID, cursor string, limit int) (MessagePage, error) {
	messages, next, err := s.messages.List(ctx, string(event.Channel), channelID, cursor, limit)
	if err != nil {
		return MessagePage{}, err
	}
	return MessagePage{TargetKind: event.Channel, TargetID: channelID, Messages: messages, Cursor: next}, nil
}

func (s *ChatService) JoinChannel(memberID, channelID string) {
	if s.rooms.IsMember(memberID, channelID) {
		return
	}
	s.rooms.Join(memberID, channelID)
	s.rooms.Broadcast(channelID, string(event.ParticipantJoinedEvent), MemberEvent{ChannelID: channelID, ParticipantID: memberID}, memberID)
}

func (s *ChatService) LeaveChannel(memberID, channelID string) {
	if !s.rooms.IsMember(memberID, channelID) {
		return
	}
	s.rooms.Leave(memberID, channelID)
	s.rooms.Broadcast(channelID, string(event.ParticipantLeftEvent), MemberEvent{ChannelID: channelID, ParticipantID: memberID})
}

func (s *ChatService) member(ctx context.Context, memberID, conversationID string) (storage.Conversation, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return storage.Conversation{}, err
	}
	if !conv.HasMember(memberID) {
		return storage.Conversation{}, errors.ErrNotAMember
	}
	return conv, nil
}
