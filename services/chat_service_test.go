package services

import (
	"chat-relay/errors"
	"chat-relay/event"
	"chat-relay/mocks"
	"chat-relay/moderation"
	"chat-relay/receipts"
	"chat-relay/runtime"
	"chat-relay/storage"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	svc           *ChatService
	rooms         *runtime.Registry
	messages      *mocks.MockMessageRepository
	conversations *mocks.MockConversationRepository
	queue         *mocks.MockQueue
	ctrl          *gomock.Controller
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := slog.New(slog.DiscardHandler)
	mod, err := moderation.NewModerator([]string{"badger"}, '*', log)
	require.NoError(t, err)

	f := fixture{
		rooms:         runtime.NewRegistry(log),
		messages:      mocks.NewMockMessageRepository(ctrl),
		conversations: mocks.NewMockConversationRepository(ctrl),
		queue:         mocks.NewMockQueue(ctrl),
		ctrl:          ctrl,
	}
	f.svc = NewChatService(log, f.messages, f.conversations, f.rooms, f.queue, mod).
		WithClock(func() time.Time { return fixedNow })
	return f
}

func (f fixture) connect(participantID string) *mocks.MockEventSink {
	sink := mocks.NewMockEventSink(f.ctrl)
	f.rooms.Register(participantID, participantID+"-conn", sink)
	return sink
}

func TestChatService_SendMessage(t *testing.T) {
	ctx := context.Background()
	conv := storage.Conversation{ID: "conv-1", MemberIDs: []string{"alice", "bob"}}

	t.Run("should store, censor and broadcast channel messages", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		alice, bob := f.connect("alice"), f.connect("bob")
		bob.EXPECT().Emit(string(event.ParticipantJoinedEvent), gomock.Any()).Return(nil)
		f.svc.JoinChannel("bob", "general")
		f.svc.JoinChannel("alice", "general")

		f.messages.EXPECT().Store(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, m storage.Message) error {
				req.Equal("the ****** bites", m.Content)
				return nil
			})
		alice.EXPECT().Emit(string(event.NewMessageEvent), gomock.Any()).Return(nil)
		bob.EXPECT().Emit(string(event.NewMessageEvent), gomock.Any()).Return(nil)

		msg, err := f.svc.SendMessage(ctx, "alice", event.SendMessage{TargetKind: event.Channel, TargetID: "general", Content: "the badger bites"})
		req.NoError(err)
		req.Equal("alice", msg.AuthorID)
		req.Equal(fixedNow, msg.CreatedAt)
	})

	t.Run("should refuse channels the author did not join", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		_, err := f.svc.SendMessage(ctx, "alice", event.SendMessage{TargetKind: event.Channel, TargetID: "general", Content: "hi"})
		req.ErrorIs(err, errors.ErrNotAMember)
	})

	t.Run("should notify both conversation members", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		alice, bob := f.connect("alice"), f.connect("bob")

		f.conversations.EXPECT().Get(gomock.Any(), "conv-1").Return(conv, nil)
		f.messages.EXPECT().Store(gomock.Any(), gomock.Any()).Return(nil)
		alice.EXPECT().Emit(string(event.NewMessageEvent), gomock.Any()).Return(nil)
		bob.EXPECT().Emit(string(event.NewMessageEvent), gomock.Any()).Return(nil)

		_, err := f.svc.SendMessage(ctx, "alice", event.SendMessage{TargetKind: event.Conversation, TargetID: "conv-1", Content: "hello"})
		req.NoError(err)
	})

	t.Run("should keep outsiders out of conversations", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		f.conversations.EXPECT().Get(gomock.Any(), "conv-1").Return(conv, nil)
		f.messages.EXPECT().Store(gomock.Any(), gomock.Any()).Times(0)

		_, err := f.svc.SendMessage(ctx, "mallory", event.SendMessage{TargetKind: event.Conversation, TargetID: "conv-1", Content: "hello"})
		req.ErrorIs(err, errors.ErrNotAMember)
		req.Equal(401, errors.Classify(err).StatusCode)
	})

	t.Run("should not broadcast when the store fails", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.connect("alice")
		f.rooms.Join("alice", "general")
		boom := errors.New("badger closed")

		f.messages.EXPECT().Store(gomock.Any(), gomock.Any()).Return(boom)

		_, err := f.svc.SendMessage(ctx, "alice", event.SendMessage{TargetKind: event.Channel, TargetID: "general", Content: "hi"})
		req.ErrorIs(err, boom)
	})
}

func TestChatService_ReadReceipts(t *testing.T) {
	ctx := context.Background()

	t.Run("should enqueue a channel read", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		f.queue.EXPECT().Enqueue(gomock.Any(), receipts.KindChannelRead, gomock.Any()).
			DoAndReturn(func(_ context.Context, kind string, payload []byte) (storage.Task, error) {
				job, err := receipts.Decode(kind, payload)
				req.NoError(err)
				req.Equal(receipts.ChannelRead{MemberID: "alice", ChannelID: "general", LastReadAt: fixedNow}, job)
				return storage.Task{ID: "job-1"}, nil
			})

		req.NoError(f.svc.MarkChannelRead(ctx, "alice", event.MarkChannelRead{ChannelID: "general"}))
	})

	t.Run("should return the page and enqueue a conversation read", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		conv := storage.Conversation{ID: "conv-1", MemberIDs: []string{"alice", "bob"}}
		page := []storage.Message{{AuthorID: "bob", Content: "hey"}}

		f.conversations.EXPECT().Get(gomock.Any(), "conv-1").Return(conv, nil)
		f.messages.EXPECT().List(gomock.Any(), "conversation", "conv-1", "", 20).Return(page, "", nil)
		f.queue.EXPECT().Enqueue(gomock.Any(), receipts.KindConversationRead, gomock.Any()).Return(storage.Task{ID: "job-2"}, nil)

		got, err := f.svc.FetchConversation(ctx, "alice", event.FetchConversation{ConversationID: "conv-1", Limit: 20})
		req.NoError(err)
		req.Equal(page, got.Messages)
		req.Equal(conv, got.Conversation)
	})

	t.Run("should still answer when the queue is down", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		conv := storage.Conversation{ID: "conv-1", MemberIDs: []string{"alice", "bob"}}

		f.conversations.EXPECT().Get(gomock.Any(), "conv-1").Return(conv, nil)
		f.messages.EXPECT().List(gomock.Any(), "conversation", "conv-1", "", 0).Return(nil, "", nil)
		f.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any(), gomock.Any()).Return(storage.Task{}, errors.New("queue closed"))

		_, err := f.svc.FetchConversation(ctx, "alice", event.FetchConversation{ConversationID: "conv-1"})
		req.NoError(err)
	})

	t.Run("should report unknown conversations", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		f.conversations.EXPECT().Get(gomock.Any(), "missing").Return(storage.Conversation{}, errors.ErrConvNotFound)

		_, err := f.svc.FetchConversation(ctx, "alice", event.FetchConversation{ConversationID: "missing"})
		req.ErrorIs(err, errors.ErrNotFound)
	})
}

func TestChatService_CreateConversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	bob := f.connect("bob")
	conv := storage.Conversation{ID: "conv-1", MemberIDs: []string{"alice", "bob"}}

	gomock.InOrder(
		f.conversations.EXPECT().GetOrCreate(gomock.Any(), "alice", "bob").Return(conv, true, nil),
		f.conversations.EXPECT().GetOrCreate(gomock.Any(), "alice", "bob").Return(conv, false, nil),
	)
	// Only the creation is announced
	bob.EXPECT().Emit(string(event.ConversationCreatedEvent), conv).Return(nil).Times(1)

	got, err := f.svc.CreateConversation(ctx, "alice", event.CreateConversation{MemberID: "bob"})
	req.NoError(err)
	req.Equal("conv-1", got.ID)

	got, err = f.svc.CreateConversation(ctx, "alice", event.CreateConversation{MemberID: "bob"})
	req.NoError(err)
	req.Equal("conv-1", got.ID)
}

func TestChatService_FetchMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("should page through a joined channel", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.rooms.Join("alice", "general")

		f.messages.EXPECT().List(gomock.Any(), "channel", "general", "cursor-1", 10).Return(nil, "cursor-2", nil)

		page, err := f.svc.FetchMessages(ctx, "alice", event.FetchMessages{TargetKind: event.Channel, TargetID: "general", Cursor: "cursor-1", Limit: 10})
		req.NoError(err)
		req.Equal("cursor-2", page.Cursor)
	})

	t.Run("should refuse channels not joined", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		_, err := f.svc.FetchMessages(ctx, "alice", event.FetchMessages{TargetKind: event.Channel, TargetID: "general"})
		req.ErrorIs(err, errors.ErrNotAMember)
	})
}

func TestChatService_Presence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice := f.connect("alice")
	f.connect("bob")

	f.svc.JoinChannel("alice", "general")
	alice.EXPECT().Emit(string(event.ParticipantJoinedEvent), MemberEvent{ChannelID: "general", ParticipantID: "bob"}).Return(nil)
	f.svc.JoinChannel("bob", "general")
	// Joining twice is silent
	f.svc.JoinChannel("bob", "general")

	alice.EXPECT().Emit(string(event.ParticipantLeftEvent), MemberEvent{ChannelID: "general", ParticipantID: "bob"}).Return(nil)
	f.svc.LeaveChannel("bob", "general")
	f.svc.LeaveChannel("bob", "general")

	req.Equal([]string{"alice"}, f.rooms.Members("general"))
}
