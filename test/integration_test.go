package test

import (
	"chat-relay/envelope"
	"chat-relay/event"
	"chat-relay/mocks"
	"chat-relay/moderation"
	"chat-relay/receipts"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/storage"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// Test_Scenario drives the chat service against real stores: a badger
// backed queue drained by the worker pool into SQLite.
func Test_Scenario(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := require.New(t)
	// Reduced to 16 Mo for testing
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	defer func() { _ = db.Close() }()

	sqlDB, err := receipts.OpenSQLite(filepath.Join(t.TempDir(), "receipts.db"))
	req.NoError(err)
	defer func() { _ = sqlDB.Close() }()
	receiptStore, err := receipts.NewSQLStore(ctx, sqlDB)
	req.NoError(err)

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	codec, err := envelope.NewCodec("000102030405060708090a0b0c0d0e0f")
	req.NoError(err)
	moderator, err := moderation.NewModerator([]string{"badger"}, '*', log)
	req.NoError(err)

	queue := storage.NewJobQueue(db, log, storage.QueueConfig{MaxAttempts: 3, BaseBackoff: 10 * time.Millisecond})
	rooms := runtime.NewRegistry(log)
	chat := services.NewChatService(log,
		storage.NewMessageStore(db, codec, log, 50),
		storage.NewConversationStore(db, log),
		rooms, queue, moderator)

	// 1. Bob is online and receives what alice sends
	ctrl := gomock.NewController(t)
	bob := mocks.NewMockEventSink(ctrl)
	received := make(chan storage.Message, 1)
	bob.EXPECT().Emit(string(event.NewMessageEvent), gomock.Any()).
		DoAndReturn(func(_ string, data any) error {
			received <- data.(storage.Message)
			return nil
		})
	bob.EXPECT().Emit(string(event.ParticipantJoinedEvent), gomock.Any()).Return(nil)
	bob.EXPECT().Emit(string(event.ConversationCreatedEvent), gomock.Any()).Return(nil)
	rooms.Register("bob", "bob-conn", bob)
	rooms.Join("bob", "general")

	// 2. The pool drains the queue while the scenario runs
	sup := workers.NewSupervisor(log)
	pool := workers.NewPool(2, queue, receipts.NewProcessor(log, receiptStore), 20*time.Millisecond, log)
	supervisorDone := make(chan struct{})
	go func() {
		sup.Add(pool...).Run(ctx)
		close(supervisorDone)
	}()

	// 3. Alice joins and talks, the blacklisted word never reaches bob
	chat.JoinChannel("alice", "general")
	_, err = chat.SendMessage(ctx, "alice", event.SendMessage{TargetKind: event.Channel, TargetID: "general", Content: "a badger in general"})
	req.NoError(err)
	select {
	case msg := <-received:
		req.Equal("a ****** in general", msg.Content)
		req.Equal("alice", msg.AuthorID)
	case <-time.After(5 * time.Second):
		req.Fail("bob never received the message")
	}

	// 4. Read markers only exist once a worker processed the job
	req.NoError(chat.MarkChannelRead(ctx, "alice", event.MarkChannelRead{ChannelID: "general"}))
	conv, err := chat.CreateConversation(ctx, "alice", event.CreateConversation{MemberID: "bob"})
	req.NoError(err)
	page, err := chat.FetchConversation(ctx, "alice", event.FetchConversation{ConversationID: conv.ID})
	req.NoError(err)
	req.Equal(conv.ID, page.Conversation.ID)

	req.Eventually(func() bool {
		reads, err := receiptStore.ChannelReads(ctx, "alice", "general")
		if err != nil || len(reads) != 1 {
			return false
		}
		_, err = receiptStore.ConversationRead(ctx, "alice", conv.ID)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	pending, err := queue.Pending(ctx)
	req.NoError(err)
	req.Zero(pending)

	cancel()
	<-supervisorDone
}
