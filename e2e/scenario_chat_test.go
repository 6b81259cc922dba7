package e2e

import (
	"chat-relay/event"
	"chat-relay/services"
	"chat-relay/storage"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const wait = 10 * time.Second

type chatScenarioSuite struct {
	BaseRelaySuite
}

func TestChatScenarioSuite(t *testing.T) {
	suite.Run(t, &chatScenarioSuite{})
}

func (s *chatScenarioSuite) TestHealth() {
	s.Step("Signed gRPC health check")
	conn := s.GrpcConn()
	defer func() { _ = conn.Close() }()

	msg := &healthpb.HealthCheckRequest{}
	ctx, err := s.Client.SignGRPC(context.Background(), healthpb.Health_Check_FullMethodName, msg)
	s.Require().NoError(err)
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, msg)
	s.Require().NoError(err)
	s.Require().Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func (s *chatScenarioSuite) TestChannelAndConversation() {
	// Unique names keep reruns against the same relay independent
	channelID := "e2e-" + uuid.NewString()[:8]
	alice, bob := "alice-"+channelID, "bob-"+channelID
	aliceSession, bobSession := s.Connect(alice), s.Connect(bob)

	s.Run("Step 1: both join the channel", func() {
		s.Require().NoError(aliceSession.Send(event.JoinChannelEvent, event.JoinChannel{ChannelID: channelID}))
		_, err := aliceSession.Expect(string(event.AckEvent), wait)
		s.Require().NoError(err)
		s.Require().NoError(bobSession.Send(event.JoinChannelEvent, event.JoinChannel{ChannelID: channelID}))
		_, err = bobSession.Expect(string(event.AckEvent), wait)
		s.Require().NoError(err)
	})

	s.Run("Step 2: a channel message reaches the other member", func() {
		s.Require().NoError(aliceSession.Send(event.SendMessageEvent, event.SendMessage{
			TargetKind: event.Channel, TargetID: channelID, Content: "hello from e2e",
		}))
		msg, err := bobSession.Expect(string(event.NewMessageEvent), wait)
		s.Require().NoError(err)
		var m storage.Message
		s.Require().NoError(msg.Decode(&m))
		s.Require().Equal(alice, m.AuthorID)
		s.Require().Equal("hello from e2e", m.Content)
	})

	s.Run("Step 3: channel history is served over signed HTTP", func() {
		resp, err := s.Client.Do(context.Background(), http.MethodGet, fmt.Sprintf("/api/channels/%s/messages?limit=10", channelID), nil)
		s.Require().NoError(err)
		defer func() { _ = resp.Body.Close() }()
		s.Require().Equal(http.StatusOK, resp.StatusCode)

		var page services.MessagePage
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&page))
		s.Require().NotEmpty(page.Messages)
	})

	s.Run("Step 4: a conversation is created once and read", func() {
		s.Require().NoError(aliceSession.Send(event.CreateConversationEvent, event.CreateConversation{MemberID: bob}))
		msg, err := aliceSession.Expect(string(event.ConversationCreatedEvent), wait)
		s.Require().NoError(err)
		var conv storage.Conversation
		s.Require().NoError(msg.Decode(&conv))

		_, err = bobSession.Expect(string(event.ConversationCreatedEvent), wait)
		s.Require().NoError(err)

		s.Require().NoError(bobSession.Send(event.FetchConversationEvent, event.FetchConversation{ConversationID: conv.ID}))
		msg, err = bobSession.Expect(string(event.ConversationEvent), wait)
		s.Require().NoError(err)
		var page services.ConversationPage
		s.Require().NoError(msg.Decode(&page))
		s.Require().Equal(conv.ID, page.Conversation.ID)
	})
}
