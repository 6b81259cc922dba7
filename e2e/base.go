package e2e

import (
	"chat-relay/auth"
	"chat-relay/client"
	"chat-relay/envelope"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

type BaseRelaySuite struct {
	suite.Suite
	Config Config
	Client *client.Client
	tokens *auth.JWTProvider
}

// SetupSuite loads the environment configuration before running tests.
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayURL == "" {
		s.T().Skip("RELAY_URL is not set")
	}

	codec, err := envelope.NewCodec(s.Config.EncryptionKey)
	s.Require().NoError(err)
	s.Client = client.New(client.Config{
		BaseURL:  s.Config.RelayURL,
		ClientID: s.Config.ClientID,
		Secret:   s.Config.ClientSecret,
	}, codec)
	s.tokens = auth.NewJWTProvider(s.Config.JWTSecret, s.Config.JWTIssuer)
}

// Step prints a header for a scenario step.
func (s *BaseRelaySuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Connect opens a session as subject, closed with the test.
func (s *BaseRelaySuite) Connect(subject string) *client.Session {
	token, err := s.tokens.Issue(subject, nil, time.Hour)
	s.Require().NoError(err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	session, _, err := s.Client.Dial(ctx, token)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = session.Close() })
	return session
}

// GrpcConn dials the relay's gRPC port and logs every call.
func (s *BaseRelaySuite) GrpcConn() *grpc.ClientConn {
	marshaler := protojson.MarshalOptions{
		UseProtoNames:   true,
		Multiline:       true,
		EmitUnpopulated: true,
	}

	conn, err := grpc.NewClient(s.Config.GRPCAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		s.Client.GRPCDialOption(),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, marshaler.Format(req.(proto.Message)))
				if err != nil {
					fmt.Fprintln(&logBuilder, "ERROR:", err)
				} else {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
				}
			}
			s.T().Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GRPCAddr)
	return conn
}
