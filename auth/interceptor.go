package auth

import (
	"chat-relay/errors"
	"context"
	"encoding/base64"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// UnaryInterceptor applies the signed-request check to gRPC calls. Metadata
// carries the same headers as HTTP; url is the full method name and body is
// the base64 of the deterministic protobuf encoding of the request.
func UnaryInterceptor(a *Authenticator, publicMethods ...string) grpc.UnaryServerInterceptor {
	public := make(map[string]struct{}, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = struct{}{}
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := public[info.FullMethod]; ok {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "metadata is missing")
		}

		body, err := grpcBody(req)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "request cannot be encoded")
		}

		signed := SignedRequest{
			ClientID:  first(md, HeaderClientID),
			Nonce:     first(md, HeaderNonce),
			Signature: first(md, HeaderSignature),
			Timestamp: first(md, HeaderTimestamp),
			RequestID: first(md, HeaderRequestID),
			UserAgent: first(md, HeaderUserAgent),
			ClientIP:  ClientIP(first(md, HeaderForwardedFor), peerAddr(ctx)),
			Method:    "POST",
			URL:       info.FullMethod,
			Body:      body,
		}
		if err := a.Authenticate(ctx, signed); err != nil {
			if errors.Is(err, errors.ErrValidation) {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		return handler(context.WithValue(ctx, ClientIDKey, signed.ClientID), req)
	}
}

// GRPCBody is the body string a client signs for a gRPC request.
func GRPCBody(req proto.Message) (string, error) {
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func grpcBody(req any) ([]byte, error) {
	msg, ok := req.(proto.Message)
	if !ok || msg == nil {
		return nil, nil
	}
	s, err := GRPCBody(msg)
	return []byte(s), err
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}
