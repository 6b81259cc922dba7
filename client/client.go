// Package client speaks the relay protocol from the caller's side: signed
// HTTP and gRPC requests, and an encrypted WebSocket session.
package client

import (
	"bytes"
	"chat-relay/auth"
	"chat-relay/envelope"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
)

type Config struct {
	BaseURL   string
	ClientID  string
	Secret    string
	Algorithm auth.Algorithm
	UserAgent string
	// ClientIP is sent as x-forwarded-for and signed as the client address.
	ClientIP string
	HTTP     *http.Client
}

type Client struct {
	cfg   Config
	codec *envelope.Codec
	now   func() time.Time
}

func New(cfg Config, codec *envelope.Codec) *Client {
	if cfg.Algorithm == "" {
		cfg.Algorithm = auth.HMACSHA256
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "chat-relay-client/1.0"
	}
	if cfg.ClientIP == "" {
		cfg.ClientIP = "127.0.0.1"
	}
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, codec: codec, now: time.Now}
}

// Sign returns the headers of a signed request. uri is the request target
// as the server sees it: path plus raw query.
func (c *Client) Sign(method, uri string, body []byte) (http.Header, error) {
	r, err := c.signed(c.cfg.UserAgent, method, uri, body)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set(auth.HeaderClientID, r.ClientID)
	h.Set(auth.HeaderNonce, r.Nonce)
	h.Set(auth.HeaderSignature, r.Signature)
	h.Set(auth.HeaderTimestamp, r.Timestamp)
	h.Set(auth.HeaderRequestID, r.RequestID)
	h.Set(auth.HeaderUserAgent, r.UserAgent)
	h.Set(auth.HeaderForwardedFor, r.ClientIP)
	return h, nil
}

func (c *Client) signed(userAgent, method, uri string, body []byte) (auth.SignedRequest, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return auth.SignedRequest{}, err
	}
	r := auth.SignedRequest{
		ClientID:  c.cfg.ClientID,
		Nonce:     hex.EncodeToString(nonce),
		Timestamp: strconv.FormatInt(c.now().Unix(), 10),
		RequestID: uuid.NewString(),
		UserAgent: userAgent,
		ClientIP:  c.cfg.ClientIP,
		Method:    method,
		URL:       uri,
		Body:      body,
	}
	sig, err := auth.Sign(r, c.cfg.Secret, c.cfg.Algorithm)
	if err != nil {
		return auth.SignedRequest{}, err
	}
	r.Signature = sig
	return r, nil
}

// Do sends a signed HTTP request.
func (c *Client) Do(ctx context.Context, method, uri string, body []byte) (*http.Response, error) {
	h, err := c.Sign(method, uri, body)
	if err != nil {
		return nil, err
	}
	r, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+uri, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range h {
		r.Header[k] = v
	}
	return c.cfg.HTTP.Do(r)
}

// Dial opens a session for the bearer of token. The response is returned
// on a failed handshake so callers can read the status.
func (c *Client) Dial(ctx context.Context, token string) (*Session, *http.Response, error) {
	h, err := c.Sign(http.MethodGet, "/ws", nil)
	if err != nil {
		return nil, nil, err
	}
	h.Set("Authorization", "Bearer "+token)

	url := "ws" + strings.TrimPrefix(c.cfg.BaseURL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, h)
	if err != nil {
		return nil, resp, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Session{ws: ws, codec: c.codec}, resp, nil
}

// GRPCDialOption must be used by connections carrying SignGRPC contexts:
// grpc-go appends its own product token to the user agent, and the
// signature covers the final value.
func (c *Client) GRPCDialOption() grpc.DialOption {
	return grpc.WithUserAgent(c.cfg.UserAgent)
}

// SignGRPC attaches the signed-request metadata for one unary call.
func (c *Client) SignGRPC(ctx context.Context, fullMethod string, req proto.Message) (context.Context, error) {
	body, err := auth.GRPCBody(req)
	if err != nil {
		return nil, err
	}
	r, err := c.signed(c.cfg.UserAgent+" grpc-go/"+grpc.Version, "POST", fullMethod, []byte(body))
	if err != nil {
		return nil, err
	}
	return metadata.AppendToOutgoingContext(ctx,
		auth.HeaderClientID, r.ClientID,
		auth.HeaderNonce, r.Nonce,
		auth.HeaderSignature, r.Signature,
		auth.HeaderTimestamp, r.Timestamp,
		auth.HeaderRequestID, r.RequestID,
		auth.HeaderForwardedFor, r.ClientIP,
	), nil
}
