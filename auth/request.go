package auth

import (
	"net"
	"net/http"
	"strings"
)

// Header names of the signed-request protocol.
const (
	HeaderClientID     = "x-client-id"
	HeaderNonce        = "x-request-nonce"
	HeaderSignature    = "x-signature"
	HeaderTimestamp    = "x-timestamp"
	HeaderRequestID    = "x-request-id"
	HeaderUserAgent    = "user-agent"
	HeaderForwardedFor = "x-forwarded-for"
)

// SignedRequest is everything the authenticator needs from one request.
type SignedRequest struct {
	ClientID  string `validate:"required"`
	Nonce     string `validate:"required,len=64,alphanum"`
	Signature string `validate:"required,hexadecimal"`
	Timestamp string `validate:"required,number"`
	RequestID string `validate:"required,uuid4"`
	UserAgent string `validate:"required"`
	ClientIP  string `validate:"required"`
	Method    string `validate:"required"`
	URL       string `validate:"required"`
	Body      []byte
}

// FromHTTPRequest collects the signed-request fields. body must be the bytes
// already read from r.Body.
func FromHTTPRequest(r *http.Request, body []byte) SignedRequest {
	return SignedRequest{
		ClientID:  r.Header.Get(HeaderClientID),
		Nonce:     r.Header.Get(HeaderNonce),
		Signature: r.Header.Get(HeaderSignature),
		Timestamp: r.Header.Get(HeaderTimestamp),
		RequestID: r.Header.Get(HeaderRequestID),
		UserAgent: r.Header.Get(HeaderUserAgent),
		ClientIP:  ClientIP(r.Header.Get(HeaderForwardedFor), r.RemoteAddr),
		Method:    r.Method,
		URL:       r.URL.RequestURI(),
		Body:      body,
	}
}

// ClientIP prefers the first hop of x-forwarded-for, then the socket address.
func ClientIP(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
