package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"strings"
)

type Algorithm string

const (
	HMACSHA256 Algorithm = "sha256"
	HMACSHA512 Algorithm = "sha512"
)

func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(s)) {
	case HMACSHA256:
		return HMACSHA256, nil
	case HMACSHA512:
		return HMACSHA512, nil
	}
	return "", fmt.Errorf("unsupported signature algorithm %q", s)
}

func (a Algorithm) hash() func() hash.Hash {
	if a == HMACSHA512 {
		return sha512.New
	}
	return sha256.New
}

// canonicalRequest fixes the key order of the signing string. The order is
// part of the wire contract: url, body, nonce, clientIp, timestamp,
// requestId, userAgent.
type canonicalRequest struct {
	URL       string          `json:"url"`
	Body      json.RawMessage `json:"body"`
	Nonce     string          `json:"nonce"`
	ClientIP  string          `json:"clientIp"`
	Timestamp string          `json:"timestamp"`
	RequestID string          `json:"requestId"`
	UserAgent string          `json:"userAgent"`
}

// CanonicalString renders the signing string of a request.
func CanonicalString(r SignedRequest) (string, error) {
	body, err := canonicalBody(r.Body)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err = enc.Encode(canonicalRequest{
		URL:       r.URL,
		Body:      body,
		Nonce:     r.Nonce,
		ClientIP:  r.ClientIP,
		Timestamp: r.Timestamp,
		RequestID: r.RequestID,
		UserAgent: r.UserAgent,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// canonicalBody embeds JSON bodies as-is (compacted), anything else as a
// JSON string, and an empty body as {}.
func canonicalBody(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return json.RawMessage("{}"), nil
	}
	if json.Valid(trimmed) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(string(body)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Sign computes the hex HMAC a client must send in x-signature.
func Sign(r SignedRequest, secret string, algo Algorithm) (string, error) {
	canonical, err := CanonicalString(r)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(mac(canonical, secret, algo)), nil
}

func mac(canonical, secret string, algo Algorithm) []byte {
	h := hmac.New(algo.hash(), []byte(secret))
	h.Write([]byte(canonical))
	return h.Sum(nil)
}
