package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalString(t *testing.T) {
	base := SignedRequest{
		URL:       "/api/channels/c1/messages?limit=10",
		Nonce:     "n1",
		ClientIP:  "10.0.0.1",
		Timestamp: "1700000000",
		RequestID: "r1",
		UserAgent: "ua/1",
	}

	t.Run("should embed a JSON body compacted and keep the key order", func(t *testing.T) {
		req := require.New(t)
		r := base
		r.Body = []byte("{ \"a\" : 1,\n \"b\": [true, null] }")
		s, err := CanonicalString(r)
		req.NoError(err)
		req.Equal(`{"url":"/api/channels/c1/messages?limit=10","body":{"a":1,"b":[true,null]},"nonce":"n1","clientIp":"10.0.0.1","timestamp":"1700000000","requestId":"r1","userAgent":"ua/1"}`, s)
	})

	t.Run("should render an empty body as an empty object", func(t *testing.T) {
		req := require.New(t)
		s, err := CanonicalString(base)
		req.NoError(err)
		req.Contains(s, `"body":{},`)
	})

	t.Run("should embed a non JSON body as an unescaped string", func(t *testing.T) {
		req := require.New(t)
		r := base
		r.Body = []byte("a<b & c")
		s, err := CanonicalString(r)
		req.NoError(err)
		req.Contains(s, `"body":"a<b & c",`)
	})

	t.Run("should produce distinct signatures per algorithm", func(t *testing.T) {
		req := require.New(t)
		s256, err := Sign(base, "k", HMACSHA256)
		req.NoError(err)
		s512, err := Sign(base, "k", HMACSHA512)
		req.NoError(err)
		req.Len(s256, 64)
		req.Len(s512, 128)
	})
}

func TestParseAlgorithm(t *testing.T) {
	req := require.New(t)
	a, err := ParseAlgorithm("SHA512")
	req.NoError(err)
	req.Equal(HMACSHA512, a)

	_, err = ParseAlgorithm("md5")
	req.Error(err)
}
