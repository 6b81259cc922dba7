package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInspectMapper(t *testing.T) {
	t.Run("should label relay keys", func(t *testing.T) {
		req := require.New(t)

		row := InspectMapper("msg:channel:7:general:0000000000000000042:5b1c", []byte("sealed"))
		req.Equal("MESSAGE", row.Type)
		req.Equal("channel general | Size: 6 bytes", row.Detail)

		row = InspectMapper("msg:channel:6:room:1:0000000000000000042:5b1c", []byte("sealed"))
		req.Equal("channel room:1 | Size: 6 bytes", row.Detail)

		row = InspectMapper("conv-pair:alice:bob", []byte("conv-1"))
		req.Equal("CONVERSATION_PAIR", row.Type)
		req.Equal("conv-1", row.Detail)

		row = InspectMapper("jobs:dead:0000000000000000001:job-1", []byte("x"))
		req.Equal("JOB_DEAD", row.Type)

		row = InspectMapper("blacklist:badger", nil)
		req.Equal("BLACKLIST", row.Type)
		req.Equal("badger", row.Detail)
	})

	t.Run("should never show cached secrets", func(t *testing.T) {
		req := require.New(t)
		row := InspectMapper("cache:client-secret:web", []byte("top-secret"))
		req.Equal("CACHE", row.Type)
		req.NotContains(row.Detail, "top-secret")
	})
}
