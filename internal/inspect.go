package internal

import (
	"strconv"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// InspectMapper labels relay keys for the badger debug inspector. Message
// content is sealed at rest, so only sizes are shown for it.
func InspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	size := "Size: " + strconv.Itoa(len(val)) + " bytes"

	switch {
	case strings.HasPrefix(key, "msg:"):
		row.Type = "MESSAGE"
		// msg:{kind}:{len}:{target}:...
		parts := strings.SplitN(key, ":", 4)
		if len(parts) == 4 {
			if n, err := strconv.Atoi(parts[2]); err == nil && n <= len(parts[3]) {
				row.Detail = parts[1] + " " + parts[3][:n] + " | " + size
			}
		}
	case strings.HasPrefix(key, "conv-pair:"):
		row.Type = "CONVERSATION_PAIR"
		row.Detail = string(val)
	case strings.HasPrefix(key, "conv:"):
		row.Type = "CONVERSATION"
		row.Detail = size
	case strings.HasPrefix(key, "jobs:"):
		state, _, _ := strings.Cut(strings.TrimPrefix(key, "jobs:"), ":")
		row.Type = "JOB_" + strings.ToUpper(state)
		row.Detail = size
	case strings.HasPrefix(key, "blacklist:"):
		row.Type = "BLACKLIST"
		row.Detail = strings.TrimPrefix(key, "blacklist:")
	case strings.HasPrefix(key, "cache:"):
		row.Type = "CACHE"
		// Nonces and client secrets live in the cache; never echo a secret
		row.Detail = size
	}
	return row
}
