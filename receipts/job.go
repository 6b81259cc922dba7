package receipts

import (
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	KindChannelRead      = "channel-read"
	KindConversationRead = "conversation-read"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Job is a read-receipt unit of work. ChannelRead and ConversationRead are the
// only variants and carry different persistence policies.
type Job interface {
	Kind() string
}

// ChannelRead appends a read marker. Several markers per member and channel
// are expected.
type ChannelRead struct {
	MemberID   string    `json:"memberId" validate:"required"`
	ChannelID  string    `json:"channelId" validate:"required"`
	LastReadAt time.Time `json:"lastReadAt" validate:"required"`
}

func (ChannelRead) Kind() string { return KindChannelRead }

// ConversationRead overwrites the member's marker for the conversation,
// whatever the stored value is.
type ConversationRead struct {
	MemberID       string    `json:"memberId" validate:"required"`
	ConversationID string    `json:"conversationId" validate:"required"`
	LastReadAt     time.Time `json:"lastReadAt" validate:"required"`
}

func (ConversationRead) Kind() string { return KindConversationRead }

func Encode(job Job) ([]byte, error) {
	if err := validate.Struct(job); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return json.Marshal(job)
}

// Decode rebuilds the variant named by kind.
func Decode(kind string, payload []byte) (Job, error) {
	var job Job
	switch kind {
	case KindChannelRead:
		var j ChannelRead
		if err := json.Unmarshal(payload, &j); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrMalformedEvent, err)
		}
		job = j
	case KindConversationRead:
		var j ConversationRead
		if err := json.Unmarshal(payload, &j); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrMalformedEvent, err)
		}
		job = j
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownJob, kind)
	}
	if err := validate.Struct(job); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return job, nil
}
