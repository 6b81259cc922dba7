package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Top-level kinds. Every error surfaced to a client wraps exactly one of them.
var (
	ErrValidation     = fmt.Errorf("validation error")
	ErrAuthentication = fmt.Errorf("authentication error")
	ErrDecryption     = fmt.Errorf("decryption error")
	ErrNotFound       = fmt.Errorf("not found")
	ErrRateLimited    = fmt.Errorf("rate limited")
)

var (
	ErrMissingField     = fmt.Errorf("%w: missing required field", ErrValidation)
	ErrMalformedNonce   = fmt.Errorf("%w: nonce must be 64 alphanumeric characters", ErrValidation)
	ErrMalformedID      = fmt.Errorf("%w: request id must be a UUIDv4", ErrValidation)
	ErrMalformedEvent   = fmt.Errorf("%w: malformed event", ErrValidation)
	ErrUnknownEvent     = fmt.Errorf("%w: unknown event", ErrValidation)
	ErrInvalidSDP       = fmt.Errorf("%w: invalid session description", ErrValidation)
	ErrBodyTooLarge     = fmt.Errorf("%w: request body too large", ErrValidation)
	ErrExpiredTimestamp = fmt.Errorf("%w: timestamp outside freshness window", ErrAuthentication)
	ErrDuplicateNonce   = fmt.Errorf("%w: nonce already used", ErrAuthentication)
	ErrInvalidSignature = fmt.Errorf("%w: signature mismatch", ErrAuthentication)
	ErrUnknownClient    = fmt.Errorf("%w: unknown client", ErrAuthentication)
	ErrInvalidToken     = fmt.Errorf("%w: invalid or expired token", ErrAuthentication)
	ErrInvalidKey       = fmt.Errorf("invalid encryption key")
	ErrProducerNotFound = fmt.Errorf("%w: producer", ErrNotFound)
	ErrConsumerNotFound = fmt.Errorf("%w: consumer", ErrNotFound)
	ErrMediaNotFound    = fmt.Errorf("%w: media", ErrNotFound)
	ErrConvNotFound     = fmt.Errorf("%w: conversation", ErrNotFound)
	ErrNotAMember       = fmt.Errorf("%w: not a member", ErrAuthentication)
	ErrCacheMiss        = fmt.Errorf("cache miss")
	ErrCacheFull        = fmt.Errorf("cache full")
	ErrQueueEmpty       = fmt.Errorf("queue is empty")
	ErrUnknownJob       = fmt.Errorf("unknown job kind")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrEmptyWords       = fmt.Errorf("no words have been found")
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrSendBufferFull   = fmt.Errorf("send buffer full")
	ErrRegistryClosed   = fmt.Errorf("signaling registry closed")
)

// Is, As, New and Join re-export the standard helpers so callers importing this
// package under the name "errors" keep a single import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

// Response is the payload of the universal "error" event and of HTTP error bodies.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Status     string `json:"status"`
	ErrorType  string `json:"errorType"`
}

// Classify maps an error to the structured response sent to clients.
// Anything outside the known taxonomy becomes an opaque internal error.
func Classify(err error) Response {
	switch {
	case err == nil:
		return Response{StatusCode: http.StatusOK, Status: "success"}
	case Is(err, ErrBodyTooLarge):
		return Response{StatusCode: http.StatusRequestEntityTooLarge, Message: err.Error(), Status: "fail", ErrorType: "ValidationError"}
	case Is(err, ErrValidation):
		return Response{StatusCode: http.StatusBadRequest, Message: err.Error(), Status: "fail", ErrorType: "ValidationError"}
	case Is(err, ErrDecryption):
		return Response{StatusCode: http.StatusBadRequest, Message: err.Error(), Status: "fail", ErrorType: "DecryptionError"}
	case Is(err, ErrAuthentication):
		return Response{StatusCode: http.StatusUnauthorized, Message: err.Error(), Status: "fail", ErrorType: "AuthenticationError"}
	case Is(err, ErrNotFound):
		return Response{StatusCode: http.StatusNotFound, Message: err.Error(), Status: "fail", ErrorType: "NotFoundError"}
	case Is(err, ErrRateLimited):
		return Response{StatusCode: http.StatusTooManyRequests, Message: err.Error(), Status: "fail", ErrorType: "RateLimitError"}
	default:
		return Response{StatusCode: http.StatusInternalServerError, Message: "internal server error", Status: "error", ErrorType: "InternalError"}
	}
}
