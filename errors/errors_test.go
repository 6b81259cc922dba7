package errors_test

import (
	"chat-relay/errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Run("should keep the message of wrapped validation errors", func(t *testing.T) {
		req := require.New(t)
		err := fmt.Errorf("%w: channelId is required", errors.ErrMissingField)

		resp := errors.Classify(err)
		req.Equal(http.StatusBadRequest, resp.StatusCode)
		req.Equal("ValidationError", resp.ErrorType)
		req.Equal("fail", resp.Status)
		req.Equal("validation error: missing required field: channelId is required", resp.Message)
	})

	t.Run("should map every kind to its status", func(t *testing.T) {
		req := require.New(t)
		req.Equal(http.StatusUnauthorized, errors.Classify(errors.ErrDuplicateNonce).StatusCode)
		req.Equal(http.StatusUnauthorized, errors.Classify(errors.ErrNotAMember).StatusCode)
		req.Equal("DecryptionError", errors.Classify(fmt.Errorf("%w: bad padding", errors.ErrDecryption)).ErrorType)
		req.Equal(http.StatusNotFound, errors.Classify(errors.ErrProducerNotFound).StatusCode)
		req.Equal(http.StatusTooManyRequests, errors.Classify(errors.ErrRateLimited).StatusCode)
		req.Equal(http.StatusRequestEntityTooLarge, errors.Classify(errors.ErrBodyTooLarge).StatusCode)
		req.Equal("ValidationError", errors.Classify(errors.ErrBodyTooLarge).ErrorType)
	})

	t.Run("should hide internal errors", func(t *testing.T) {
		req := require.New(t)
		resp := errors.Classify(errors.New("badger: disk full"))
		req.Equal(http.StatusInternalServerError, resp.StatusCode)
		req.Equal("internal server error", resp.Message)
		req.Equal("InternalError", resp.ErrorType)
	})

	t.Run("should report success for nil", func(t *testing.T) {
		req := require.New(t)
		req.Equal(errors.Response{StatusCode: http.StatusOK, Status: "success"}, errors.Classify(nil))
	})
}
