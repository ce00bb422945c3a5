package sthree

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/stretchr/testify/assert"
	"github.com/tarpack/tarpack/pkg/storage/status"
)

func requestFailure(code string, statusCode int) error {
	return awserr.NewRequestFailure(awserr.New(code, code, nil), statusCode, "req-1")
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))

	assert.ErrorIs(t, classify(requestFailure("NoSuchKey", 404)), status.ErrNotExists)
	assert.ErrorIs(t, classify(requestFailure("AccessDenied", 403)), status.ErrForbidden)
	assert.ErrorIs(t, classify(requestFailure("InternalError", 500)), status.ErrTransient)
	assert.ErrorIs(t, classify(requestFailure("SlowDown", 503)), status.ErrTransient)
	assert.ErrorIs(t, classify(requestFailure("Throttling", 400)), status.ErrTransient)

	assert.ErrorIs(t, classify(errors.New("wire severed")), status.ErrStorageAPI)

	// classification keeps the cause reachable
	cause := requestFailure("NoSuchKey", 404)
	var rf awserr.RequestFailure
	assert.ErrorAs(t, classify(cause), &rf)
}
