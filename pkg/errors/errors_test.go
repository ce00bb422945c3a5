package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorWrap(t *testing.T) {
	sentinel := New("something failed")
	cause := fmt.Errorf("root cause")

	wrapped := sentinel.Wrap(cause)
	require.Error(t, wrapped)
	assert.True(t, Is(wrapped, sentinel))
	assert.True(t, Is(wrapped, cause))
	assert.Contains(t, wrapped.Error(), "something failed")
	assert.Contains(t, wrapped.Error(), "root cause")

	// wrapping does not mutate the sentinel
	assert.NoError(t, sentinel.Unwrap())
}

func TestErrorIsThroughFmt(t *testing.T) {
	sentinel := New("drift detected")
	err := fmt.Errorf("committing manifest: %w", sentinel)
	assert.True(t, Is(err, sentinel))
	assert.False(t, Is(err, New("other")))
}
