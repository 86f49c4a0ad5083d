package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches wrapped domain errors", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeInvalidClaims, "medicationName is required"))
		assert.True(t, HasCode(err, CodeInvalidClaims))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("signer", "did:example:doctor#bbs-1", cause)

	require.ErrorIs(t, err, cause)
	assert.True(t, err.Code.Retryable())
	assert.Contains(t, err.Error(), "signer")
	assert.Contains(t, err.Error(), "did:example:doctor#bbs-1")
}

func TestRetryable(t *testing.T) {
	assert.True(t, CodeUnavailable.Retryable())
	assert.True(t, CodeTimeout.Retryable())
	assert.False(t, CodeInvalidClaims.Retryable())
	assert.False(t, CodeNoCompatibleKey.Retryable())
	assert.False(t, CodeNotFound.Retryable())
}

func TestFromCollaborator(t *testing.T) {
	assert.NoError(t, FromCollaborator("signer", "vm", nil))

	domainErr := New(CodeNoCompatibleKey, "no key")
	assert.Same(t, domainErr, FromCollaborator("signer", "vm", domainErr))

	err := FromCollaborator("signer", "did:example:doctor#bbs-1", errors.New("dial tcp"))
	assert.True(t, HasCode(err, CodeUnavailable))
	assert.Contains(t, err.Error(), "did:example:doctor#bbs-1")
}
