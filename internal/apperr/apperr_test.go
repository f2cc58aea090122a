package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorStringIncludesKindAndCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Upstream(cause, "fetch %s", "profile")

	assert.Equal(t, "upstream_failure: fetch profile: dial tcp: timeout", err.Error())
}

func TestErrorStringOmitsCauseWhenAbsent(t *testing.T) {
	err := NotFound("profile %q not found", "acme")
	assert.Equal(t, `not_found: profile "acme" not found`, err.Error())
}

func TestRetryableOnlyForUpstreamAndTimeout(t *testing.T) {
	assert.True(t, Upstream(nil, "x").Retryable())
	assert.True(t, Timeout("x").Retryable())
	assert.False(t, Validation("x").Retryable())
	assert.False(t, NotFound("x").Retryable())
	assert.False(t, Internal(nil, "x").Retryable())
	assert.False(t, Cancelled("x").Retryable())
}

func TestClassifyPassesThroughAlreadyClassifiedErrors(t *testing.T) {
	original := Validation("bad input")
	classified := Classify(original)
	assert.Same(t, original, classified)
}

func TestClassifyWrapsUnknownErrorsAsInternal(t *testing.T) {
	plain := errors.New("boom")
	classified := Classify(plain)

	require.NotNil(t, classified)
	assert.Equal(t, KindInternal, classified.Kind)
	assert.Equal(t, plain, classified.Cause)
}

func TestClassifyReturnsNilForNilError(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestClassifyMapsContextDeadlineExceededToTimeout(t *testing.T) {
	wrapped := fmt.Errorf("actor call failed: %w", context.DeadlineExceeded)
	classified := Classify(wrapped)

	require.NotNil(t, classified)
	assert.Equal(t, KindTimeout, classified.Kind)
	assert.True(t, classified.Retryable())
}

func TestClassifyMapsContextCanceledToCancelled(t *testing.T) {
	wrapped := fmt.Errorf("actor call failed: %w", context.Canceled)
	classified := Classify(wrapped)

	require.NotNil(t, classified)
	assert.Equal(t, KindCancelled, classified.Kind)
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Internal(cause, "context")

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.ErrorIs(t, err, cause)
}
