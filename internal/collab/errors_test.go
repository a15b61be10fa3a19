package collab

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermanentStatusClassification(t *testing.T) {
	assert.True(t, permanentStatus(400))
	assert.True(t, permanentStatus(404))
	assert.True(t, permanentStatus(422))
	assert.False(t, permanentStatus(408), "request timeout stays retryable")
	assert.False(t, permanentStatus(429), "rate limit stays retryable")
	assert.False(t, permanentStatus(500))
	assert.False(t, permanentStatus(503))
}

func TestIsPermanentUnwrapsChain(t *testing.T) {
	inner := fmt.Errorf("%w: HTTP 400: bad payload", ErrCalendarWrite)
	perm := &PermanentError{Err: inner}

	assert.True(t, IsPermanent(perm))
	assert.True(t, IsPermanent(fmt.Errorf("create event: %w", perm)))
	assert.ErrorIs(t, perm, ErrCalendarWrite)
	assert.False(t, IsPermanent(errors.New("connection reset")))
}
