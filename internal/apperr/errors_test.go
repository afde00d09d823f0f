package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeErrorUnwraps(t *testing.T) {
	cause := errors.New("short buffer")
	err := &DecodeError{Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "short buffer")
}

func TestTransientErrorUnwraps(t *testing.T) {
	cause := errors.New("queue full")
	err := &TransientError{Cause: cause}

	assert.ErrorIs(t, err, cause)
}

func TestProtocolErrorCarriesReason(t *testing.T) {
	err := &ProtocolError{Reason: "JOIN_GAME sent twice"}

	var target *ProtocolError
	assert.True(t, errors.As(err, &target))
	assert.Equal(t, "JOIN_GAME sent twice", target.Reason)
}

func TestCapacityErrorMessage(t *testing.T) {
	err := &CapacityError{RoomID: "reef-1", Capacity: 8}

	assert.Contains(t, err.Error(), "reef-1")
	assert.Contains(t, err.Error(), "8")
}

func TestInvariantViolationIsDistinctFromProtocolError(t *testing.T) {
	var pErr *ProtocolError
	err := error(&InvariantViolation{What: "eat claim on unseated participant"})

	assert.False(t, errors.As(err, &pErr))
}
