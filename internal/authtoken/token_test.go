package authtoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reeftide/abyssal-server/internal/types"
)

func TestIssueAndValidateRoundTrip(t *testing.T) {
	s := New("a-sufficiently-long-shared-secret-value", time.Minute)
	token, err := s.Issue(types.RoomID("reef-1"), types.ParticipantID(7))
	require.NoError(t, err)

	id, err := s.Validate(token, types.RoomID("reef-1"))
	require.NoError(t, err)
	assert.Equal(t, types.ParticipantID(7), id)
}

func TestValidateRejectsWrongRoom(t *testing.T) {
	s := New("a-sufficiently-long-shared-secret-value", time.Minute)
	token, err := s.Issue(types.RoomID("reef-1"), types.ParticipantID(7))
	require.NoError(t, err)

	_, err = s.Validate(token, types.RoomID("reef-2"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	// Constructed directly (not via New) since New folds a non-positive
	// ttl to its default, making a negative ttl unreachable otherwise.
	s := &Signer{secret: []byte("a-sufficiently-long-shared-secret-value"), ttl: -time.Second}
	token, err := s.Issue(types.RoomID("reef-1"), types.ParticipantID(7))
	require.NoError(t, err)

	_, err = s.Validate(token, types.RoomID("reef-1"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsTokenSignedWithDifferentSecret(t *testing.T) {
	s1 := New("a-sufficiently-long-shared-secret-value", time.Minute)
	s2 := New("a-totally-different-shared-secret-value", time.Minute)

	token, err := s1.Issue(types.RoomID("reef-1"), types.ParticipantID(7))
	require.NoError(t, err)

	_, err = s2.Validate(token, types.RoomID("reef-1"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}
