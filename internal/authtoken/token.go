// Package authtoken signs and validates the optional reconnect token that
// the hub checks on the WebSocket upgrade when --require-join-token is set.
// No wire message carries a token, so WELCOME does not return one. Unlike the teacher's JWKS-backed validator (there
// is no external identity provider in this protocol), tokens here are
// self-issued and self-verified with a single HMAC secret the operator
// configures via --require-join-token / JOIN_TOKEN_SECRET.
package authtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/reeftide/abyssal-server/internal/types"
)

// ErrInvalidToken covers every way a reconnect token can fail
// validation: bad signature, expired, wrong room, malformed.
var ErrInvalidToken = errors.New("invalid reconnect token")

// Claims identifies which room and seat a reconnect token authorizes.
type Claims struct {
	RoomID        string `json:"room_id"`
	ParticipantID uint32 `json:"participant_id"`
	jwt.RegisteredClaims
}

// Signer issues and validates reconnect tokens with one shared secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// New builds a Signer. secret must be non-empty; config validation
// enforces a minimum length before this is ever called.
func New(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Issue mints a reconnect token for id's current seat in roomID.
func (s *Signer) Issue(roomID types.RoomID, id types.ParticipantID) (string, error) {
	now := time.Now()
	claims := Claims{
		RoomID:        string(roomID),
		ParticipantID: uint32(id),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign reconnect token: %w", err)
	}
	return signed, nil
}

// Validate reports the room and seat a reconnect token was issued for,
// provided it still verifies and is for the room the client is
// attempting to rejoin.
func (s *Signer) Validate(tokenString string, roomID types.RoomID) (types.ParticipantID, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	if claims.RoomID != string(roomID) {
		return 0, ErrInvalidToken
	}
	return types.ParticipantID(claims.ParticipantID), nil
}
