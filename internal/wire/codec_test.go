package wire

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reeftide/abyssal-server/internal/types"
)

func TestQuantizeRoundTrip(t *testing.T) {
	cases := []float64{0, 1, -1, 3.14159, -273.15, 999.999}
	for _, v := range cases {
		q := quantizePos(v)
		got := dequantizePos(q)
		assert.InDelta(t, v, got, 1.0/positionStep)
	}
}

func TestQuantizeNaNAndInfFoldToZero(t *testing.T) {
	assert.Equal(t, int32(0), quantizePos(math.NaN()))
	assert.Equal(t, int32(0), quantizePos(math.Inf(1)))
}

func TestQuantizeVolumeClamps(t *testing.T) {
	assert.Equal(t, quantizeVolume(1), quantizeVolume(-5))
	assert.Equal(t, quantizeVolume(1000), quantizeVolume(5000))
}

func TestFrameRoundTrip(t *testing.T) {
	payload, err := EncodePing(Ping{ClientTime: 12345})
	require.NoError(t, err)
	raw := EncodeFrame(TagPing, payload)

	frame, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, TagPing, frame.Tag)

	got, err := DecodePing(frame.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), got.ClientTime)
}

func TestDecodeEmptyFrameFails(t *testing.T) {
	_, err := DecodeFrame(nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestDecodeDispatchesPassthrough(t *testing.T) {
	raw := EncodeFrame(MessageTag(0x90), []byte{1, 2, 3})
	tag, val, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, MessageTag(0x90), tag)
	pt, ok := val.(Passthrough)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, pt.Raw)
}

func TestDecodeUnknownNonExtensionTagFails(t *testing.T) {
	raw := EncodeFrame(MessageTag(0x7F), nil)
	_, _, err := Decode(raw)
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestJoinGameRoundTrip(t *testing.T) {
	want := JoinGame{
		DisplayName: "Finley",
		Creature:    types.Creature{Type: "clownfish", Class: "reef", VariantIndex: 2, Seed: 99},
	}
	payload, err := EncodeJoinGame(want)
	require.NoError(t, err)
	got, err := DecodeJoinGame(payload)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestJoinGameTruncatesOverlongDisplayName(t *testing.T) {
	long := strings.Repeat("x", types.MaxDisplayNameOctets+10)
	payload, err := EncodeJoinGame(JoinGame{DisplayName: long})
	require.NoError(t, err)
	got, err := DecodeJoinGame(payload)
	require.NoError(t, err)
	assert.Len(t, got.DisplayName, types.MaxDisplayNameOctets)
}

func TestWelcomeRoundTrip(t *testing.T) {
	want := Welcome{
		ParticipantID: 7,
		RoomID:        "room-abc",
		WorldSeed:     42,
		NPCSeed:       4112119563, // 42*2654435761 + 1, wrapped to uint32
		DeadNPCIDs:    []uint32{1, 2, 3},
		ExistingParticipants: []ParticipantSnapshot{
			{ID: 1, DisplayName: "A", WorldVolume: 10},
			{ID: 2, DisplayName: "B", WorldVolume: 20},
		},
		HostID: 1,
		IsHost: false,
	}
	payload, err := EncodeWelcome(want)
	require.NoError(t, err)
	got, err := DecodeWelcome(payload)
	require.NoError(t, err)
	assert.Equal(t, want.ParticipantID, got.ParticipantID)
	assert.Equal(t, want.RoomID, got.RoomID)
	assert.Equal(t, want.DeadNPCIDs, got.DeadNPCIDs)
	assert.Len(t, got.ExistingParticipants, 2)
	assert.InDelta(t, want.ExistingParticipants[0].WorldVolume, got.ExistingParticipants[0].WorldVolume, 0.01)
}

func TestBatchPositionsRoundTrip(t *testing.T) {
	want := BatchPositions{
		ServerTime: 1000,
		Entries: []BatchEntry{
			{ID: 1, Pos: types.Vec3{X: 1, Y: 2, Z: 3}, Rot: types.Vec3{X: 0.1, Y: 0.2, Z: 0.3}, Scale: 1.0},
			{ID: 2, Pos: types.Vec3{X: -1, Y: -2, Z: -3}, HasVolume: true, Volume: 50},
		},
	}
	payload, err := EncodeBatchPositions(want)
	require.NoError(t, err)
	got, err := DecodeBatchPositions(payload)
	require.NoError(t, err)
	require.Len(t, got.Entries, 2)
	assert.InDelta(t, want.Entries[0].Pos.X, got.Entries[0].Pos.X, 0.01)
	assert.True(t, got.Entries[1].HasVolume)
	assert.InDelta(t, 50, got.Entries[1].Volume, 0.01)
}

func TestChatTruncatesOverlongText(t *testing.T) {
	long := strings.Repeat("y", types.MaxChatOctets+50)
	payload, err := EncodeChat(Chat{SenderID: 3, Text: long})
	require.NoError(t, err)
	got, err := DecodeChat(payload)
	require.NoError(t, err)
	assert.Len(t, got.Text, types.MaxChatOctets)
}

func TestRequestMapChangeRejectsNonEmptyPayload(t *testing.T) {
	_, err := DecodeRequestMapChange([]byte{1})
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestAbilityEventRoundTripWithParams(t *testing.T) {
	want := AbilityEvent{
		ParticipantID: 5,
		Ability:       types.AbilityStacker,
		Params:        map[string]string{"color": "red"},
	}
	payload, err := EncodeAbilityEvent(want)
	require.NoError(t, err)
	got, err := DecodeAbilityEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeTruncatedPayloadFails(t *testing.T) {
	_, err := DecodePlayerLeave([]byte{0, 0})
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestDecodeTrailingBytesFails(t *testing.T) {
	payload, err := EncodePlayerLeave(PlayerLeave{ParticipantID: 1})
	require.NoError(t, err)
	_, err = DecodePlayerLeave(append(payload, 0xFF))
	assert.ErrorIs(t, err, ErrInvalidFrame)
}
