package wire

import "fmt"

// Decode splits a raw socket message into its tag and a decoded payload
// value. Tags in the extension range are never interpreted; they decode
// to a Passthrough carrying the raw bytes for the caller to relay.
func Decode(data []byte) (MessageTag, any, error) {
	frame, err := DecodeFrame(data)
	if err != nil {
		return 0, nil, err
	}
	if IsExtensionTag(frame.Tag) {
		return frame.Tag, Passthrough{Tag: frame.Tag, Raw: frame.Payload}, nil
	}
	switch frame.Tag {
	case TagJoinGame:
		v, err := DecodeJoinGame(frame.Payload)
		return frame.Tag, v, err
	case TagWelcome:
		v, err := DecodeWelcome(frame.Payload)
		return frame.Tag, v, err
	case TagPlayerJoin:
		v, err := DecodePlayerJoin(frame.Payload)
		return frame.Tag, v, err
	case TagPlayerLeave:
		v, err := DecodePlayerLeave(frame.Payload)
		return frame.Tag, v, err
	case TagPosition:
		v, err := DecodePosition(frame.Payload)
		return frame.Tag, v, err
	case TagBatchPositions:
		v, err := DecodeBatchPositions(frame.Payload)
		return frame.Tag, v, err
	case TagCreatureUpdate:
		v, err := DecodeCreatureUpdate(frame.Payload)
		return frame.Tag, v, err
	case TagSizeUpdate:
		v, err := DecodeSizeUpdate(frame.Payload)
		return frame.Tag, v, err
	case TagPing:
		v, err := DecodePing(frame.Payload)
		return frame.Tag, v, err
	case TagPong:
		v, err := DecodePong(frame.Payload)
		return frame.Tag, v, err
	case TagNPCSpawn:
		v, err := DecodeNPCOpaque(frame.Payload)
		return frame.Tag, v, err
	case TagNPCDeath:
		v, err := DecodeNPCDeath(frame.Payload)
		return frame.Tag, v, err
	case TagEatNPC:
		v, err := DecodeEatNPC(frame.Payload)
		return frame.Tag, v, err
	case TagMapChange:
		v, err := DecodeMapChange(frame.Payload)
		return frame.Tag, v, err
	case TagRequestMapChange:
		v, err := DecodeRequestMapChange(frame.Payload)
		return frame.Tag, v, err
	case TagHostAssigned:
		v, err := DecodeHostAssigned(frame.Payload)
		return frame.Tag, v, err
	case TagHostChanged:
		v, err := DecodeHostChanged(frame.Payload)
		return frame.Tag, v, err
	case TagNPCSnapshot:
		v, err := DecodeNPCSnapshot(frame.Payload)
		return frame.Tag, v, err
	case TagAbilityStart, TagAbilityStop:
		v, err := DecodeAbilityEvent(frame.Payload)
		return frame.Tag, v, err
	case TagPrismPlace:
		v, err := DecodePrismPlace(frame.Payload)
		return frame.Tag, v, err
	case TagPrismRemove:
		v, err := DecodePrismRemove(frame.Payload)
		return frame.Tag, v, err
	case TagChat:
		v, err := DecodeChat(frame.Payload)
		return frame.Tag, v, err
	default:
		return frame.Tag, nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrInvalidFrame, frame.Tag)
	}
}
