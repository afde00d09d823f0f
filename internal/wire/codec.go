// Package wire implements the binary frame codec described by the
// protocol's message tag table: a one-byte tag followed by a compact,
// length-prefixed, self-describing payload. The style (an error-sticky
// writer/reader pair wrapping bytes.Buffer) is carried over from the
// networking/shared message codec this protocol was grounded on, widened
// from one opaque data blob into one fixed-shape record per tag.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MessageTag is the one-byte wire discriminator.
type MessageTag uint8

const (
	TagJoinGame         MessageTag = 0x01
	TagWelcome          MessageTag = 0x02
	TagPlayerJoin       MessageTag = 0x03
	TagPlayerLeave      MessageTag = 0x04
	TagPosition         MessageTag = 0x05
	TagBatchPositions   MessageTag = 0x06
	TagCreatureUpdate   MessageTag = 0x07
	TagSizeUpdate       MessageTag = 0x08
	TagPing             MessageTag = 0x09
	TagPong             MessageTag = 0x0A
	TagNPCSpawn         MessageTag = 0x0B
	TagNPCDeath         MessageTag = 0x0C
	TagEatNPC           MessageTag = 0x0D
	TagMapChange        MessageTag = 0x0E
	TagRequestMapChange MessageTag = 0x0F
	TagHostAssigned     MessageTag = 0x10
	TagHostChanged      MessageTag = 0x11
	TagNPCSnapshot      MessageTag = 0x12
	TagAbilityStart     MessageTag = 0x13
	TagAbilityStop      MessageTag = 0x14
	TagPrismPlace       MessageTag = 0x15
	TagPrismRemove      MessageTag = 0x16
	TagChat             MessageTag = 0x17

	// extensionRangeStart begins the reserved passthrough range: unknown
	// tags here decode to Passthrough instead of failing.
	extensionRangeStart MessageTag = 0x80
	extensionRangeEnd   MessageTag = 0xFE
)

// ErrInvalidFrame is returned by Decode for malformed input.
var ErrInvalidFrame = errors.New("wire: invalid frame")

// Frame is a decoded (tag, payload) pair ready for re-encoding or dispatch.
type Frame struct {
	Tag     MessageTag
	Payload []byte
}

// EncodeFrame prefixes an already-encoded payload with its tag byte.
func EncodeFrame(tag MessageTag, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = byte(tag)
	copy(out[1:], payload)
	return out
}

// DecodeFrame splits a raw socket message into its tag and payload. It
// fails only if the message is shorter than the one-byte header; unknown
// tags are left for the caller (Decode) to classify as passthrough.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < 1 {
		return Frame{}, fmt.Errorf("%w: empty message", ErrInvalidFrame)
	}
	return Frame{Tag: MessageTag(data[0]), Payload: data[1:]}, nil
}

// IsExtensionTag reports whether tag falls in the reserved passthrough
// range and should never be interpreted, only forwarded.
func IsExtensionTag(tag MessageTag) bool {
	return tag >= extensionRangeStart && tag <= extensionRangeEnd
}

// --- error-sticky encoder/decoder, grounded on the binary.Write/Read
// pattern used throughout the retrieval pack's networking codecs ---

type encoder struct {
	buf bytes.Buffer
	err error
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) putUint8(v uint8) {
	if e.err != nil {
		return
	}
	e.buf.WriteByte(v)
}

func (e *encoder) putBool(v bool) {
	if v {
		e.putUint8(1)
	} else {
		e.putUint8(0)
	}
}

func (e *encoder) putUint32(v uint32) {
	if e.err != nil {
		return
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) putInt32(v int32) { e.putUint32(uint32(v)) }

func (e *encoder) putUint64(v uint64) {
	if e.err != nil {
		return
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) putInt64(v int64) { e.putUint64(uint64(v)) }

func (e *encoder) putUint16(v uint16) {
	if e.err != nil {
		return
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

// putString writes a length-prefixed UTF-8 string, truncating to maxLen
// octets (a no-op for compliant callers; a safety net for encoders that
// forgot to validate upstream).
func (e *encoder) putString(s string, maxLen int) {
	if e.err != nil {
		return
	}
	if maxLen > 0 && len(s) > maxLen {
		s = s[:maxLen]
	}
	if len(s) > math.MaxUint16 {
		e.fail(fmt.Errorf("%w: string too long", ErrInvalidFrame))
		return
	}
	e.putUint16(uint16(len(s)))
	e.buf.WriteString(s)
}

// putBytes writes a length-prefixed opaque blob.
func (e *encoder) putBytes(b []byte) {
	if e.err != nil {
		return
	}
	if len(b) > math.MaxUint32 {
		e.fail(fmt.Errorf("%w: blob too long", ErrInvalidFrame))
		return
	}
	e.putUint32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *encoder) bytes() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf.Bytes(), nil
}

type decoder struct {
	r   *bytes.Reader
	err error
}

func newDecoder(data []byte) *decoder {
	return &decoder{r: bytes.NewReader(data)}
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *decoder) getUint8() uint8 {
	if d.err != nil {
		return 0
	}
	b, err := d.r.ReadByte()
	if err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrInvalidFrame, err))
		return 0
	}
	return b
}

func (d *decoder) getBool() bool { return d.getUint8() != 0 }

func (d *decoder) getUint32() uint32 {
	if d.err != nil {
		return 0
	}
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrInvalidFrame, err))
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}

func (d *decoder) getInt32() int32 { return int32(d.getUint32()) }

func (d *decoder) getUint64() uint64 {
	if d.err != nil {
		return 0
	}
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrInvalidFrame, err))
		return 0
	}
	return binary.BigEndian.Uint64(b[:])
}

func (d *decoder) getInt64() int64 { return int64(d.getUint64()) }

func (d *decoder) getUint16() uint16 {
	if d.err != nil {
		return 0
	}
	var b [2]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrInvalidFrame, err))
		return 0
	}
	return binary.BigEndian.Uint16(b[:])
}

const maxFrameBlob = 1 << 20 // 1MiB, mirrors the corpus's memory-exhaustion guard

func (d *decoder) getString() string {
	n := d.getUint16()
	if d.err != nil {
		return ""
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrInvalidFrame, err))
		return ""
	}
	return string(buf)
}

func (d *decoder) getBytes() []byte {
	n := d.getUint32()
	if d.err != nil {
		return nil
	}
	if n > maxFrameBlob {
		d.fail(fmt.Errorf("%w: blob too large (%d bytes)", ErrInvalidFrame, n))
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrInvalidFrame, err))
		return nil
	}
	return buf
}

// done reports the first decode error encountered, or a trailing-bytes
// error if the payload had more data than its fields consumed.
func (d *decoder) done() error {
	if d.err != nil {
		return d.err
	}
	if d.r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrInvalidFrame, d.r.Len())
	}
	return nil
}
