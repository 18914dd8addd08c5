// Package hid encodes synthetic input events (touch, button, keyboard)
// into a length-tagged binary wire format, grounded on original_source's
// FBSimulatorIndigoHID.h event catalogue. Each encoded message is
// self-describing: a one-byte event kind followed by a fixed-layout
// payload, so a decoder never needs side-channel knowledge of which
// event follows.
package hid

import (
	"bytes"
	"encoding/binary"

	"idbcore/internal/coreerr"
)

// Direction is the down/up phase of a physical event.
type Direction uint8

const (
	DirectionDown Direction = 1
	DirectionUp   Direction = 2
)

func (d Direction) String() string {
	if d == DirectionDown {
		return "down"
	}
	return "up"
}

// Button enumerates the hardware buttons FBSimulatorIndigoHID models.
type Button uint8

const (
	ButtonApplePay   Button = 1
	ButtonHomeButton Button = 2
	ButtonLock       Button = 3
	ButtonSideButton Button = 4
	ButtonSiri       Button = 5
)

// kind tags the payload that follows in the wire encoding.
type kind uint8

const (
	kindTouch         kind = 1
	kindButton        kind = 2
	kindKeyboard      kind = 3
	kindKeyboardBatch kind = 4
)

// Event is the common interface satisfied by every encodable HID event.
type Event interface {
	encode() []byte
}

// TouchEvent reports a single touch point at pixel coordinates, relative
// to a screen of the given size and scale.
type TouchEvent struct {
	Direction    Direction
	ScreenWidth  float64
	ScreenHeight float64
	ScreenScale  float64
	X            float64
	Y            float64
}

func (e TouchEvent) encode() []byte {
	buf := make([]byte, 1+8*5)
	buf[0] = byte(kindTouch)
	putFloat64(buf[1:9], e.ScreenWidth)
	putFloat64(buf[9:17], e.ScreenHeight)
	putFloat64(buf[17:25], e.ScreenScale)
	putFloat64(buf[25:33], e.X)
	putFloat64(buf[33:41], e.Y)
	return buf
}

// ButtonEvent reports a hardware button press or release.
type ButtonEvent struct {
	Direction Direction
	Button    Button
}

func (e ButtonEvent) encode() []byte {
	return []byte{byte(kindButton), byte(e.Direction), byte(e.Button)}
}

// KeyboardEvent reports a single HID-usage-table keycode press/release.
type KeyboardEvent struct {
	Direction Direction
	KeyCode   uint32
}

func (e KeyboardEvent) encode() []byte {
	buf := make([]byte, 1+1+4)
	buf[0] = byte(kindKeyboard)
	buf[1] = byte(e.Direction)
	binary.BigEndian.PutUint32(buf[2:], e.KeyCode)
	return buf
}

// KeyboardBatch encodes a run of key codes sharing one direction, e.g.
// for a typed string, avoiding one message per character.
type KeyboardBatch struct {
	Direction Direction
	KeyCodes  []uint32
}

func (e KeyboardBatch) encode() []byte {
	buf := make([]byte, 1+1+4+4*len(e.KeyCodes))
	buf[0] = byte(kindKeyboardBatch)
	buf[1] = byte(e.Direction)
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(e.KeyCodes)))
	off := 6
	for _, kc := range e.KeyCodes {
		binary.BigEndian.PutUint32(buf[off:off+4], kc)
		off += 4
	}
	return buf
}

// putFloat64/getFloat64 use a fixed-point micro-unit encoding rather
// than IEEE754 bit-patterns so payloads stay comparable across the
// round trip without float formatting drift.
func putFloat64(dst []byte, v float64) {
	binary.BigEndian.PutUint64(dst, uint64(int64(v*1e6)))
}

func getFloat64(src []byte) float64 {
	return float64(int64(binary.BigEndian.Uint64(src))) / 1e6
}

// Encode prefixes the event's payload with a 4-byte big-endian length,
// the framing spec §4.7 requires for stream transports that don't
// otherwise preserve message boundaries.
func Encode(e Event) []byte {
	payload := e.encode()
	var out bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	out.Write(lenBuf[:])
	out.Write(payload)
	return out.Bytes()
}

// Decode parses a single length-prefixed message from the front of buf
// into an Event, returning the number of bytes consumed so callers can
// keep decoding subsequent messages from the same buffer.
func Decode(buf []byte) (Event, int, error) {
	if len(buf) < 4 {
		return nil, 0, coreerr.New(coreerr.KindInvalidArgument, "hid.Decode", "buffer too short for length prefix")
	}
	n := int(binary.BigEndian.Uint32(buf[:4]))
	if len(buf) < 4+n {
		return nil, 0, coreerr.New(coreerr.KindInvalidArgument, "hid.Decode", "buffer too short for declared payload length %d", n)
	}
	payload := buf[4 : 4+n]
	if len(payload) == 0 {
		return nil, 0, coreerr.New(coreerr.KindInvalidArgument, "hid.Decode", "empty payload")
	}

	switch kind(payload[0]) {
	case kindTouch:
		if len(payload) < 1+8*5 {
			return nil, 0, coreerr.New(coreerr.KindInvalidArgument, "hid.Decode", "truncated touch event")
		}
		e := TouchEvent{
			ScreenWidth:  getFloat64(payload[1:9]),
			ScreenHeight: getFloat64(payload[9:17]),
			ScreenScale:  getFloat64(payload[17:25]),
			X:            getFloat64(payload[25:33]),
			Y:            getFloat64(payload[33:41]),
		}
		return e, 4 + n, nil
	case kindButton:
		if len(payload) < 3 {
			return nil, 0, coreerr.New(coreerr.KindInvalidArgument, "hid.Decode", "truncated button event")
		}
		return ButtonEvent{Direction: Direction(payload[1]), Button: Button(payload[2])}, 4 + n, nil
	case kindKeyboard:
		if len(payload) < 6 {
			return nil, 0, coreerr.New(coreerr.KindInvalidArgument, "hid.Decode", "truncated keyboard event")
		}
		return KeyboardEvent{Direction: Direction(payload[1]), KeyCode: binary.BigEndian.Uint32(payload[2:6])}, 4 + n, nil
	case kindKeyboardBatch:
		if len(payload) < 6 {
			return nil, 0, coreerr.New(coreerr.KindInvalidArgument, "hid.Decode", "truncated keyboard batch")
		}
		count := int(binary.BigEndian.Uint32(payload[2:6]))
		if len(payload) < 6+4*count {
			return nil, 0, coreerr.New(coreerr.KindInvalidArgument, "hid.Decode", "truncated keyboard batch codes")
		}
		codes := make([]uint32, count)
		off := 6
		for i := 0; i < count; i++ {
			codes[i] = binary.BigEndian.Uint32(payload[off : off+4])
			off += 4
		}
		return KeyboardBatch{Direction: Direction(payload[1]), KeyCodes: codes}, 4 + n, nil
	default:
		return nil, 0, coreerr.New(coreerr.KindInvalidArgument, "hid.Decode", "unrecognised event kind %d", payload[0])
	}
}

// DecodeAll decodes every length-prefixed message in buf, in order.
func DecodeAll(buf []byte) ([]Event, error) {
	var events []Event
	for len(buf) > 0 {
		e, n, err := Decode(buf)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
		buf = buf[n:]
	}
	return events, nil
}
