package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	lengthSize = 2

	// MaxFramePayload is the largest payload a single frame can carry,
	// bounded by the 2-byte length prefix.
	MaxFramePayload = 0xFFFF
)

// EncodeFrame prefixes payload with its 2-byte big-endian length.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxFramePayload {
		return nil, fmt.Errorf("payload size %d exceeds maximum %d bytes", len(payload), MaxFramePayload)
	}

	out := make([]byte, lengthSize+len(payload))
	binary.BigEndian.PutUint16(out[:lengthSize], uint16(len(payload)))
	copy(out[lengthSize:], payload)
	return out, nil
}

// NextFrame strips one complete frame off the front of buf. It returns the
// frame payload, the remaining bytes, and whether a complete frame was
// present. An incomplete length prefix or incomplete payload returns
// ok=false with buf untouched; the caller waits for more bytes.
// The payload slice references buf - do not retain it across appends.
func NextFrame(buf []byte) (payload, rest []byte, ok bool) {
	if len(buf) < lengthSize {
		return nil, buf, false
	}

	n := int(binary.BigEndian.Uint16(buf[:lengthSize]))
	if len(buf) < lengthSize+n {
		return nil, buf, false
	}
	return buf[lengthSize : lengthSize+n], buf[lengthSize+n:], true
}
