package protocol

import (
	"errors"
	"fmt"
)

// Decode errors. ErrMalformed and ErrUnknownKind are recoverable: the server
// notices the client and keeps the connection open. ErrDetectFailed is fatal:
// the server cannot know how to talk to the peer.
var (
	ErrMalformed    = errors.New("malformed payload")
	ErrUnknownKind  = errors.New("unknown command kind")
	ErrDetectFailed = errors.New("format detection failed")
)

// Encoding is a connection's negotiated wire format. It starts Unset and is
// fixed by detection on the first frame (or immediately, when the server is
// pinned to one format); once set it never changes.
type Encoding uint8

const (
	EncodingUnset Encoding = iota
	EncodingText
	EncodingBinary
)

// String returns the configuration name of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingText:
		return "json"
	case EncodingBinary:
		return "binary"
	default:
		return "unset"
	}
}

// ParseEncoding maps a configuration value to an Encoding. The empty string
// means no pinned format (per-connection detection).
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "":
		return EncodingUnset, nil
	case "json":
		return EncodingText, nil
	case "binary":
		return EncodingBinary, nil
	default:
		return EncodingUnset, fmt.Errorf("unknown format %q (want \"json\" or \"binary\")", s)
	}
}

// Decoder is a connection's inbound state machine: it owns format detection
// and, for Binary connections, the envelope/payload alternation. One Decoder
// per connection; the connection's serialization lock guarantees at most one
// worker drives it at a time.
type Decoder struct {
	enc              Encoding
	awaitingEnvelope bool
	pending          Kind
}

// NewDecoder returns a Decoder, pinned to the given encoding or detecting on
// the first frame when pinned is EncodingUnset.
func NewDecoder(pinned Encoding) *Decoder {
	return &Decoder{enc: pinned, awaitingEnvelope: true}
}

// Encoding returns the connection's negotiated encoding, EncodingUnset until
// detection has run.
func (d *Decoder) Encoding() Encoding { return d.enc }

// Decode consumes one frame payload. A non-nil Command means the frame
// completed a command. A nil Command with a nil error means the frame was a
// Binary envelope and the command's payload frame is still outstanding.
//
// ErrMalformed and ErrUnknownKind leave the Decoder awaiting a fresh
// envelope (Binary) or the next frame (Text); ErrDetectFailed leaves the
// encoding unset and means the connection must be torn down.
func (d *Decoder) Decode(frame []byte) (*Command, error) {
	switch d.enc {
	case EncodingUnset:
		return d.detect(frame)
	case EncodingText:
		return DecodeText(frame)
	default:
		return d.decodeBinary(frame)
	}
}

// detect fixes the connection's encoding from its first frame. Text is tried
// first: any JSON object with a "type" discriminator proves Text, even when
// the type itself is unrecognized. Otherwise the frame must be an envelope
// naming a client command kind, which proves Binary and primes the decoder
// with that pending kind.
func (d *Decoder) detect(frame []byte) (*Command, error) {
	cmd, err := DecodeText(frame)
	switch {
	case err == nil:
		d.enc = EncodingText
		return cmd, nil
	case errors.Is(err, ErrUnknownKind):
		d.enc = EncodingText
		return nil, err
	}

	if k, envErr := DecodeEnvelope(frame); envErr == nil && k.IsClient() {
		d.enc = EncodingBinary
		d.awaitingEnvelope = false
		d.pending = k
		return nil, nil
	}

	return nil, ErrDetectFailed
}

func (d *Decoder) decodeBinary(frame []byte) (*Command, error) {
	if d.awaitingEnvelope {
		k, err := DecodeEnvelope(frame)
		if err != nil {
			return nil, err
		}
		if !k.IsClient() {
			return nil, fmt.Errorf("%w: 0x%x is not a command", ErrUnknownKind, uint32(k))
		}
		d.pending = k
		d.awaitingEnvelope = false
		return nil, nil
	}

	// Whatever happens to the payload, the next frame is a fresh envelope.
	k := d.pending
	d.awaitingEnvelope = true
	d.pending = KindNone
	return DecodeBinaryCommand(k, frame)
}

// EncodeEvent serializes an event for the given encoding and frames the
// result. Text events are one frame; Binary events are two (envelope then
// payload), to be written in order as separate writes.
func EncodeEvent(enc Encoding, ev Event) ([][]byte, error) {
	switch enc {
	case EncodingText:
		payload, err := EncodeText(ev)
		if err != nil {
			return nil, err
		}
		frame, err := EncodeFrame(payload)
		if err != nil {
			return nil, err
		}
		return [][]byte{frame}, nil

	case EncodingBinary:
		envelope, payload, err := EncodeBinaryEvent(ev)
		if err != nil {
			return nil, err
		}
		envFrame, err := EncodeFrame(envelope)
		if err != nil {
			return nil, err
		}
		payloadFrame, err := EncodeFrame(payload)
		if err != nil {
			return nil, err
		}
		return [][]byte{envFrame, payloadFrame}, nil

	default:
		return nil, fmt.Errorf("cannot encode for %v encoding", enc)
	}
}
