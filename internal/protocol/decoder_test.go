package protocol

import (
	"errors"
	"testing"
)

func mustEncodeTextCommand(t *testing.T, cmd Command) []byte {
	t.Helper()
	data, err := EncodeTextCommand(&cmd)
	if err != nil {
		t.Fatalf("EncodeTextCommand() error = %v", err)
	}
	return data
}

func mustEncodeBinaryCommand(t *testing.T, cmd Command) (envelope, payload []byte) {
	t.Helper()
	envelope, payload, err := EncodeBinaryCommand(&cmd)
	if err != nil {
		t.Fatalf("EncodeBinaryCommand() error = %v", err)
	}
	return envelope, payload
}

// TestDetectText tests that a JSON first frame fixes Text and dispatches immediately
func TestDetectText(t *testing.T) {
	t.Parallel()

	d := NewDecoder(EncodingUnset)
	cmd, err := d.Decode(mustEncodeTextCommand(t, Command{Kind: CSCreateRoom, Title: "lobby"}))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if cmd == nil || cmd.Kind != CSCreateRoom || cmd.Title != "lobby" {
		t.Fatalf("first frame was not dispatched as a command: %+v", cmd)
	}
	if d.Encoding() != EncodingText {
		t.Errorf("encoding = %v, want Text", d.Encoding())
	}
}

// TestDetectTextUnknownType tests that an unrecognized type still proves Text
func TestDetectTextUnknownType(t *testing.T) {
	t.Parallel()

	d := NewDecoder(EncodingUnset)
	_, err := d.Decode([]byte(`{"type":"CSDance"}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Decode() error = %v, want ErrUnknownKind", err)
	}
	if d.Encoding() != EncodingText {
		t.Errorf("encoding = %v, want Text", d.Encoding())
	}
}

// TestDetectBinary tests that an envelope first frame fixes Binary and primes the pending kind
func TestDetectBinary(t *testing.T) {
	t.Parallel()

	d := NewDecoder(EncodingUnset)
	envelope, payload := mustEncodeBinaryCommand(t, Command{Kind: CSName, Name: "alice"})

	cmd, err := d.Decode(envelope)
	if err != nil {
		t.Fatalf("envelope Decode() error = %v", err)
	}
	if cmd != nil {
		t.Fatalf("envelope yielded a command: %+v", cmd)
	}
	if d.Encoding() != EncodingBinary {
		t.Fatalf("encoding = %v, want Binary", d.Encoding())
	}

	// The very next frame must decode as the pending kind's payload.
	cmd, err = d.Decode(payload)
	if err != nil {
		t.Fatalf("payload Decode() error = %v", err)
	}
	if cmd == nil || cmd.Kind != CSName || cmd.Name != "alice" {
		t.Errorf("payload command = %+v, want CSName alice", cmd)
	}
}

// TestDetectFailure tests that a frame that is neither format is fatal
func TestDetectFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame []byte
	}{
		{name: "garbage", frame: []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00}},
		{name: "envelope naming a server event", frame: EncodeEnvelope(SCChat)},
		{name: "four bytes of noise", frame: []byte{0xFF, 0xFF, 0xFF, 0xFF}},
		{name: "empty frame", frame: []byte{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := NewDecoder(EncodingUnset)
			_, err := d.Decode(tt.frame)
			if !errors.Is(err, ErrDetectFailed) {
				t.Errorf("Decode() error = %v, want ErrDetectFailed", err)
			}
			if d.Encoding() != EncodingUnset {
				t.Errorf("encoding = %v, want Unset after failed detection", d.Encoding())
			}
		})
	}
}

// TestStickyText tests that a Text connection never re-detects, even for
// frames that would parse as a Binary envelope
func TestStickyText(t *testing.T) {
	t.Parallel()

	d := NewDecoder(EncodingUnset)
	if _, err := d.Decode(mustEncodeTextCommand(t, Command{Kind: CSRooms})); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	// A well-formed Binary envelope must now be rejected as malformed Text.
	if _, err := d.Decode(EncodeEnvelope(CSChat)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Decode() error = %v, want ErrMalformed", err)
	}
	if d.Encoding() != EncodingText {
		t.Errorf("encoding = %v, want Text", d.Encoding())
	}

	// And the connection keeps decoding Text afterwards.
	cmd, err := d.Decode(mustEncodeTextCommand(t, Command{Kind: CSChat, Text: "still here"}))
	if err != nil || cmd == nil || cmd.Text != "still here" {
		t.Errorf("Decode() = %+v, %v; want CSChat", cmd, err)
	}
}

// TestBinaryUnknownEnvelopeRecovers tests that an unrecognized envelope
// leaves the decoder awaiting a fresh envelope instead of corrupting state
func TestBinaryUnknownEnvelopeRecovers(t *testing.T) {
	t.Parallel()

	d := NewDecoder(EncodingBinary)

	if _, err := d.Decode([]byte{0x00, 0x00, 0x00, 0x99}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Decode() error = %v, want ErrUnknownKind", err)
	}

	// An event kind is recognized but is not a command either.
	if _, err := d.Decode(EncodeEnvelope(SCSystemMessage)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Decode() error = %v, want ErrUnknownKind", err)
	}

	// State must not be corrupted: a valid command still goes through.
	envelope, payload := mustEncodeBinaryCommand(t, Command{Kind: CSChat, Text: "ok"})
	if _, err := d.Decode(envelope); err != nil {
		t.Fatalf("envelope Decode() error = %v", err)
	}
	cmd, err := d.Decode(payload)
	if err != nil || cmd == nil || cmd.Text != "ok" {
		t.Errorf("Decode() = %+v, %v; want CSChat ok", cmd, err)
	}
}

// TestBinaryBadPayloadResets tests that a payload parse failure resets the
// decoder to awaiting an envelope
func TestBinaryBadPayloadResets(t *testing.T) {
	t.Parallel()

	d := NewDecoder(EncodingBinary)

	if _, err := d.Decode(EncodeEnvelope(CSJoinRoom)); err != nil {
		t.Fatalf("envelope Decode() error = %v", err)
	}
	if _, err := d.Decode([]byte{0x01}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Decode() error = %v, want ErrMalformed", err)
	}

	// Next frame is an envelope again, not a payload.
	envelope, payload := mustEncodeBinaryCommand(t, Command{Kind: CSJoinRoom, RoomID: 3})
	if _, err := d.Decode(envelope); err != nil {
		t.Fatalf("envelope Decode() error = %v", err)
	}
	cmd, err := d.Decode(payload)
	if err != nil || cmd == nil || cmd.RoomID != 3 {
		t.Errorf("Decode() = %+v, %v; want CSJoinRoom 3", cmd, err)
	}
}

// TestPinnedEncodingSkipsDetection tests that a pinned decoder never detects
func TestPinnedEncodingSkipsDetection(t *testing.T) {
	t.Parallel()

	// Pinned Text: a Binary envelope is just malformed JSON.
	text := NewDecoder(EncodingText)
	if _, err := text.Decode(EncodeEnvelope(CSRooms)); !errors.Is(err, ErrMalformed) {
		t.Errorf("text Decode() error = %v, want ErrMalformed", err)
	}

	// Pinned Binary: a JSON frame is just a bad envelope.
	bin := NewDecoder(EncodingBinary)
	if _, err := bin.Decode([]byte(`{"type":"CSRooms"}`)); !errors.Is(err, ErrMalformed) {
		t.Errorf("binary Decode() error = %v, want ErrMalformed", err)
	}
}

// TestParseEncoding tests configuration format names
func TestParseEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		want      Encoding
		wantError bool
	}{
		{in: "", want: EncodingUnset},
		{in: "json", want: EncodingText},
		{in: "binary", want: EncodingBinary},
		{in: "protobuf", wantError: true},
		{in: "JSON", wantError: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run("value "+tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseEncoding(tt.in)
			if (err != nil) != tt.wantError {
				t.Fatalf("ParseEncoding(%q) error = %v, wantError %v", tt.in, err, tt.wantError)
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("ParseEncoding(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
