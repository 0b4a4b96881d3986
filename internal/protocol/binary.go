package protocol

import (
	"encoding/binary"
	"fmt"
)

const envelopeSize = 4

// EncodeEnvelope encodes a kind tag as a 4-byte big-endian envelope payload.
func EncodeEnvelope(k Kind) []byte {
	out := make([]byte, envelopeSize)
	binary.BigEndian.PutUint32(out, uint32(k))
	return out
}

// DecodeEnvelope decodes an envelope payload. The frame must be exactly
// 4 bytes and name a recognized kind.
func DecodeEnvelope(data []byte) (Kind, error) {
	if len(data) != envelopeSize {
		return KindNone, fmt.Errorf("%w: envelope must be %d bytes, got %d", ErrMalformed, envelopeSize, len(data))
	}

	k := Kind(binary.BigEndian.Uint32(data))
	if _, ok := kindNames[k]; !ok {
		return KindNone, fmt.Errorf("%w: 0x%x", ErrUnknownKind, uint32(k))
	}
	return k, nil
}

// Binary payload field layout: strings are a 2-byte big-endian length followed
// by that many UTF-8 bytes; numeric ids are 4-byte big-endian; lists are a
// 2-byte big-endian count followed by the entries.

func appendString(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

func readString(data []byte, off int) (string, int, error) {
	if len(data) < off+2 {
		return "", 0, fmt.Errorf("%w: truncated string length", ErrMalformed)
	}
	n := int(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	if len(data) < off+n {
		return "", 0, fmt.Errorf("%w: truncated string", ErrMalformed)
	}
	return string(data[off : off+n]), off + n, nil
}

// DecodeBinaryCommand decodes the payload frame of a two-frame Binary command,
// using the kind announced by its envelope. Trailing bytes beyond the kind's
// fields fail with ErrMalformed.
func DecodeBinaryCommand(k Kind, data []byte) (*Command, error) {
	cmd := &Command{Kind: k}
	off := 0
	var err error

	switch k {
	case CSName:
		if cmd.Name, off, err = readString(data, 0); err != nil {
			return nil, err
		}

	case CSCreateRoom:
		if cmd.Title, off, err = readString(data, 0); err != nil {
			return nil, err
		}

	case CSJoinRoom:
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: truncated room id", ErrMalformed)
		}
		cmd.RoomID = binary.BigEndian.Uint32(data[:4])
		off = 4

	case CSChat:
		if cmd.Text, off, err = readString(data, 0); err != nil {
			return nil, err
		}

	case CSRooms, CSLeaveRoom, CSShutdown:
		// No payload fields.

	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrUnknownKind, uint32(k))
	}

	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(data)-off)
	}
	return cmd, nil
}

// EncodeBinaryCommand serializes a client command as its two Binary frame
// payloads (envelope, payload). Servers never send commands; this is for
// client implementations and tests.
func EncodeBinaryCommand(cmd *Command) (envelope, payload []byte, err error) {
	if !cmd.Kind.IsClient() {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnknownKind, cmd.Kind)
	}

	switch cmd.Kind {
	case CSName:
		payload = appendString(nil, cmd.Name)
	case CSCreateRoom:
		payload = appendString(nil, cmd.Title)
	case CSJoinRoom:
		payload = binary.BigEndian.AppendUint32(nil, cmd.RoomID)
	case CSChat:
		payload = appendString(nil, cmd.Text)
	case CSRooms, CSLeaveRoom, CSShutdown:
		payload = []byte{}
	}
	return EncodeEnvelope(cmd.Kind), payload, nil
}

// EncodeBinaryEvent serializes an event as its two Binary frame payloads
// (envelope, payload).
func EncodeBinaryEvent(ev Event) (envelope, payload []byte, err error) {
	switch e := ev.(type) {
	case RoomsResult:
		payload = binary.BigEndian.AppendUint16(nil, uint16(len(e.Rooms)))
		for _, r := range e.Rooms {
			payload = binary.BigEndian.AppendUint32(payload, r.RoomID)
			payload = appendString(payload, r.Title)
			payload = binary.BigEndian.AppendUint16(payload, uint16(len(r.Members)))
			for _, m := range r.Members {
				payload = appendString(payload, m)
			}
		}

	case ChatEvent:
		payload = appendString(nil, e.Member)
		payload = appendString(payload, e.Text)

	case SystemNotice:
		payload = appendString(nil, e.Text)

	default:
		return nil, nil, fmt.Errorf("unsupported event type %T", ev)
	}
	return EncodeEnvelope(ev.EventKind()), payload, nil
}

// DecodeBinaryEvent decodes the payload frame of a two-frame Binary event,
// using the kind announced by its envelope.
func DecodeBinaryEvent(k Kind, data []byte) (Event, error) {
	switch k {
	case SCRoomsResult:
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: truncated room count", ErrMalformed)
		}
		count := int(binary.BigEndian.Uint16(data[:2]))
		off := 2
		rooms := make([]RoomInfo, 0, count)
		for i := 0; i < count; i++ {
			if len(data) < off+4 {
				return nil, fmt.Errorf("%w: truncated room id", ErrMalformed)
			}
			room := RoomInfo{RoomID: binary.BigEndian.Uint32(data[off : off+4])}
			off += 4

			var err error
			if room.Title, off, err = readString(data, off); err != nil {
				return nil, err
			}
			if len(data) < off+2 {
				return nil, fmt.Errorf("%w: truncated member count", ErrMalformed)
			}
			nMembers := int(binary.BigEndian.Uint16(data[off : off+2]))
			off += 2
			room.Members = make([]string, 0, nMembers)
			for j := 0; j < nMembers; j++ {
				var member string
				if member, off, err = readString(data, off); err != nil {
					return nil, err
				}
				room.Members = append(room.Members, member)
			}
			rooms = append(rooms, room)
		}
		if off != len(data) {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(data)-off)
		}
		return RoomsResult{Rooms: rooms}, nil

	case SCChat:
		member, off, err := readString(data, 0)
		if err != nil {
			return nil, err
		}
		text, off, err := readString(data, off)
		if err != nil {
			return nil, err
		}
		if off != len(data) {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(data)-off)
		}
		return ChatEvent{Member: member, Text: text}, nil

	case SCSystemMessage:
		text, off, err := readString(data, 0)
		if err != nil {
			return nil, err
		}
		if off != len(data) {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(data)-off)
		}
		return SystemNotice{Text: text}, nil

	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrUnknownKind, uint32(k))
	}
}
