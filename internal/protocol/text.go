package protocol

import (
	"encoding/json"
	"fmt"
)

// textCommand is the JSON shape of every client-to-server message: one object
// per frame with a "type" discriminator plus the command's fields.
type textCommand struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Title  string `json:"title,omitempty"`
	RoomID uint32 `json:"roomId,omitempty"`
	Text   string `json:"text,omitempty"`
}

type textRoomInfo struct {
	RoomID  uint32   `json:"roomId"`
	Title   string   `json:"title"`
	Members []string `json:"members"`
}

type textRoomsResult struct {
	Type  string         `json:"type"`
	Rooms []textRoomInfo `json:"rooms"`
}

type textChat struct {
	Type   string `json:"type"`
	Member string `json:"member"`
	Text   string `json:"text"`
}

type textNotice struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// DecodeText decodes one Text frame into a Command.
//
// A frame that is not a JSON object carrying a "type" field fails with
// ErrMalformed; a frame whose type is not a client command kind fails with
// ErrUnknownKind. The distinction matters during format detection: the first
// tells the detector to try Binary, the second proves the peer speaks Text.
func DecodeText(data []byte) (*Command, error) {
	var msg textCommand
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type discriminator", ErrMalformed)
	}

	kind, ok := KindByName(msg.Type)
	if !ok || !kind.IsClient() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, msg.Type)
	}

	return &Command{
		Kind:   kind,
		Name:   msg.Name,
		Title:  msg.Title,
		RoomID: msg.RoomID,
		Text:   msg.Text,
	}, nil
}

// EncodeText serializes an event as one Text frame payload.
func EncodeText(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case RoomsResult:
		rooms := make([]textRoomInfo, 0, len(e.Rooms))
		for _, r := range e.Rooms {
			members := r.Members
			if members == nil {
				members = []string{}
			}
			rooms = append(rooms, textRoomInfo{RoomID: r.RoomID, Title: r.Title, Members: members})
		}
		return json.Marshal(textRoomsResult{Type: SCRoomsResult.String(), Rooms: rooms})

	case ChatEvent:
		return json.Marshal(textChat{Type: SCChat.String(), Member: e.Member, Text: e.Text})

	case SystemNotice:
		return json.Marshal(textNotice{Type: SCSystemMessage.String(), Text: e.Text})

	default:
		return nil, fmt.Errorf("unsupported event type %T", ev)
	}
}

// EncodeTextCommand serializes a client command as one Text frame payload.
// Servers never send commands; this is for client implementations and tests.
func EncodeTextCommand(cmd *Command) ([]byte, error) {
	if !cmd.Kind.IsClient() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, cmd.Kind)
	}
	return json.Marshal(textCommand{
		Type:   cmd.Kind.String(),
		Name:   cmd.Name,
		Title:  cmd.Title,
		RoomID: cmd.RoomID,
		Text:   cmd.Text,
	})
}
