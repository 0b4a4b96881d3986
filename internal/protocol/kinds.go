package protocol

// Kind identifies a command or event on the wire. In the Binary format the
// kind travels as a 4-byte big-endian envelope frame; in the Text format it
// travels as the "type" discriminator string.
type Kind uint32

// Client to server command kinds.
const (
	KindNone Kind = 0

	CSName       Kind = 0x01
	CSRooms      Kind = 0x02
	CSCreateRoom Kind = 0x03
	CSJoinRoom   Kind = 0x04
	CSLeaveRoom  Kind = 0x05
	CSChat       Kind = 0x06
	CSShutdown   Kind = 0x07
)

// Server to client event kinds.
const (
	SCRoomsResult   Kind = 0x81
	SCChat          Kind = 0x82
	SCSystemMessage Kind = 0x83
)

var kindNames = map[Kind]string{
	CSName:          "CSName",
	CSRooms:         "CSRooms",
	CSCreateRoom:    "CSCreateRoom",
	CSJoinRoom:      "CSJoinRoom",
	CSLeaveRoom:     "CSLeaveRoom",
	CSChat:          "CSChat",
	CSShutdown:      "CSShutdown",
	SCRoomsResult:   "SCRoomsResult",
	SCChat:          "SCChat",
	SCSystemMessage: "SCSystemMessage",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// String returns the wire discriminator for k, or "unknown" for an
// unrecognized tag.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsClient reports whether k is a recognized client-to-server command kind.
func (k Kind) IsClient() bool {
	return k >= CSName && k <= CSShutdown
}

// KindByName resolves a Text "type" discriminator to its kind.
func KindByName(name string) (Kind, bool) {
	k, ok := kindsByName[name]
	return k, ok
}
