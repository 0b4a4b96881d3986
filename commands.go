package parley

// Standard error messages
const (
	// Protocol errors
	ErrInvalidMessageFormat = "invalid message format"
	ErrUnknownCommand       = "unknown command"
	ErrFormatDetection      = "unable to detect message format"

	// Room precondition violations
	ErrAlreadyInRoom = "cannot enter a room while inside one"
	ErrNoSuchRoom    = "room does not exist"
	ErrNotInRoom     = "not currently in a room"

	// Connection errors
	ErrConnectionClosed     = "connection is closed"
	ErrServerAlreadyRunning = "server already running"
	ErrServerStopped        = "server is stopped"
	ErrFailedToEncode       = "failed to encode message"
)

// DefaultRoomTitle is used when a CSCreateRoom command carries an empty title.
const DefaultRoomTitle = "Untitled Room"
