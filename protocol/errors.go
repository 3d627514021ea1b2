package protocol

import "errors"

var (
	// ErrTooLong is returned by Parse when the line (plus its terminating
	// '\n') would exceed MaxMessageBytes.
	ErrTooLong = errors.New("message too long")

	// ErrBadCommand is returned when the command token is missing or isn't
	// one or more uppercase ASCII letters.
	ErrBadCommand = errors.New("bad command")

	// ErrBadIdent is returned when a user or room token's ident doesn't
	// satisfy the 2-19 byte [A-Za-z0-9_-] grammar.
	ErrBadIdent = errors.New("bad ident")

	// ErrBadPrefix is returned when a leading '#' or '@' token isn't
	// followed by the shape the prefix grammar requires.
	ErrBadPrefix = errors.New("bad prefix")

	// ErrMessageTooLong is returned by Serialize when the encoded message
	// would exceed MaxMessageBytes. Seeing this indicates a programmer
	// error: callers are expected to keep payloads within budget.
	ErrMessageTooLong = errors.New("serialized message too long")
)

// MaxMessageBytes is the largest a serialized message (including its
// trailing '\n') may be.
const MaxMessageBytes = 1024
