package hub

import (
	"time"

	"github.com/rawburt/chatd/protocol"
)

// State is a session's place in the registration state machine of
// §4.3: Connected, Registered, Closing.
type State int

const (
	StateConnected State = iota
	StateRegistered
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateRegistered:
		return "registered"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// CloseReason explains why a session was torn down.
type CloseReason string

const (
	ReasonQuit     CloseReason = "quit"
	ReasonError    CloseReason = "error"
	ReasonTimeout  CloseReason = "timeout"
	ReasonSlow     CloseReason = "slow"
	ReasonShutdown CloseReason = "shutdown"
)

// SessionID is a stable handle for a session, unique for the process
// lifetime of the Hub. Rooms and the name table key off of it instead of
// chasing pointers between sessions.
type SessionID uint64

// SendTimeout bounds how long the Hub will wait to enqueue a message onto
// a session's outbound channel before declaring it Slow.
const SendTimeout = 100 * time.Millisecond

// OutboundCapacity is the default buffered capacity of a session's
// outbound channel.
const OutboundCapacity = 64

// Handle is how the Hub talks back to a session's Connection Actor. The
// Connection Actor constructs one of these and hands it to the Hub via
// SessionOpened; the Hub never reaches past it into actor internals.
type Handle struct {
	ID SessionID

	// Outbound is written to by the Hub, and by the Connection Actor's
	// liveness loop when it enqueues a PING, and drained by the Connection
	// Actor's writer loop (single consumer).
	Outbound chan *protocol.Message

	// ResetLiveness cancels any outstanding pong_deadline timer; called
	// when the Hub processes this session's PONG.
	ResetLiveness func()

	// Shutdown tells the Connection Actor to begin tearing down, for the
	// given reason. It must not block.
	Shutdown func(reason CloseReason)
}

// session is the Hub's private record of one connection. It is only ever
// touched from the Hub's single goroutine.
type session struct {
	handle Handle
	name   string // ident without '@'; empty until registered
	state  State
	rooms  map[string]struct{} // room idents this session has joined
}

func newSession(h Handle) *session {
	return &session{
		handle: h,
		state:  StateConnected,
		rooms:  make(map[string]struct{}),
	}
}

func (s *session) user() protocol.User {
	u, _ := protocol.NewUser([]byte("@" + s.name))
	return u
}
