package hub

import "github.com/rawburt/chatd/protocol"

// Event is a command event a Connection Actor submits to the Hub. The Hub
// is the only goroutine that ever reads these off its queue, which is what
// gives §4.4's total-order guarantee.
type Event interface {
	isEvent()
}

// SessionOpened registers a freshly accepted connection with the Hub.
type SessionOpened struct {
	Handle Handle
}

// InboundOk carries a successfully parsed client message.
type InboundOk struct {
	ID  SessionID
	Msg *protocol.Message
}

// InboundErr carries a line that failed to parse. It does not terminate the
// session; the Hub turns it into an ERROR reply.
type InboundErr struct {
	ID  SessionID
	Err error
}

// SessionClosed tells the Hub a Connection Actor has torn itself down (QUIT,
// socket error, EOF, or liveness timeout) so the Hub can free its table
// entries and fan out LEFT to any rooms it was a member of.
type SessionClosed struct {
	ID     SessionID
	Reason CloseReason
}

func (SessionOpened) isEvent() {}
func (InboundOk) isEvent()     {}
func (InboundErr) isEvent()    {}
func (SessionClosed) isEvent() {}
