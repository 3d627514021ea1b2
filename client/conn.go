// Package client implements the thin Client Driver: it forwards typed lines
// to the server verbatim, prints whatever the server sends back, and
// auto-replies to PING with PONG without the caller having to do anything.
// There are no request IDs in this protocol, so unlike a request/response
// client there is no bookkeeping to match a reply back to its request —
// inbound and outbound lines are simply interleaved.
package client

import (
	"bufio"
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/rawburt/chatd/protocol"
)

// Conn is a connected chat client. Inbound returns every message the server
// sends, including PING (so a caller watching the stream can show it),
// though the PONG reply is already sent automatically and is not delivered
// on Inbound.
type Conn struct {
	ctx    context.Context
	cancel context.CancelFunc

	conn net.Conn

	inbound chan *protocol.Message

	log *zap.Logger
}

func New(log *zap.Logger) *Conn {
	return &Conn{
		log:     log,
		inbound: make(chan *protocol.Message, 64),
	}
}

// Connect dials addr and starts the read loop. The Conn's context (see Done)
// is derived from ctx and is cancelled when the read loop exits.
func (c *Conn) Connect(ctx context.Context, addr string) error {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}

	c.conn = nc
	c.ctx, c.cancel = context.WithCancel(ctx)

	go c.readLoop()

	return nil
}

// Disconnect closes the underlying connection and stops the read loop.
func (c *Conn) Disconnect() error {
	c.cancel()
	return c.conn.Close()
}

// Inbound delivers every message received from the server, in order.
func (c *Conn) Inbound() <-chan *protocol.Message {
	return c.inbound
}

// Done is closed when the connection is closed locally by Disconnect, when
// the server hangs up and the read loop exits, or when the context passed
// to Connect is cancelled.
func (c *Conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Send writes a pre-built message to the server.
func (c *Conn) Send(msg *protocol.Message) error {
	line, err := protocol.Serialize(msg)
	if err != nil {
		return err
	}

	_, err = c.conn.Write(line)
	return err
}

// SendLine parses and forwards a raw line of user input verbatim, the way
// stdin input is typed by a human at the prompt.
func (c *Conn) SendLine(line []byte) error {
	msg, err := protocol.Parse(line)
	if err != nil {
		return err
	}

	return c.Send(msg)
}

func (c *Conn) readLoop() {
	defer c.cancel()

	log := c.log.Named("readLoop")

	r := bufio.NewReaderSize(c.conn, protocol.MaxMessageBytes)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		line, err := protocol.ReadLine(r)
		if err != nil {
			log.Debug("server connection closed", zap.Error(err))
			return
		}

		msg, err := protocol.Parse(line)
		if err != nil {
			log.Warn("failed to parse server message", zap.Error(err))
			continue
		}

		if msg.Command == protocol.CmdPing {
			if err := c.Send(protocol.NewMessage(protocol.CmdPong)); err != nil {
				log.Warn("failed to reply to PING", zap.Error(err))
			}
		}

		select {
		case c.inbound <- msg:
		case <-c.ctx.Done():
			return
		}
	}
}
