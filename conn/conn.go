// Package conn implements the Connection Actor: the three goroutines
// (reader, writer, liveness) that own one TCP connection's lifecycle and
// translate between wire bytes and hub.Event/protocol.Message values. A Conn
// never touches the name table or room tables directly — it only talks to
// the Hub through the hub.Handle it hands over in SessionOpened.
package conn

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rawburt/chatd/hub"
	"github.com/rawburt/chatd/protocol"
)

// Submitter is the subset of *hub.Hub a Conn needs, so tests can supply a
// fake without standing up a whole Hub.
type Submitter interface {
	Submit(ev hub.Event)
}

// Options configures a Conn's liveness timers and outbound queue depth.
type Options struct {
	IdleTimeout      time.Duration
	PongDeadline     time.Duration
	OutboundCapacity int
}

func (o Options) withDefaults() Options {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Second
	}

	if o.PongDeadline <= 0 {
		o.PongDeadline = 30 * time.Second
	}

	if o.OutboundCapacity <= 0 {
		o.OutboundCapacity = hub.OutboundCapacity
	}

	return o
}

// Conn is one connection's Reader, Writer and Liveness loops, sharing a
// single cancellation scope.
type Conn struct {
	ctx    context.Context
	cancel context.CancelFunc

	loopWaiter sync.WaitGroup
	closeOnce  sync.Once

	id   hub.SessionID
	nc   net.Conn
	hub  Submitter
	opts Options
	log  *zap.Logger

	outbound chan *protocol.Message

	idleResetCh  chan struct{}
	pongCancelCh chan struct{}
}

// New constructs a Conn bound to nc, under parentCtx. The caller must call
// Start to run it, and should arrange for Close to be called if the
// listener itself is shutting down.
func New(parentCtx context.Context, id hub.SessionID, nc net.Conn, h Submitter, opts Options, log *zap.Logger) *Conn {
	ctx, cancel := context.WithCancel(parentCtx)
	opts = opts.withDefaults()

	return &Conn{
		ctx:          ctx,
		cancel:       cancel,
		id:           id,
		nc:           nc,
		hub:          h,
		opts:         opts,
		log:          log,
		outbound:     make(chan *protocol.Message, opts.OutboundCapacity),
		idleResetCh:  make(chan struct{}, 1),
		pongCancelCh: make(chan struct{}, 1),
	}
}

// Handle returns the hub.Handle this Conn exposes to the Hub. Call it once,
// before submitting SessionOpened.
func (c *Conn) Handle() hub.Handle {
	return hub.Handle{
		ID:            c.id,
		Outbound:      c.outbound,
		ResetLiveness: c.cancelPongDeadline,
		Shutdown:      c.shutdown,
	}
}

// Start runs the reader, writer and liveness loops and blocks until all
// three have exited, which only happens once the connection's context is
// cancelled (by Close, by the Hub's Shutdown callback, or by a read/write
// error).
func (c *Conn) Start() {
	c.loopWaiter.Add(3)

	go func() {
		defer c.loopWaiter.Done()
		c.readLoop()
	}()

	go func() {
		defer c.loopWaiter.Done()
		c.writeLoop()
	}()

	go func() {
		defer c.loopWaiter.Done()
		c.livenessLoop()
	}()

	c.loopWaiter.Wait()

	c.nc.Close()
}

// Close forces this Conn to tear down, for use by a listener that is
// shutting down all of its active connections.
func (c *Conn) Close() {
	c.shutdown(hub.ReasonShutdown)
}

func (c *Conn) shutdown(reason hub.CloseReason) {
	c.closeOnce.Do(func() {
		c.log.Debug("tearing down connection", zap.String("reason", string(reason)))
		c.cancel()

		// Unblock a goroutine parked in a blocking Read by closing the read
		// half; the writer gets a grace period to drain before Start closes
		// the socket outright.
		if tc, ok := c.nc.(*net.TCPConn); ok {
			_ = tc.CloseRead()
		} else {
			_ = c.nc.Close()
		}
	})
}

func (c *Conn) readLoop() {
	defer c.hub.Submit(hub.SessionClosed{ID: c.id, Reason: hub.ReasonError})
	defer c.shutdown(hub.ReasonError)

	r := bufio.NewReaderSize(c.nc, protocol.MaxMessageBytes)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		line, err := protocol.ReadLine(r)
		if err != nil {
			if errors.Is(err, protocol.ErrTooLong) {
				c.resetIdleTimer()
				c.hub.Submit(hub.InboundErr{ID: c.id, Err: err})
				continue
			}

			return
		}

		c.resetIdleTimer()

		msg, perr := protocol.Parse(line)
		if perr != nil {
			c.hub.Submit(hub.InboundErr{ID: c.id, Err: perr})
			continue
		}

		c.hub.Submit(hub.InboundOk{ID: c.id, Msg: msg})
	}
}

func (c *Conn) writeLoop() {
	defer func() {
		if tc, ok := c.nc.(*net.TCPConn); ok {
			_ = tc.CloseWrite()
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.drain()
			return

		case msg := <-c.outbound:
			c.write(msg)
		}
	}
}

// drain gives already-enqueued outbound messages a short grace period to
// reach the wire once the connection starts tearing down, rather than
// dropping a final ERROR or LEFT fan-out on the floor.
func (c *Conn) drain() {
	grace := time.NewTimer(200 * time.Millisecond)
	defer grace.Stop()

	for {
		select {
		case msg := <-c.outbound:
			c.write(msg)

		case <-grace.C:
			return
		}
	}
}

func (c *Conn) write(msg *protocol.Message) {
	line, err := protocol.Serialize(msg)
	if err != nil {
		c.log.Warn("refusing to serialize outbound message", zap.Error(err))
		return
	}

	if _, err := c.nc.Write(line); err != nil {
		c.log.Debug("write failed", zap.Error(err))
		c.shutdown(hub.ReasonError)
	}
}

func (c *Conn) resetIdleTimer() {
	select {
	case c.idleResetCh <- struct{}{}:
	default:
	}
}

func (c *Conn) cancelPongDeadline() {
	select {
	case c.pongCancelCh <- struct{}{}:
	default:
	}
}

// livenessLoop implements idle_timeout/pong_deadline: a quiet connection is
// sent a PING and given pong_deadline to answer before being declared
// timed out. Every complete inbound line (including one rejected as too
// long) resets idle_timeout and cancels a pending pong_deadline, whether or
// not it parses; bytes of a line still waiting for its '\n' do not.
func (c *Conn) livenessLoop() {
	idle := time.NewTimer(c.opts.IdleTimeout)
	defer idle.Stop()

	var pong *time.Timer

	stopPong := func() {
		if pong != nil {
			pong.Stop()
			pong = nil
		}
	}
	defer stopPong()

	for {
		var pongC <-chan time.Time
		if pong != nil {
			pongC = pong.C
		}

		select {
		case <-c.ctx.Done():
			return

		case <-idle.C:
			c.enqueuePing()
			stopPong()
			pong = time.NewTimer(c.opts.PongDeadline)

		case <-pongC:
			c.hub.Submit(hub.SessionClosed{ID: c.id, Reason: hub.ReasonTimeout})
			c.shutdown(hub.ReasonTimeout)
			return

		case <-c.idleResetCh:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}

			idle.Reset(c.opts.IdleTimeout)
			stopPong()

		case <-c.pongCancelCh:
			stopPong()
		}
	}
}

func (c *Conn) enqueuePing() {
	select {
	case c.outbound <- protocol.NewMessage(protocol.CmdPing):
	case <-time.After(hub.SendTimeout):
	case <-c.ctx.Done():
	}
}
