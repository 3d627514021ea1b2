// Package transport runs the Server Driver's TCP acceptor pool: one
// SO_REUSEPORT listener per CPU, each accepting connections and handing
// them to a fresh conn.Conn wired into the shared Hub.
package transport

import (
	"context"
	"errors"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/zap"

	"github.com/rawburt/chatd/conn"
	"github.com/rawburt/chatd/hub"
)

type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr string

	numListeners int
	listeners    []*TCPListener

	hub      *hub.Hub
	connOpts conn.Options
	nextID   uint64

	log *zap.Logger
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners
	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		numListeners: numListeners,
		listeners:    make([]*TCPListener, 0, numListeners),
		hub:          options.Hub,
		connOpts:     options.ConnOptions,
		log:          options.Log,
	}
}

func (w *TCP) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	w.cancel = cancel

	w.log.Info("starting tcp listeners", zap.Int("count", w.numListeners), zap.String("addr", w.addr))

	for i := 0; i < w.numListeners; i++ {
		w.startListener(ctx, w.addr)
	}

	return nil
}

func (w *TCP) startListener(ctx context.Context, addr string) {
	w.stopWaiter.Add(1)

	listener := NewTCPListener(
		ctx,
		addr,
		w.hub,
		w.connOpts,
		&w.nextID,
		w.log.Named("listener").With(zap.Int("listener", len(w.listeners))),
	)

	w.listeners = append(w.listeners, listener)

	go func() {
		defer w.stopWaiter.Done()

		if err := listener.Listen(); err != nil {
			w.log.Error("listener stopped", zap.Error(err))
		}
	}()
}

// Close immediately closes all active listeners and connections.
func (w *TCP) Close() error {
	w.log.Info("stopping tcp server")
	w.cancel()

	for _, listener := range w.listeners {
		listener.Close()
	}

	w.stopWaiter.Wait()

	return nil
}

type TCPListener struct {
	ctx context.Context

	addr string
	log  *zap.Logger

	mu          sync.Mutex
	activeConns map[*conn.Conn]struct{}

	hub      *hub.Hub
	connOpts conn.Options
	nextID   *uint64
}

func NewTCPListener(
	ctx context.Context,
	addr string,
	h *hub.Hub,
	connOpts conn.Options,
	nextID *uint64,
	log *zap.Logger,
) *TCPListener {
	return &TCPListener{
		ctx:         ctx,
		activeConns: make(map[*conn.Conn]struct{}),
		addr:        addr,
		hub:         h,
		connOpts:    connOpts,
		nextID:      nextID,
		log:         log,
	}
}

func (t *TCPListener) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for c := range t.activeConns {
		c.Close()
		delete(t.activeConns, c)
	}

	return nil
}

func (t *TCPListener) Listen() error {
	listener, err := reuseport.Listen("tcp", t.addr)
	if err != nil {
		return err
	}

	defer listener.Close()

	var loopWaiter sync.WaitGroup

	go func() {
		<-t.ctx.Done()

		t.log.Info("closing listener")
		if err := listener.Close(); err != nil {
			t.log.Warn("tcp listener did not close cleanly", zap.Error(err))
		}
	}()

	for {
		select {
		case <-t.ctx.Done():
			t.log.Info("waiting for connections to drain")
			loopWaiter.Wait()

			t.log.Info("listener stopped")
			return nil

		default:
			nc, err := listener.Accept()
			if err != nil {
				netOpError := new(net.OpError)

				if errors.As(err, &netOpError) && netOpError.Unwrap().Error() == "use of closed network connection" {
					return nil
				}

				return err
			}

			id := hub.SessionID(atomic.AddUint64(t.nextID, 1))
			c := conn.New(t.ctx, id, nc, t.hub, t.connOpts, t.log.Named("conn").With(zap.Uint64("session", uint64(id))))

			t.addConn(c)
			t.hub.Submit(hub.SessionOpened{Handle: c.Handle()})

			loopWaiter.Add(1)

			go func() {
				defer loopWaiter.Done()
				defer t.removeConn(c)

				c.Start()
			}()
		}
	}
}

func (t *TCPListener) addConn(c *conn.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.activeConns[c] = struct{}{}
}

func (t *TCPListener) removeConn(c *conn.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.activeConns, c)
}
