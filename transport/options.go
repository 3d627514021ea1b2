package transport

import (
	"go.uber.org/zap"

	"github.com/rawburt/chatd/conn"
	"github.com/rawburt/chatd/hub"
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on
	Port int

	// NumListeners is the number of acceptor goroutines sharing the
	// listening port via SO_REUSEPORT. Defaults to runtime.NumCPU().
	NumListeners int

	// ConnOptions configures each accepted connection's liveness timers
	// and outbound queue depth.
	ConnOptions conn.Options

	Hub *hub.Hub

	Log *zap.Logger
}
