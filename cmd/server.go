package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rawburt/chatd/conn"
	"github.com/rawburt/chatd/hub"
	"github.com/rawburt/chatd/internal/env"
	"github.com/rawburt/chatd/storage"
	"github.com/rawburt/chatd/transport"
)

var (
	// The host to listen on
	host string

	// The port to serve /health and /metrics on
	statusPort string

	// The port to listen for tcp clients on
	port int
)

func init() {
	flags := ServerCmd.PersistentFlags()

	flags.IntVarP(&port, "port", "p", 5456, "The port to listen for client connections on")
	flags.StringVar(&statusPort, "status-port", "6660", "The port to serve /health and /metrics on")
	flags.StringVarP(&host, "host", "a", "0.0.0.0", "The host to listen on")
}

var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the chatd server",
	Long: `Start the chatd server

Usage
	chatd server

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer signalStop()

		log, err := env.MakeLogger()
		if err != nil {
			return err
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("set file limit", zap.Uint64("fileLimit", fileLimit))

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		store := storage.NewInmemoryStore()
		h := hub.New(log.Named("hub"), store)
		go h.Run()

		router := setupRouter(conf.DebugHTTP, log, store)

		s := &http.Server{
			Addr:    net.JoinHostPort(conf.StatusHost, statusPort),
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("status http server errored", zap.Error(err))
			}
		}()

		tcp := transport.NewTCP(transport.Options{
			Host:         host,
			Port:         port,
			NumListeners: conf.NumListeners,
			Hub:          h,
			ConnOptions: conn.Options{
				IdleTimeout:      conf.IdleTimeout,
				PongDeadline:     conf.PongDeadline,
				OutboundCapacity: conf.OutboundCapacity,
			},
			Log: log.Named("transport"),
		})

		if err := tcp.Start(ctx); err != nil {
			return err
		}

		log.Info("listening",
			zap.String("host", host),
			zap.Int("port", port),
			zap.String("statusPort", statusPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("shutting down gracefully, press Ctrl+C again to force")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("status http server forced to shutdown", zap.Error(err))
		}

		if err := tcp.Close(); err != nil {
			log.Error("tcp server forced to shutdown", zap.Error(err))
		}

		h.Stop()
		h.Wait()

		log.Info("exiting")
		return nil
	},
}

func setupRouter(debugHTTP bool, log *zap.Logger, store storage.Store) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - Logs to stdout.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))

	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health"},
	}))

	// Logs all panics to error log, with the stack trace.
	r.Use(ginzap.RecoveryWithZap(log, true))

	r.GET("/health", func(c *gin.Context) {
		snap, err := store.Snapshot()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Data(http.StatusOK, "application/json", snap)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
