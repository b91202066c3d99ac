// Package server exposes the reading store over HTTP and websocket.
package server

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ericogr/plura-monitor/pkg/events"
	"github.com/ericogr/plura-monitor/pkg/sht4x"
	"github.com/ericogr/plura-monitor/pkg/store"
)

//go:embed dashboard.html
var dashboardHTML []byte

const shutdownTimeout = 5 * time.Second

// Legacy maps the fields of /api/voltage to store entries.
type Legacy struct {
	Voltage     store.ID
	RawVBat     store.ID
	RawFC       store.ID
	Temperature store.ID
	Humidity    store.ID
}

// HealthReporter reports the failure counter of a digital sensor.
type HealthReporter interface {
	Retry() sht4x.RetryState
}

// Options configures a Server.
type Options struct {
	Store  *store.Store
	Hub    *events.Hub
	Legacy Legacy
	Health map[string]HealthReporter
	// Scheme names the active calibration scheme of the analog unit.
	Scheme  string
	Version string
}

// Server only reads from the store; it never blocks the sampling loop.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader
	router   *gin.Engine
}

func New(opts Options) *Server {
	if opts.Hub == nil {
		opts.Hub = events.NewHub()
	}
	s := &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.router = s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/", s.getDashboard)
	router.GET("/api/voltage", s.getVoltage)
	router.GET("/api/readings", s.getReadings)
	router.GET("/api/readings/:channel", s.getReading)
	router.GET("/api/status", s.getStatus)
	router.GET("/ws", s.handleWebSocket)
	return router
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on listen until ctx is done.
func (s *Server) Run(ctx context.Context, listen string) error {
	srv := &http.Server{Addr: listen, Handler: s.router}
	errc := make(chan error, 1)
	go func() {
		logrus.Infof("http server listening on %s", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
