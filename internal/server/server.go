package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"ptzctl/internal/preset"
	"ptzctl/internal/ptz"
)

const maxReconnectDelay = 30 * time.Second

// Dialer opens a connection to the PTZ head.
type Dialer func(ctx context.Context) (ptz.Device, error)

// Config for the server
type Config struct {
	ListenAddr      string
	ControlProtocol string // reported in status, e.g. "visca"

	// CalibrateOnConnect runs hard origin then go-home whenever a device is bound
	// while the controller is uncalibrated.
	CalibrateOnConnect bool
}

// Server exposes a controller over HTTP and WebSocket.
type Server struct {
	cfg       Config
	ctrl      *ptz.Controller
	presets   preset.Store
	log       *slog.Logger
	dial      Dialer
	clients   map[*Client]bool
	clientsMu sync.RWMutex
	upgrader  websocket.Upgrader
	http      *http.Server

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	reconnecting atomic.Bool
	retryDelay   func(attempt int) time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithDialer lets the server reconnect the device when it is missing or failing.
func WithDialer(d Dialer) Option {
	return func(s *Server) { s.dial = d }
}

// New creates a new server instance. Attach a controller before serving.
func New(cfg Config, presets preset.Store, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		presets: presets,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		clients: make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local use
			},
		},
		ctx:    ctx,
		cancel: cancel,
		retryDelay: func(attempt int) time.Duration {
			return min(time.Duration(1<<uint(attempt-1))*time.Second, maxReconnectDelay)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "server")
	return s
}

// Attach sets the controller served. It must be called before Handler or Start.
func (s *Server) Attach(ctrl *ptz.Controller) {
	s.ctrl = ctrl
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWebSocket)

	r.Get("/status", s.handleStatus)
	r.Get("/pose", s.handlePose)
	r.Get("/move", s.handleMove)
	r.Post("/move", s.handleMove)
	r.Post("/move/relative", s.handleMoveRelative)
	r.Post("/move/absolute", s.handleMoveAbsolute)
	r.Get("/origin", s.handleOrigin)
	r.Post("/origin", s.handleOrigin)
	r.Get("/home", s.handleHome)
	r.Post("/home", s.handleHome)
	r.Post("/stop", s.handleStop)

	r.Route("/presets", func(r chi.Router) {
		r.Get("/", s.handleListPresets)
		r.Get("/{name}", s.handleGetPreset)
		r.Put("/{name}", s.handleSavePreset)
		r.Delete("/{name}", s.handleDeletePreset)
		r.Post("/{name}/recall", s.handleRecallPreset)
	})
	return r
}

// Start brings the device up and serves until Stop.
func (s *Server) Start() error {
	s.deviceReady()

	s.http = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("server starting", "addr", s.cfg.ListenAddr)
	return s.http.ListenAndServe()
}

// deviceReady runs startup calibration when a device is bound, or starts the
// reconnect loop when none is.
func (s *Server) deviceReady() {
	if s.ctrl.Status().DeviceBound {
		s.afterConnect()
		return
	}
	s.reconnect()
}

// Stop stops the server
func (s *Server) Stop() {
	s.cancel()

	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.http.Shutdown(ctx); err != nil {
			s.log.Warn("http shutdown", "error", err)
		}
		cancel()
	}

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clientsMu.Unlock()

	s.wg.Wait()
}

// BroadcastPose sends p to every WebSocket client. It never blocks, so it can be used
// as the controller's commit hook.
func (s *Server) BroadcastPose(p ptz.Pose) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for client := range s.clients {
		client.sendPose(p)
	}
}

// goTracked runs fn tracked by the server's wait group. Nothing new starts after Stop.
func (s *Server) goTracked(fn func()) {
	if s.ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// reconnect starts the reconnect loop unless one is running.
func (s *Server) reconnect() {
	if s.dial == nil || !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	s.goTracked(func() {
		defer s.reconnecting.Store(false)
		s.reconnectLoop()
	})
}

// reconnectLoop dials with exponential backoff until a device is bound.
func (s *Server) reconnectLoop() {
	for attempt := 1; ; attempt++ {
		dev, err := s.dial(s.ctx)
		if err == nil {
			if prev := s.ctrl.Bind(dev); prev != nil {
				prev.Close()
			}
			s.log.Info("device connected", "attempt", attempt)
			s.afterConnect()
			return
		}

		delay := s.retryDelay(attempt)
		s.log.Warn("device connect failed", "attempt", attempt, "retry_in", delay, "error", err)

		t := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// afterConnect runs hard origin then go-home when the estimate is uncalibrated.
func (s *Server) afterConnect() {
	if !s.cfg.CalibrateOnConnect || s.ctrl.Status().Calibrated {
		return
	}
	s.goTracked(func() {
		if _, err := s.ctrl.CalibrateHardOrigin(s.ctx, true); err != nil {
			s.log.Warn("startup calibration failed", "error", err)
			return
		}
		if _, err := s.ctrl.GoHome(s.ctx); err != nil {
			s.log.Warn("go home failed", "error", err)
			return
		}
		s.log.Info("calibrated and homed")
	})
}

// checkDevice starts a reconnect when err reports the device unusable.
func (s *Server) checkDevice(err error) {
	if errors.Is(err, ptz.ErrDeviceUnavailable) && !errors.Is(err, ptz.ErrClosed) {
		s.reconnect()
	}
}
