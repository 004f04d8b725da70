// Package server exposes agents over HTTP: one WebSocket route per agent
// name plus key check, health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"agentchat/agent"
	"agentchat/config"
	"agentchat/protocol"
	"agentchat/provider"
)

// AgentClass is the only agent class served under /agents/:agent/:name.
const AgentClass = "chat"

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type Server struct {
	e        *echo.Echo
	cfg      *config.Config
	hub      *agent.Hub
	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

// New builds the HTTP server. metrics may be nil, in which case /metrics is
// not served.
func New(cfg *config.Config, hub *agent.Hub, metrics *Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Server] %s %s %d %s", v.Method, v.URI, v.Status, v.Latency)
			}
			return nil
		},
	}))

	s := &Server{
		e:   e,
		cfg: cfg,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// non-browser clients send no Origin; access is gated by the token
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	e.GET("/agents/:agent/:name", s.handleAgent)
	e.GET("/check-open-ai-key", s.checkKey)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.e }

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) checkKey(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"success": provider.CheckKey(s.cfg)})
}

func (s *Server) handleAgent(c echo.Context) error {
	if c.Param("agent") != AgentClass {
		return echo.NewHTTPError(http.StatusNotFound, "unknown agent class")
	}
	name := c.Param("name")
	if !validName.MatchString(name) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid agent name")
	}
	if !authorized(s.cfg.Server.AccessTokenHash, c.Request()) {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid access token")
	}

	a, err := s.hub.Agent(c.Request().Context(), name)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already replied
		return nil
	}

	conn := newWSConn(name+"#"+strconv.FormatUint(s.nextID.Add(1), 10), ws)
	a.Attach(conn)
	if config.Debug {
		config.DebugLog.Printf("[Server] %s connected from %s", conn.ID(), c.RealIP())
	}

	err = conn.readLoop(func(f protocol.Frame) { a.Handle(conn.ID(), f) })
	a.Detach(conn.ID())
	conn.Close()
	if err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Server] %s: %v", conn.ID(), err)
	}
	return nil
}
