// Package api is the HTTP and websocket driving adapter.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/example/sketchroom/modules/broadcast"
	"github.com/example/sketchroom/modules/history"
	"github.com/example/sketchroom/modules/lobby"
	"github.com/example/sketchroom/modules/room"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	redisstorage "github.com/gofiber/storage/redis/v3"
	"github.com/redis/go-redis/v9"
)

// Rate limit storage backends.
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// Config holds HTTP and realtime settings.
type Config struct {
	Port            string
	PingInterval    time.Duration
	PongWait        time.Duration
	EventsPerSecond float64
	EventBurst      int
	SendBuffer      int
	LobbyRateLimit  int
	RateLimitStore  string
	RedisAddr       string
	CORSOrigins     string
}

// DefaultConfig returns the default API configuration.
func DefaultConfig() Config {
	return Config{
		Port:            "3000",
		PingInterval:    25 * time.Second,
		PongWait:        60 * time.Second,
		EventsPerSecond: 60,
		EventBurst:      120,
		SendBuffer:      broadcast.DefaultSendBuffer,
		LobbyRateLimit:  30,
		RateLimitStore:  RateLimitStoreMemory,
		RedisAddr:       "localhost:6379",
		CORSOrigins:     "http://localhost:3000,http://localhost:8080",
	}
}

// Realtime is the room module surface used by websocket sessions.
type Realtime interface {
	Join(code, name, connID string, greeting func(*room.Session) []byte) (*room.Session, error)
	Leave(sess *room.Session)
	Dispatch(sess *room.Session, raw []byte) error
}

// APIModule is the HTTP API module with websocket support.
type APIModule struct {
	app     *fiber.App
	config  Config
	logger  types.Logger
	limiter fiber.Storage

	lobby    lobby.LobbyPort
	rooms    room.RoomPort
	history  history.HistoryPort
	hub      *broadcast.Hub
	realtime Realtime
	metrics  http.Handler
	checks   map[string]mono.HealthCheckableModule
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.DependentModule = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule. Zero fields in cfg take their defaults.
func NewModule(cfg Config, logger types.Logger) *APIModule {
	def := DefaultConfig()
	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.EventsPerSecond <= 0 {
		cfg.EventsPerSecond = def.EventsPerSecond
	}
	if cfg.EventBurst <= 0 {
		cfg.EventBurst = def.EventBurst
	}
	if cfg.LobbyRateLimit <= 0 {
		cfg.LobbyRateLimit = def.LobbyRateLimit
	}
	if cfg.RateLimitStore == "" {
		cfg.RateLimitStore = def.RateLimitStore
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = def.RedisAddr
	}
	if cfg.CORSOrigins == "" {
		cfg.CORSOrigins = def.CORSOrigins
	}
	return &APIModule{
		config: cfg,
		logger: logger,
		checks: make(map[string]mono.HealthCheckableModule),
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"room", "lobby", "history"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "room":
		m.rooms = room.NewRoomAdapter(container)
	case "lobby":
		m.lobby = lobby.NewLobbyAdapter(container)
	case "history":
		m.history = history.NewHistoryAdapter(container)
	}
}

// SetHub sets the broadcast hub (called from main.go).
func (m *APIModule) SetHub(hub *broadcast.Hub) {
	m.hub = hub
}

// SetRealtime sets the room session handler (called from main.go).
func (m *APIModule) SetRealtime(rt Realtime) {
	m.realtime = rt
}

// SetMetricsHandler sets the handler served at /metrics.
func (m *APIModule) SetMetricsHandler(h http.Handler) {
	m.metrics = h
}

// AddHealthCheck includes module in the /health report.
func (m *APIModule) AddHealthCheck(module mono.HealthCheckableModule) {
	m.checks[module.Name()] = module
}

// Start initializes and starts the Fiber HTTP server.
func (m *APIModule) Start(ctx context.Context) error {
	if err := m.checkWiring(); err != nil {
		return err
	}

	storage, err := m.openLimiterStorage(ctx)
	if err != nil {
		return err
	}
	m.limiter = storage

	m.app = m.newApp()

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(":" + m.config.Port); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "port", m.config.Port, "rate_limit_store", m.config.RateLimitStore)
	return nil
}

func (m *APIModule) checkWiring() error {
	switch {
	case m.lobby == nil:
		return fmt.Errorf("lobby adapter dependency not set")
	case m.rooms == nil:
		return fmt.Errorf("room adapter dependency not set")
	case m.history == nil:
		return fmt.Errorf("history adapter dependency not set")
	case m.hub == nil:
		return fmt.Errorf("broadcast hub dependency not set")
	case m.realtime == nil:
		return fmt.Errorf("realtime dependency not set")
	}
	return nil
}

// newApp builds the Fiber app with middleware and routes.
func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "sketchroom",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		Next: func(c *fiber.Ctx) bool {
			return websocket.IsWebSocketUpgrade(c)
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.config.CORSOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.setupRoutes(app)
	return app
}

// openLimiterStorage returns the shared lobby rate-limit storage, or nil for
// the limiter's in-process default.
func (m *APIModule) openLimiterStorage(ctx context.Context) (fiber.Storage, error) {
	if m.config.RateLimitStore != RateLimitStoreRedis {
		return nil, nil
	}

	// The storage constructor panics when Redis is down, so ping it first.
	pinger := redis.NewClient(&redis.Options{Addr: m.config.RedisAddr})
	defer pinger.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pinger.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("rate limit store %s: %w", m.config.RedisAddr, err)
	}

	host, port := parseRedisAddr(m.config.RedisAddr)
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		PoolSize: 10,
	}), nil
}

// Stop gracefully shuts down the HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	if m.limiter != nil {
		if err := m.limiter.Close(); err != nil {
			m.logger.Warn("Failed to close rate limit store", "error", err)
		}
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	clients := 0
	if m.hub != nil {
		clients = m.hub.ClientCount()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port":              m.config.Port,
			"connected_clients": clients,
		},
	}
}

// errorHandler handles errors globally.
func (m *APIModule) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	} else {
		m.logger.Error("HTTP error", "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

// parseRedisAddr parses "host:port" into host and port.
// Returns defaults (127.0.0.1:6379) for invalid or missing values.
func parseRedisAddr(addr string) (string, int) {
	const defaultHost = "127.0.0.1"
	const defaultPort = 6379

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return defaultHost, defaultPort
	}
	if host == "" {
		host = defaultHost
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = defaultPort
	}
	return host, port
}
