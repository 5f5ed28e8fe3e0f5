package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/example/sketchroom/modules/analytics"
	"github.com/example/sketchroom/modules/api"
	"github.com/example/sketchroom/modules/broadcast"
	"github.com/example/sketchroom/modules/history"
	"github.com/example/sketchroom/modules/lobby"
	"github.com/example/sketchroom/modules/reaper"
	"github.com/example/sketchroom/modules/room"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== Sketchroom - ephemeral chat and drawing rooms ===")

	cfg := LoadConfig()

	logLevel := mono.LogLevelInfo
	if cfg.LogLevel == "error" {
		logLevel = mono.LogLevelError
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(logLevel),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Create modules
	broadcastModule := broadcast.NewModule(logger.WithModule("broadcast"))
	historyModule := history.NewModule(cfg.History, logger.WithModule("history"))
	roomModule, err := room.NewModule(
		room.Config{EraserScope: cfg.EraserScope},
		historyModule.Writer(),
		broadcastModule.GetHub(),
		logger.WithModule("room"),
	)
	if err != nil {
		log.Fatalf("Failed to create room module: %v", err)
	}
	lobbyModule := lobby.NewModule(cfg.Tickets, logger.WithModule("lobby"))
	analyticsModule := analytics.NewModule(logger.WithModule("analytics"))
	reaperModule := reaper.NewModule(roomModule.Registry(), cfg.Reaper, logger.WithModule("reaper"))
	apiModule := api.NewModule(cfg.API, logger.WithModule("api"))

	// Inject in-process collaborators into the API module.
	// (The hub and live sessions are not exposed via ServiceContainer.)
	apiModule.SetHub(broadcastModule.GetHub())
	apiModule.SetRealtime(roomModule)
	apiModule.SetMetricsHandler(analyticsModule.MetricsHandler())
	apiModule.AddHealthCheck(broadcastModule)
	apiModule.AddHealthCheck(historyModule)
	apiModule.AddHealthCheck(roomModule)
	apiModule.AddHealthCheck(lobbyModule)
	apiModule.AddHealthCheck(analyticsModule)
	apiModule.AddHealthCheck(reaperModule)

	// Register modules with the framework.
	// Stop runs in reverse, so the API closes before the history writer drains.
	// - broadcast: websocket hub + RoomClosed consumer
	// - history: store backend + ordered writer + list-messages service
	// - room: registry, membership, event router + lifecycle events
	// - lobby: create/join form + tickets (depends on room)
	// - analytics: event consumer + Prometheus metrics
	// - reaper: idle-room sweep
	// - api: Fiber HTTP/WebSocket driving adapter
	for _, module := range []mono.Module{
		broadcastModule,
		historyModule,
		roomModule,
		lobbyModule,
		analyticsModule,
		reaperModule,
		apiModule,
	} {
		if err := app.Register(module); err != nil {
			log.Fatalf("Failed to register module %s: %v", module.Name(), err)
		}
	}

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg Config) {
	port := cfg.API.Port

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Configuration:")
	log.Printf("  - History backend: %s (%d writer lanes)", cfg.History.Store.Backend, cfg.History.Writers)
	log.Printf("  - Eraser scope: %s", cfg.EraserScope)
	log.Printf("  - Idle room grace: %s (sweep every %s)", cfg.Reaper.Grace, cfg.Reaper.Interval)
	log.Printf("  - Lobby rate limit: %d/min (%s store)", cfg.API.LobbyRateLimit, cfg.API.RateLimitStore)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", port)
	log.Println("  GET    /health                       - Health of all modules")
	log.Println("  GET    /metrics                      - Prometheus metrics")
	log.Println("  POST   /api/v1/lobby                 - Create or join a room, returns a ticket")
	log.Println("  GET    /api/v1/rooms                 - Live rooms")
	log.Println("  GET    /api/v1/rooms/:code           - Room lookup")
	log.Println("  GET    /api/v1/rooms/:code/messages  - Room history (Bearer ticket)")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws?ticket=...):", port)
	log.Println("  Inbound: message, draw, start_line, toggle_eraser, change_color, change_width, leave_room")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
