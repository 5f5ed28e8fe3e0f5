package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/sketchroom/modules/api"
	"github.com/example/sketchroom/modules/history"
	"github.com/example/sketchroom/modules/lobby"
	"github.com/example/sketchroom/modules/reaper"
	"github.com/example/sketchroom/modules/room"
	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment.
type Config struct {
	LogLevel    string
	API         api.Config
	History     history.Config
	Tickets     lobby.TicketConfig
	Reaper      reaper.Config
	EraserScope room.Scope
}

// LoadConfig reads .env (if present) and the environment.
func LoadConfig() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	tickets := lobby.DefaultTicketConfig()
	tickets.Secret = getEnv("TICKET_SECRET", tickets.Secret)
	tickets.TTL = getEnvDuration("TICKET_TTL", tickets.TTL)

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")

	cfg := Config{
		API: api.Config{
			Port:            strconv.Itoa(getEnvInt("HTTP_PORT", 3000)),
			PingInterval:    getEnvDuration("PING_INTERVAL", 25*time.Second),
			PongWait:        getEnvDuration("PONG_WAIT", 60*time.Second),
			EventsPerSecond: float64(getEnvInt("EVENTS_PER_SECOND", 60)),
			EventBurst:      getEnvInt("EVENT_BURST", 120),
			LobbyRateLimit:  getEnvInt("LOBBY_RATE_LIMIT", 30),
			RateLimitStore:  getEnv("RATE_LIMIT_STORE", api.RateLimitStoreMemory),
			RedisAddr:       redisAddr,
			CORSOrigins:     getEnv("CORS_ALLOWED_ORIGINS", ""),
		},
		History: history.Config{
			Store: history.StoreConfig{
				Backend:   getEnv("HISTORY_BACKEND", history.BackendSQLite),
				DBPath:    getEnv("DB_PATH", "rooms.db"),
				DBDebug:   getEnvBool("DB_DEBUG", false),
				RedisAddr: redisAddr,
				PGURL:     getEnv("PG_URL", ""),
			},
			Writers: getEnvInt("HISTORY_WRITERS", 4),
		},
		Reaper: reaper.Config{
			Interval: getEnvDuration("REAPER_INTERVAL", 30*time.Second),
			Grace:    getEnvDuration("ROOM_IDLE_GRACE", 2*time.Minute),
		},
	}
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Tickets = tickets
	cfg.EraserScope = room.ParseScope(getEnv("ERASER_SCOPE", string(room.ScopeRoom)))

	if tickets.Secret == lobby.DefaultTicketConfig().Secret {
		log.Println("Warning: TICKET_SECRET is not set, using the development secret")
	}
	return cfg
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns environment variable as time.Duration or default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Warning: invalid duration for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvBool returns environment variable as bool or default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Printf("Warning: invalid bool value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}
