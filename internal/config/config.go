package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Host string
	Port int

	// RedisURL enables the durable store and the cross-process bridge.
	// Empty means in-memory, single-process mode.
	RedisURL string

	StateTTL       time.Duration
	MaxPlayers     int
	ResyncInterval time.Duration

	PublicDir string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func Load() Config {
	return Config{
		Host:           getenv("HOST", ""),
		Port:           getenvInt("PORT", 3000),
		RedisURL:       os.Getenv("REDIS_URL"),
		StateTTL:       time.Duration(getenvInt("STATE_TTL_HOURS", 72)) * time.Hour,
		MaxPlayers:     getenvInt("MAX_PLAYERS", 4),
		ResyncInterval: time.Duration(getenvInt("RESYNC_INTERVAL_MS", 0)) * time.Millisecond,
		PublicDir:      getenv("PUBLIC_DIR", "public"),
	}
}

// HTTPAddr is the listen address in host:port form.
func (c Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
