package shared

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv          string
	HTTPAddr        string
	MetricsAddr     string
	StoreDriver     string // mysql | memory
	MySQLDSN        string
	RedisAddr       string // empty disables the cache
	RedisDB         int
	RedisPass       string
	CacheTTL        time.Duration
	AuthMode        string // jwt | remote
	JWTSecret       string
	JWTIssuer       string
	IdentityBase    string
	IdentityKey     string
	IdentityRPS     int
	MediaDir        string
	MediaBaseURL    string
	MaintWorkers    int
	LeaderboardSize int
}

// Load reads the environment, after merging an optional .env file from the
// working directory (variables already set win), and validates the result.
func Load() (Config, error) {
	c := read()
	return c, c.validate()
}

// LoadMaintenance is Load for offline tools: authentication settings are not required.
func LoadMaintenance() (Config, error) {
	c := read()
	if err := c.validateStore(); err != nil {
		return c, err
	}
	if c.MaintWorkers <= 0 {
		return c, fmt.Errorf("MAINT_WORKERS must be positive")
	}
	return c, nil
}

func read() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg(".env present but unreadable")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
		}
		return def
	}
	return Config{
		AppEnv:          env("APP_ENV", "prod"),
		HTTPAddr:        env("HTTP_ADDR", ":8080"),
		MetricsAddr:     env("METRICS_ADDR", ""),
		StoreDriver:     strings.ToLower(env("STORE_DRIVER", "mysql")),
		MySQLDSN:        env("MYSQL_DSN", "root:root@tcp(localhost:3306)/gighop?parseTime=true&charset=utf8mb4&loc=UTC"),
		RedisAddr:       env("REDIS_ADDR", ""),
		RedisPass:       env("REDIS_PASSWORD", ""),
		RedisDB:         atoi("REDIS_DB", 0),
		CacheTTL:        time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
		AuthMode:        strings.ToLower(env("AUTH_MODE", "jwt")),
		JWTSecret:       env("JWT_SECRET", ""),
		JWTIssuer:       env("JWT_ISSUER", "gighop"),
		IdentityBase:    env("IDENTITY_BASE_URL", "https://identitytoolkit.googleapis.com/v1"),
		IdentityKey:     env("IDENTITY_API_KEY", ""),
		IdentityRPS:     atoi("IDENTITY_RPS", 20),
		MediaDir:        env("MEDIA_DIR", "./media"),
		MediaBaseURL:    env("MEDIA_BASE_URL", "http://localhost:8080/media"),
		MaintWorkers:    atoi("MAINT_WORKERS", 8),
		LeaderboardSize: atoi("LEADERBOARD_SIZE", 50),
	}
}

func (c Config) validateStore() error {
	switch c.StoreDriver {
	case "mysql":
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required with STORE_DRIVER=mysql")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be mysql or memory, got %q", c.StoreDriver)
	}
	return nil
}

func (c Config) validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	switch c.AuthMode {
	case "jwt":
		if len(c.JWTSecret) < 16 {
			return fmt.Errorf("JWT_SECRET must be at least 16 bytes with AUTH_MODE=jwt")
		}
	case "remote":
		if c.IdentityKey == "" {
			return fmt.Errorf("IDENTITY_API_KEY is required with AUTH_MODE=remote")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be jwt or remote, got %q", c.AuthMode)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must be positive")
	}
	if c.MaintWorkers <= 0 {
		return fmt.Errorf("MAINT_WORKERS must be positive")
	}
	if c.LeaderboardSize <= 0 {
		return fmt.Errorf("LEADERBOARD_SIZE must be positive")
	}
	return nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
