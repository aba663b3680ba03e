// Package config loads server configuration from the environment.
//
// CONFIGURATION STRATEGY:
// Everything comes from environment variables, with a .env file as a
// convenience for local development. godotenv loads the file into the
// process environment if it exists; real deployments set variables the
// normal way and ship no file. Environment always wins over defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every knob the server reads at startup.
type Config struct {
	Port        int
	TemplateDir string
	StaticDir   string

	DBPath        string
	RedisAddr     string
	RedisPassword string

	// JWTSecret must be a long random string, e.g. openssl rand -hex 32.
	JWTSecret string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// Load reads the optional .env file and assembles the Config.
func Load() (Config, error) {
	// A missing .env is fine — it only exists in local dev.
	_ = godotenv.Load()

	cfg := Config{
		Port:        8080,
		TemplateDir: "web/templates",
		StaticDir:   "web/static",
		DBPath:      "data/waveroom.db",
		RedisAddr:   "localhost:6379",
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid PORT %q: %w", portStr, err)
		}
		cfg.Port = port
	}

	if v := os.Getenv("TEMPLATE_DIR"); v != "" {
		cfg.TemplateDir = v
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.GitHubClientID = os.Getenv("GITHUB_CLIENT_ID")
	cfg.GitHubClientSecret = os.Getenv("GITHUB_CLIENT_SECRET")
	cfg.GitHubCallbackURL = os.Getenv("GITHUB_CALLBACK_URL")
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	return cfg, nil
}
