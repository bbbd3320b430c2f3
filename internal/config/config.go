package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del cliente y del servidor BFF.
type Config struct {
	APIURL                string   `env:"API_URL" envDefault:"http://localhost:8000"`
	HTTPPort              string   `env:"HTTP_PORT" envDefault:"8090"`
	RequestTimeoutSeconds int      `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"60"`
	ChatQueuePolicy       string   `env:"CHAT_QUEUE_POLICY" envDefault:"replace"`
	CORSAllowOrigins      []string `env:"CORS_ALLOW_ORIGINS" envDefault:"*" envSeparator:","`
	LogLevel              string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFile               string   `env:"LOG_FILE"`
	// 0 desactiva la expiracion de sesiones inactivas.
	SessionIdleMinutes    int      `env:"SESSION_IDLE_MINUTES" envDefault:"60"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	cfg.CORSAllowOrigins = cleanList(cfg.CORSAllowOrigins)
	cfg.ChatQueuePolicy = strings.ToLower(strings.TrimSpace(cfg.ChatQueuePolicy))
	switch cfg.ChatQueuePolicy {
	case "replace", "append":
	default:
		return nil, fmt.Errorf("CHAT_QUEUE_POLICY invalida: %q", cfg.ChatQueuePolicy)
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT_SECONDS debe ser positivo: %d", cfg.RequestTimeoutSeconds)
	}
	if cfg.SessionIdleMinutes < 0 {
		return nil, fmt.Errorf("SESSION_IDLE_MINUTES no puede ser negativo: %d", cfg.SessionIdleMinutes)
	}
	return &cfg, nil
}

// cleanList recorta cada entrada y descarta las vacias.
func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}
