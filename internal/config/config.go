package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	MongoURI      string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017/taskverse"`
	PostgresURI   string `env:"POSTGRES_URI" envDefault:"postgres://localhost:5432/taskverse?sslmode=disable"`
	RedisURI      string `env:"REDIS_URI" envDefault:"redis://localhost:6379/0"`
	JWTSecret     string `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	EncryptionKey string `env:"ENCRYPTION_KEY"`
	Port          string `env:"PORT" envDefault:"8080"`
	FrontendURL   string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	FrontendURL2  string `env:"FRONTEND_URL_2"`
	FrontendURL3  string `env:"FRONTEND_URL_3"`
	Origins       string `env:"ALLOWED_ORIGINS"`

	CloudinaryName      string `env:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `env:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `env:"CLOUDINARY_API_SECRET"`

	Host        string `env:"HOST" envDefault:"http://localhost:8080"` // e.g. https://api.taskverse.app
	Environment string `env:"ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// StoreDriver picks the document store: mongo, or memory for local runs.
	StoreDriver string   `env:"STORE_DRIVER" envDefault:"mongo"`
	AdminEmails []string `env:"ADMIN_EMAILS" envSeparator:","`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	// Derived in Load.
	AllowedOrigins []string `env:"-"` // CORS allow-list
	AllowedHost    string   `env:"-"` // hostname for the strict host check, production only
}

// Load parses the environment. Call godotenv.Load first to pick up .env.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	switch cfg.StoreDriver {
	case StoreMongo, StoreMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	cfg.AdminEmails = parseOrigins(strings.Join(cfg.AdminEmails, ","))

	// AllowedHost is only set in production; host check is skipped in development
	if cfg.IsProduction() {
		cfg.AllowedHost = hostname(cfg.Host)
	}
	cfg.AllowedOrigins = allowedOrigins(&cfg)
	return &cfg, nil
}

func allowedOrigins(cfg *Config) []string {
	origins := parseOrigins(cfg.Origins)
	if len(origins) == 0 {
		for _, u := range []string{cfg.FrontendURL, cfg.FrontendURL2, cfg.FrontendURL3} {
			u = strings.TrimSpace(u)
			if u != "" {
				origins = append(origins, u)
			}
		}
	}
	// A backend host like api.taskverse.app also admits https://taskverse.app
	// and https://www.taskverse.app.
	host := hostname(cfg.Host)
	if host != "" && host != "localhost" {
		parts := strings.Split(host, ".")
		if len(parts) >= 2 {
			domain := strings.Join(parts[1:], ".")
			for _, origin := range []string{"https://" + domain, "https://www." + domain} {
				if !containsOrigin(origins, origin) {
					origins = append(origins, origin)
				}
			}
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return origins
}

// hostname strips scheme, path and port from a HOST value.
func hostname(host string) string {
	for _, prefix := range []string{"https://", "http://"} {
		host = strings.TrimPrefix(host, prefix)
	}
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return strings.TrimSpace(host)
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func containsOrigin(list []string, o string) bool {
	o = strings.TrimSpace(strings.ToLower(o))
	for _, v := range list {
		if strings.TrimSpace(strings.ToLower(v)) == o {
			return true
		}
	}
	return false
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CloudinaryEnabled reports whether all Cloudinary credentials are present.
func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}
