package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultAPIBase is used by the health page when API_BASE is unset.
	DefaultAPIBase = "http://localhost:8000"

	// APIBaseEnv names the variable the health page reads its base URL from.
	APIBaseEnv = "API_BASE"
)

type Config struct {
	Web    WebConfig
	API    APIConfig
	Engine EngineConfig
	Redis  RedisConfig
	App    AppConfig
}

type WebConfig struct {
	Port         string
	APIBase      string
	CheckTimeout time.Duration
	PageTTL      time.Duration
}

type APIConfig struct {
	Port           string
	EngineURL      string
	AllowedOrigins []string
	ProxyTimeout   time.Duration
	ProxyRPS       float64
	ProxyBurst     int
}

type EngineConfig struct {
	Port        string
	Version     string
	GitSHA      string
	EventBuffer int
	STPPolicy   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Web: WebConfig{
			Port:         getEnv("WEB_PORT", "3000"),
			APIBase:      getEnv(APIBaseEnv, DefaultAPIBase),
			CheckTimeout: getEnvAsDuration("HEALTH_CHECK_TIMEOUT", 10*time.Second),
			PageTTL:      getEnvAsDuration("HEALTH_PAGE_TTL", 30*time.Second),
		},
		API: APIConfig{
			Port:           getEnv("API_PORT", "8000"),
			EngineURL:      getEnv("ENGINE_URL", "http://engine:8080"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			ProxyTimeout:   getEnvAsDuration("METRICS_PROXY_TIMEOUT", 2*time.Second),
			ProxyRPS:       getEnvAsFloat("METRICS_PROXY_RPS", 10),
			ProxyBurst:     getEnvAsInt("METRICS_PROXY_BURST", 20),
		},
		Engine: EngineConfig{
			Port:        getEnv("ENGINE_PORT", "8080"),
			Version:     getEnv("ENGINE_VERSION", "0.0.1"),
			GitSHA:      getEnv("GIT_SHA", "dev"),
			EventBuffer: getEnvAsInt("ENGINE_EVENT_BUFFER", 1<<16),
			STPPolicy:   strings.ToLower(getEnv("ENGINE_STP_POLICY", "none")),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "0.0.1"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Web.Port == "" {
		return fmt.Errorf("WEB_PORT is required")
	}
	if c.API.Port == "" {
		return fmt.Errorf("API_PORT is required")
	}
	if c.Engine.Port == "" {
		return fmt.Errorf("ENGINE_PORT is required")
	}
	if err := validateBaseURL(APIBaseEnv, c.Web.APIBase); err != nil {
		return err
	}
	if err := validateBaseURL("ENGINE_URL", c.API.EngineURL); err != nil {
		return err
	}
	if c.API.ProxyRPS <= 0 || c.API.ProxyBurst <= 0 {
		return fmt.Errorf("METRICS_PROXY_RPS and METRICS_PROXY_BURST must be positive")
	}
	if c.Web.PageTTL <= 0 {
		return fmt.Errorf("HEALTH_PAGE_TTL must be positive")
	}
	if c.Engine.EventBuffer <= 0 {
		return fmt.Errorf("ENGINE_EVENT_BUFFER must be positive")
	}
	switch c.Engine.STPPolicy {
	case "none", "cancel_taker", "cancel_maker":
	default:
		return fmt.Errorf("ENGINE_STP_POLICY must be none, cancel_taker or cancel_maker, got %q", c.Engine.STPPolicy)
	}

	return nil
}

func validateBaseURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", key, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", key, raw)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %g", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
