package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/yegors/wx-forecast/internal/weather"
	"github.com/yegors/wx-forecast/pkg/logger"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server    ServerConfig    `toml:"server"`     // HTTP server settings
	Logging   LoggingConfig   `toml:"logging"`    // Application logging settings
	Weather   WeatherConfig   `toml:"weather"`    // Upstream geocoding and forecast APIs
	RateLimit RateLimitConfig `toml:"rate_limit"` // Per-client request limiting
	WebSocket WebSocketConfig `toml:"websocket"`  // WebSocket lookup channel
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	TrustProxyHeaders  bool     `toml:"trust_proxy_headers"`   // Take the client IP from X-Forwarded-For/X-Real-IP (only behind a reverse proxy)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// WeatherConfig contains upstream API configuration
type WeatherConfig struct {
	GeocodingURL          string `toml:"geocoding_url"`           // Geocoding search endpoint
	ForecastURL           string `toml:"forecast_url"`            // Forecast endpoint
	Language              string `toml:"language"`                // Language passed to the geocoder
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"` // Upstream connection timeout
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"` // Upstream overall request timeout
}

// RateLimitConfig contains per-client rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`             // Enable or disable rate limiting
	RequestsPerSecond float64 `toml:"requests_per_second"` // Sustained requests per second per client
	Burst             int     `toml:"burst"`               // Maximum burst size per client
}

// WebSocketConfig contains WebSocket lookup channel configuration
type WebSocketConfig struct {
	Enabled         bool  `toml:"enabled"`           // Expose the /ws endpoint
	MaxMessageBytes int64 `toml:"max_message_bytes"` // Largest accepted client message
	MaxInFlight     int   `toml:"max_in_flight"`     // Concurrent lookups allowed per connection
}

// Default returns the configuration used when no file or override is present
func Default() *Config {
	wx := weather.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port:               8000,
			Host:               "0.0.0.0",
			CORSAllowedOrigins: []string{"*"},
			ReadTimeoutSecs:    15,
			WriteTimeoutSecs:   30,
			IdleTimeoutSecs:    60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Weather: WeatherConfig{
			GeocodingURL:          wx.GeocodingURL,
			ForecastURL:           wx.ForecastURL,
			Language:              wx.Language,
			ConnectTimeoutSeconds: int(wx.ConnectTimeout / time.Second),
			RequestTimeoutSeconds: int(wx.RequestTimeout / time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 0.5, // 30/minute
			Burst:             10,
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			MaxMessageBytes: 4096,
			MaxInFlight:     4,
		},
	}
}

// Load loads the configuration from the specified file path on top of the defaults
func Load(path string) (*Config, error) {
	config := Default()

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference.
// When no file is found the defaults are used. Environment overrides are applied last.
func LoadWithFallback(preferredPath string) (*Config, error) {
	// A missing .env file is not an error
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	// An explicitly requested file must exist
	if preferredPath != "" {
		config, err := Load(preferredPath)
		if err != nil {
			return nil, err
		}
		if err := config.ApplyEnv(os.LookupEnv); err != nil {
			return nil, err
		}
		return config, nil
	}

	// List of paths to check in order of preference
	searchPaths := []string{
		"configs/config.toml",
		"config.toml",
	}

	config := Default()
	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			loaded, err := Load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
			}
			config = loaded
			break
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides configuration values from environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		value, ok := lookup(key)
		if !ok {
			return "", false
		}
		value = strings.TrimSpace(value)
		return value, value != ""
	}

	if v, ok := get("HOST"); ok {
		c.Server.Host = v
	}
	if v, ok := get("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := get("TRUST_PROXY_HEADERS"); ok {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TRUST_PROXY_HEADERS: %w", err)
		}
		c.Server.TrustProxyHeaders = trust
	}
	if v, ok := get("CORS_ALLOWED_ORIGINS"); ok {
		origins := make([]string, 0)
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		c.Server.CORSAllowedOrigins = origins
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Logging.Level = strings.ToLower(v)
	}
	if v, ok := get("LOG_FORMAT"); ok {
		c.Logging.Format = strings.ToLower(v)
	}
	if v, ok := get("GEOCODING_URL"); ok {
		c.Weather.GeocodingURL = v
	}
	if v, ok := get("WEATHER_URL"); ok {
		c.Weather.ForecastURL = v
	}
	if v, ok := get("CONNECT_TIMEOUT_SECONDS"); ok {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CONNECT_TIMEOUT_SECONDS: %w", err)
		}
		c.Weather.ConnectTimeoutSeconds = secs
	}
	if v, ok := get("REQUEST_TIMEOUT_SECONDS"); ok {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REQUEST_TIMEOUT_SECONDS: %w", err)
		}
		c.Weather.RequestTimeoutSeconds = secs
	}
	if v, ok := get("RATE_LIMIT_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_ENABLED: %w", err)
		}
		c.RateLimit.Enabled = enabled
	}
	if v, ok := get("RATE_LIMIT_RPS"); ok {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
		}
		c.RateLimit.RequestsPerSecond = rps
	}
	if v, ok := get("RATE_LIMIT_BURST"); ok {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
		}
		c.RateLimit.Burst = burst
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 || c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server timeouts must be 0 or greater")
	}

	// Validate logging config
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	if err := c.ValidateWeather(); err != nil {
		return err
	}

	// Validate rate limit config
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limit requests_per_second must be greater than 0: %f", c.RateLimit.RequestsPerSecond)
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate_limit burst must be greater than 0: %d", c.RateLimit.Burst)
		}
	}

	// Validate websocket config
	if c.WebSocket.Enabled {
		if c.WebSocket.MaxMessageBytes <= 0 {
			return fmt.Errorf("websocket max_message_bytes must be greater than 0: %d", c.WebSocket.MaxMessageBytes)
		}
		if c.WebSocket.MaxInFlight <= 0 {
			return fmt.Errorf("websocket max_in_flight must be greater than 0: %d", c.WebSocket.MaxInFlight)
		}
	}

	return nil
}

// ValidateWeather validates the upstream API configuration
func (c *Config) ValidateWeather() error {
	for name, raw := range map[string]string{
		"geocoding_url": c.Weather.GeocodingURL,
		"forecast_url":  c.Weather.ForecastURL,
	} {
		if raw == "" {
			return fmt.Errorf("weather %s cannot be empty", name)
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("weather %s is invalid: %w", name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("weather %s must use http or https: %s", name, raw)
		}
	}

	if c.Weather.ConnectTimeoutSeconds <= 0 {
		return fmt.Errorf("weather connect_timeout_seconds must be greater than 0: %d", c.Weather.ConnectTimeoutSeconds)
	}
	if c.Weather.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("weather request_timeout_seconds must be greater than 0: %d", c.Weather.RequestTimeoutSeconds)
	}
	if c.Weather.ConnectTimeoutSeconds > c.Weather.RequestTimeoutSeconds {
		return fmt.Errorf("weather connect_timeout_seconds (%d) must not exceed request_timeout_seconds (%d)",
			c.Weather.ConnectTimeoutSeconds, c.Weather.RequestTimeoutSeconds)
	}

	return nil
}

// WeatherClientConfig converts the weather section into the client configuration
func (c *Config) WeatherClientConfig() weather.Config {
	return weather.Config{
		GeocodingURL:   c.Weather.GeocodingURL,
		ForecastURL:    c.Weather.ForecastURL,
		Language:       c.Weather.Language,
		ConnectTimeout: time.Duration(c.Weather.ConnectTimeoutSeconds) * time.Second,
		RequestTimeout: time.Duration(c.Weather.RequestTimeoutSeconds) * time.Second,
	}
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
