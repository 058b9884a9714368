package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yegors/wx-forecast/internal/api"
	"github.com/yegors/wx-forecast/internal/config"
	"github.com/yegors/wx-forecast/internal/weather"
	"github.com/yegors/wx-forecast/internal/websocket"
	"github.com/yegors/wx-forecast/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting weather forecast server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Create upstream clients sharing one connection pool
	weatherConfig := cfg.WeatherClientConfig()
	httpClient := weather.NewHTTPClient(weatherConfig)
	forecastService := weather.NewService(
		weather.NewGeocodingClient(weatherConfig, httpClient, log),
		weather.NewWeatherClient(weatherConfig, httpClient, log),
	)

	log.Info("Upstream APIs configured",
		logger.String("geocoding_url", weatherConfig.GeocodingURL),
		logger.String("forecast_url", weatherConfig.ForecastURL),
		logger.Duration("connect_timeout", weatherConfig.ConnectTimeout),
		logger.Duration("request_timeout", weatherConfig.RequestTimeout),
	)

	// Create per-client rate limiter (if enabled), shared by HTTP and WebSocket lookups
	var limiter *api.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = api.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
		log.Info("Rate limiting enabled",
			logger.Float64("requests_per_second", cfg.RateLimit.RequestsPerSecond),
			logger.Int("burst", cfg.RateLimit.Burst),
			logger.Bool("trust_proxy_headers", cfg.Server.TrustProxyHeaders))
	}

	// Create WebSocket server (if enabled)
	var wsServer *websocket.Server
	if cfg.WebSocket.Enabled {
		wsServer = websocket.NewServer(websocket.Config{
			MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
			MaxInFlight:     cfg.WebSocket.MaxInFlight,
			AllowedOrigins:  cfg.Server.CORSAllowedOrigins,
		}, log)

		wsHandler := weather.NewWebSocketHandler(forecastService, log)
		if limiter != nil {
			wsHandler.SetRateLimiter(limiter)
		}
		wsServer.SetMessageHandler(wsHandler)

		go wsServer.Run()
	} else {
		log.Info("WebSocket channel disabled in configuration")
	}

	// Create API router
	router := api.NewRouter(forecastService, wsServer, limiter, cfg, log)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Shutting down server...", logger.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
		if wsServer != nil {
			wsServer.Stop()
		}
		log.Sync()
		os.Exit(1)
	}

	// Stop accepting WebSocket traffic before draining HTTP
	if wsServer != nil {
		log.Info("Stopping WebSocket server...")
		wsServer.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.String("addr", server.Addr), logger.Error(err))
	} else {
		log.Info("HTTP server shutdown complete", logger.String("addr", server.Addr))
	}

	httpClient.CloseIdleConnections()
	log.Info("Server fully stopped")
}
