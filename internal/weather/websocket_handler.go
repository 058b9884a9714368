package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/yegors/wx-forecast/internal/websocket"
	"github.com/yegors/wx-forecast/pkg/logger"
)

// RequestLimiter decides whether a client may make another lookup now
type RequestLimiter interface {
	Allow(key string) (bool, time.Duration)
}

// WebSocketHandler answers forecast requests received over WebSocket
type WebSocketHandler struct {
	service *Service
	limiter RequestLimiter
	logger  *logger.Logger
}

// NewWebSocketHandler creates a new WebSocket message handler
func NewWebSocketHandler(service *Service, logger *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		logger:  logger.Named("weather-ws-handler"),
	}
}

// SetRateLimiter makes every forecast request draw from the client's
// rate limit, the same budget its HTTP requests use
func (h *WebSocketHandler) SetRateLimiter(limiter RequestLimiter) {
	h.limiter = limiter
}

// HandleMessage handles incoming WebSocket messages
func (h *WebSocketHandler) HandleMessage(ctx context.Context, client *websocket.Client, messageType string, data map[string]any) error {
	switch messageType {
	case websocket.MessageTypeForecastRequest:
		return h.handleForecastRequest(ctx, client, data)
	default:
		h.logger.Debug("Unhandled message type", logger.String("type", messageType))
		h.send(client, &websocket.Message{
			Type: websocket.MessageTypeError,
			Data: map[string]any{"detail": fmt.Sprintf("Unsupported message type: %s", messageType)},
		})
		return nil
	}
}

// handleForecastRequest runs a forecast lookup for the requested city
func (h *WebSocketHandler) handleForecastRequest(ctx context.Context, client *websocket.Client, data map[string]any) error {
	city, _ := data["city"].(string)

	// Charge the lookup against the client's rate limit
	if h.limiter != nil {
		if allowed, retryAfter := h.limiter.Allow(client.RemoteIP()); !allowed {
			h.logger.Info("Rate limit exceeded",
				logger.String("client_ip", client.RemoteIP()),
				logger.String("city", city))

			h.send(client, &websocket.Message{
				Type: websocket.MessageTypeForecastError,
				Data: map[string]any{
					"city":        city,
					"status":      http.StatusTooManyRequests,
					"detail":      "Rate limit exceeded",
					"retry_after": int(math.Ceil(retryAfter.Seconds())),
				},
			})
			return nil
		}
	}

	// Run the lookup; ctx ends when the client disconnects
	result, err := h.service.GetForecast(ctx, city)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client went away; nobody is left to answer
			return nil
		}

		status, detail := ClassifyError(err)
		h.logger.Debug("Forecast lookup failed",
			logger.String("city", city),
			logger.Int("status", status),
			logger.Error(err))

		h.send(client, &websocket.Message{
			Type: websocket.MessageTypeForecastError,
			Data: map[string]any{
				"city":   city,
				"status": status,
				"detail": detail,
			},
		})
		return nil
	}

	h.send(client, &websocket.Message{
		Type: websocket.MessageTypeForecastResponse,
		Data: map[string]any{
			"city":        result.City,
			"temperature": result.Temperature,
			"humidity":    result.Humidity,
			"wind_speed":  result.WindSpeed,
			"conditions":  result.Conditions,
		},
	})
	return nil
}

// send queues a message for a specific client (not broadcast)
func (h *WebSocketHandler) send(client *websocket.Client, message *websocket.Message) {
	if !client.SendMessage(message) {
		h.logger.Warn("Dropped WebSocket message", logger.String("type", message.Type))
	}
}
