package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/wx-forecast/internal/weather"
	"github.com/yegors/wx-forecast/pkg/logger"
)

// ForecastService is the forecast pipeline consumed by the handlers
type ForecastService interface {
	GetForecast(ctx context.Context, city string) (*weather.ForecastResult, error)
}

// Handler contains the API handlers
type Handler struct {
	forecastService ForecastService
	logger          *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(forecastService ForecastService, logger *logger.Logger) *Handler {
	return &Handler{
		forecastService: forecastService,
		logger:          logger.Named("api-handler"),
	}
}

// errorResponse is the body returned for failed requests
type errorResponse struct {
	Detail string `json:"detail"`
}

// GetHealth returns the liveness status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GetForecast returns the current forecast for the city in the path
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	// Get city from URL
	city := cityParam(r)
	if strings.TrimSpace(city) == "" {
		WriteError(w, http.StatusBadRequest, "City name is required")
		return
	}

	// Get forecast; the request context cancels upstream calls if the client leaves
	result, err := h.forecastService.GetForecast(r.Context(), city)
	if err != nil {
		// Map the error to a status and log by severity
		status, detail := weather.ClassifyError(err)

		switch {
		case errors.Is(err, context.Canceled):
			// Client disconnected; the response will not be read
			h.logger.Debug("Forecast request cancelled", logger.String("city", city))
		case status == http.StatusNotFound:
			h.logger.Info("City not found",
				logger.String("request_id", RequestIDFromContext(r.Context())),
				logger.String("city", city))
		default:
			h.logger.Error("Forecast lookup failed",
				logger.String("request_id", RequestIDFromContext(r.Context())),
				logger.String("city", city),
				logger.Int("status_code", status),
				logger.Error(err))
		}

		WriteError(w, status, detail)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// cityParam extracts the city from the path. chi matches on the raw path
// when the request contains encoded reserved characters, so decode it here.
func cityParam(r *http.Request) string {
	city := chi.URLParam(r, "city")
	if r.URL.RawPath == "" {
		return city
	}
	if decoded, err := url.PathUnescape(city); err == nil {
		return decoded
	}
	return city
}

// WriteJSON writes a JSON response. The body is encoded before the status is
// sent so an encoding failure can still be reported as a 500.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"detail":"Internal server error"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// WriteError writes a {"detail": ...} error response
func WriteError(w http.ResponseWriter, status int, detail string) {
	WriteJSON(w, status, errorResponse{Detail: detail})
}
