package weather

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrEmptyCity is returned when a lookup is attempted with a blank city name
var ErrEmptyCity = errors.New("city name is required")

// CityNotFoundError reports that geocoding produced no match for a city
type CityNotFoundError struct {
	City string
}

func (e *CityNotFoundError) Error() string {
	return fmt.Sprintf("City not found: %s", e.City)
}

// WeatherServiceError reports a failure of an upstream dependency
type WeatherServiceError struct {
	Service    string // "geocoding" or "weather"
	StatusCode int    // upstream HTTP status, 0 if no response was received
	Err        error
}

func (e *WeatherServiceError) Error() string {
	label := e.Service
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error: %d", label, e.StatusCode)
	}
	return fmt.Sprintf("%s API error: %v", label, e.Err)
}

func (e *WeatherServiceError) Unwrap() error {
	return e.Err
}

// ClassifyError maps a forecast error to the HTTP status and detail
// message reported to clients
func ClassifyError(err error) (int, string) {
	var notFound *CityNotFoundError
	var svcErr *WeatherServiceError

	switch {
	case errors.Is(err, ErrEmptyCity):
		return http.StatusBadRequest, "City name is required"
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error()
	case errors.As(err, &svcErr):
		return http.StatusServiceUnavailable, svcErr.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
