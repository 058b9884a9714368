package weather

import (
	"context"
)

// Geocoder resolves a city name to coordinates
type Geocoder interface {
	Resolve(ctx context.Context, city string) (Coordinates, error)
}

// ConditionsFetcher fetches current conditions for coordinates
type ConditionsFetcher interface {
	FetchCurrent(ctx context.Context, coords Coordinates) (*CurrentConditions, error)
}

// Service assembles forecasts from the geocoding and weather dependencies.
// It holds no mutable state and is safe for concurrent use.
type Service struct {
	geocoder Geocoder
	weather  ConditionsFetcher
}

// NewService creates a new forecast service
func NewService(geocoder Geocoder, weather ConditionsFetcher) *Service {
	return &Service{
		geocoder: geocoder,
		weather:  weather,
	}
}

// GetForecast resolves the city and returns its current forecast.
// Errors from either dependency are returned unchanged, and the returned
// city is the caller's input verbatim.
func (s *Service) GetForecast(ctx context.Context, city string) (*ForecastResult, error) {
	coords, err := s.geocoder.Resolve(ctx, city)
	if err != nil {
		return nil, err
	}

	raw, err := s.weather.FetchCurrent(ctx, coords)
	if err != nil {
		return nil, err
	}

	return &ForecastResult{
		City:        city,
		Temperature: raw.TemperatureC,
		Humidity:    raw.HumidityPct,
		WindSpeed:   raw.WindSpeedKph,
		Conditions:  Describe(raw.WeatherCode),
	}, nil
}
