package weather

import (
	"fmt"
	"time"
)

// Coordinates is a resolved geographic position
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that the coordinates fall within valid ranges
func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %f", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %f", c.Longitude)
	}
	return nil
}

// CurrentConditions is the raw current weather observed at a coordinate pair
type CurrentConditions struct {
	TemperatureC float64
	HumidityPct  int
	WindSpeedKph float64
	WeatherCode  int
}

// ForecastResult is the assembled forecast returned to callers
type ForecastResult struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"` // Celsius
	Humidity    int     `json:"humidity"`    // Percent
	WindSpeed   float64 `json:"wind_speed"`  // km/h
	Conditions  string  `json:"conditions"`
}

// Config represents the upstream endpoint configuration
type Config struct {
	GeocodingURL   string
	ForecastURL    string
	Language       string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig returns the default Open-Meteo configuration
func DefaultConfig() Config {
	return Config{
		GeocodingURL:   "https://geocoding-api.open-meteo.com/v1/search",
		ForecastURL:    "https://api.open-meteo.com/v1/forecast",
		Language:       "en",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// geocodingResponse is the subset of the geocoding payload we consume
type geocodingResponse struct {
	Results []struct {
		Name      string   `json:"name"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Country   string   `json:"country,omitempty"`
	} `json:"results"`
}

// forecastResponse is the subset of the forecast payload we consume
type forecastResponse struct {
	Current *struct {
		Temperature *float64 `json:"temperature_2m"`
		Humidity    *float64 `json:"relative_humidity_2m"`
		WindSpeed   *float64 `json:"wind_speed_10m"`
		WeatherCode *float64 `json:"weather_code"`
	} `json:"current"`
}
