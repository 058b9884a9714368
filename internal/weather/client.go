package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yegors/wx-forecast/pkg/logger"
)

const (
	serviceGeocoding = "geocoding"
	serviceWeather   = "weather"

	currentFields = "temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code"

	// WMO present-weather codes (ww) span 00-99
	minWeatherCode = 0
	maxWeatherCode = 99
)

// NewHTTPClient creates the HTTP client shared by the upstream clients.
// The dialer bounds connection setup and the client bounds the whole exchange.
func NewHTTPClient(config Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = config.ConnectTimeout

	return &http.Client{
		Transport: transport,
		Timeout:   config.RequestTimeout,
	}
}

// GeocodingClient resolves city names to coordinates
type GeocodingClient struct {
	baseURL    string
	language   string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewGeocodingClient creates a new geocoding API client
func NewGeocodingClient(config Config, httpClient *http.Client, logger *logger.Logger) *GeocodingClient {
	return &GeocodingClient{
		baseURL:    config.GeocodingURL,
		language:   config.Language,
		httpClient: httpClient,
		logger:     logger.Named("geocoding-client"),
	}
}

// Resolve returns the best match coordinates for the given city name
func (c *GeocodingClient) Resolve(ctx context.Context, city string) (Coordinates, error) {
	if strings.TrimSpace(city) == "" {
		return Coordinates{}, ErrEmptyCity
	}

	params := url.Values{}
	params.Set("name", city)
	params.Set("count", "1")
	params.Set("format", "json")
	if c.language != "" {
		params.Set("language", c.language)
	}

	var result geocodingResponse
	if err := fetchJSON(ctx, c.httpClient, c.logger, serviceGeocoding, c.baseURL, params, &result); err != nil {
		return Coordinates{}, err
	}

	if len(result.Results) == 0 {
		c.logger.Debug("No geocoding match", logger.String("city", city))
		return Coordinates{}, &CityNotFoundError{City: city}
	}

	match := result.Results[0]
	if match.Latitude == nil || match.Longitude == nil {
		return Coordinates{}, &WeatherServiceError{
			Service: serviceGeocoding,
			Err:     fmt.Errorf("result for %q is missing coordinates", city),
		}
	}

	coords := Coordinates{Latitude: *match.Latitude, Longitude: *match.Longitude}
	if err := coords.Validate(); err != nil {
		return Coordinates{}, &WeatherServiceError{Service: serviceGeocoding, Err: err}
	}

	c.logger.Debug("Resolved city",
		logger.String("city", city),
		logger.String("match", match.Name),
		logger.Float64("lat", coords.Latitude),
		logger.Float64("lon", coords.Longitude))

	return coords, nil
}

// WeatherClient fetches current conditions for a coordinate pair
type WeatherClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewWeatherClient creates a new forecast API client
func NewWeatherClient(config Config, httpClient *http.Client, logger *logger.Logger) *WeatherClient {
	return &WeatherClient{
		baseURL:    config.ForecastURL,
		httpClient: httpClient,
		logger:     logger.Named("weather-client"),
	}
}

// FetchCurrent returns the current conditions at the given coordinates
func (c *WeatherClient) FetchCurrent(ctx context.Context, coords Coordinates) (*CurrentConditions, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(coords.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(coords.Longitude, 'f', -1, 64))
	params.Set("current", currentFields)

	var result forecastResponse
	if err := fetchJSON(ctx, c.httpClient, c.logger, serviceWeather, c.baseURL, params, &result); err != nil {
		return nil, err
	}

	current := result.Current
	if current == nil {
		return nil, &WeatherServiceError{Service: serviceWeather, Err: errors.New("response has no current conditions")}
	}

	var missing []string
	if current.Temperature == nil {
		missing = append(missing, "temperature_2m")
	}
	if current.Humidity == nil {
		missing = append(missing, "relative_humidity_2m")
	}
	if current.WindSpeed == nil {
		missing = append(missing, "wind_speed_10m")
	}
	if current.WeatherCode == nil {
		missing = append(missing, "weather_code")
	}
	if len(missing) > 0 {
		return nil, &WeatherServiceError{
			Service: serviceWeather,
			Err:     fmt.Errorf("current conditions missing fields: %s", strings.Join(missing, ", ")),
		}
	}

	// Reject values no real observation can have before converting to int
	humidity := math.Round(*current.Humidity)
	if humidity < 0 || humidity > 100 {
		return nil, &WeatherServiceError{
			Service: serviceWeather,
			Err:     fmt.Errorf("relative_humidity_2m out of range: %v", *current.Humidity),
		}
	}
	code := math.Round(*current.WeatherCode)
	if code < minWeatherCode || code > maxWeatherCode {
		return nil, &WeatherServiceError{
			Service: serviceWeather,
			Err:     fmt.Errorf("weather_code out of range: %v", *current.WeatherCode),
		}
	}

	return &CurrentConditions{
		TemperatureC: *current.Temperature,
		HumidityPct:  int(humidity),
		WindSpeedKph: *current.WindSpeed,
		WeatherCode:  int(code),
	}, nil
}

// fetchJSON performs a single GET against an upstream API and decodes the body into target.
// Every failure is reported as a *WeatherServiceError for the named service.
func fetchJSON(ctx context.Context, httpClient *http.Client, log *logger.Logger, service, baseURL string, params url.Values, target interface{}) error {
	endpoint, err := url.Parse(baseURL)
	if err != nil {
		return &WeatherServiceError{Service: service, Err: fmt.Errorf("invalid base URL: %w", err)}
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return &WeatherServiceError{Service: service, Err: fmt.Errorf("error creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		log.Warn("Upstream request failed",
			logger.String("service", service),
			logger.Error(err))
		return &WeatherServiceError{Service: service, Err: fmt.Errorf("error making request: %w", err)}
	}
	defer resp.Body.Close()

	log.Debug("Upstream response received",
		logger.String("service", service),
		logger.Int("status_code", resp.StatusCode),
		logger.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("Upstream returned non-success status",
			logger.String("service", service),
			logger.Int("status_code", resp.StatusCode))
		return &WeatherServiceError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return &WeatherServiceError{Service: service, Err: fmt.Errorf("error decoding response: %w", err)}
	}

	return nil
}
