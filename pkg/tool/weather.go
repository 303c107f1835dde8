package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// WeatherConfig configures the Open-Meteo weather tool.
type WeatherConfig struct {
	GeocodingURL string
	ForecastURL  string
	Client       *http.Client
}

// NewWeather creates the get_weather tool. It geocodes a city name and fetches
// the current forecast from Open-Meteo. No API key is required.
func NewWeather(cfg WeatherConfig) Definition {
	geocodingURL := cfg.GeocodingURL
	if geocodingURL == "" {
		geocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	}
	forecastURL := cfg.ForecastURL
	if forecastURL == "" {
		forecastURL = "https://api.open-meteo.com/v1/forecast"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return Definition{
		Name:        "get_weather",
		Description: "Get weather forecast for a city using Open-Meteo API (includes current conditions)",
		Parameters: []Parameter{
			{Name: "city", Type: "string", Description: "City name (e.g., 'London', 'New York')", Required: true},
			{Name: "units", Type: "string", Description: "temperature unit: 'metric' (default) or 'imperial'", Default: "metric"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			city, _ := args["city"].(string)
			if city == "" {
				return nil, fmt.Errorf("city parameter is required")
			}
			units := stringArg(args, "units", "metric")

			place, err := geocode(ctx, client, geocodingURL, city)
			if err != nil {
				return nil, err
			}

			params := url.Values{}
			params.Set("latitude", fmt.Sprintf("%.4f", place.Latitude))
			params.Set("longitude", fmt.Sprintf("%.4f", place.Longitude))
			params.Set("current", "temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code")
			if units == "imperial" {
				params.Set("temperature_unit", "fahrenheit")
				params.Set("wind_speed_unit", "mph")
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, forecastURL+"?"+params.Encode(), nil)
			if err != nil {
				return nil, err
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, Transient("weather request failed", err)
			}
			defer resp.Body.Close()

			if transientStatus(resp.StatusCode) {
				return nil, Transient(fmt.Sprintf("open-meteo returned status %d", resp.StatusCode), nil)
			}
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("open-meteo returned status %d", resp.StatusCode)
			}

			var payload struct {
				Current struct {
					Temperature float64 `json:"temperature_2m"`
					Humidity    float64 `json:"relative_humidity_2m"`
					WindSpeed   float64 `json:"wind_speed_10m"`
					WeatherCode int     `json:"weather_code"`
				} `json:"current"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return nil, fmt.Errorf("failed to decode forecast response: %w", err)
			}

			unitLabel := "°C"
			if units == "imperial" {
				unitLabel = "°F"
			}

			return map[string]interface{}{
				"city":        place.Name,
				"country":     place.Country,
				"temperature": payload.Current.Temperature,
				"unit":        unitLabel,
				"humidity":    payload.Current.Humidity,
				"wind_speed":  payload.Current.WindSpeed,
				"conditions":  describeWeatherCode(payload.Current.WeatherCode),
			}, nil
		},
	}
}

type geocodeResult struct {
	Name      string
	Country   string
	Latitude  float64
	Longitude float64
}

func geocode(ctx context.Context, client *http.Client, geocodingURL, city string) (*geocodeResult, error) {
	params := url.Values{}
	params.Set("name", city)
	params.Set("count", "1")
	params.Set("language", "en")
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, geocodingURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, Transient("geocoding request failed", err)
	}
	defer resp.Body.Close()

	if transientStatus(resp.StatusCode) {
		return nil, Transient(fmt.Sprintf("geocoding returned status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding returned status %d", resp.StatusCode)
	}

	var payload struct {
		Results []struct {
			Name      string  `json:"name"`
			Country   string  `json:"country"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode geocoding response: %w", err)
	}
	if len(payload.Results) == 0 {
		return nil, fmt.Errorf("city not found: %s", city)
	}

	r := payload.Results[0]
	country := r.Country
	if country == "" {
		country = "Unknown"
	}
	return &geocodeResult{
		Name:      r.Name,
		Country:   country,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}, nil
}

// describeWeatherCode translates WMO weather codes into readable conditions.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}
