package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

var WeatherSpec = &models.ToolSpec{
	Name:            "get_weather",
	Description:     "Looks up current weather conditions for a named location.",
	RiskTier:        models.RiskSafe,
	RateLimitClass:  "safe",
	SideEffect:      models.SideEffectNetwork,
	PostConditionID: "weather_payload_shape",
	ArgSchema: models.ArgSchema{
		Required: []string{"location"},
		Properties: map[string]models.ArgConstraint{
			"location": {Type: "string"},
		},
	},
}

// geocodeResult and forecastResult mirror the subset of the Open-Meteo
// geocoding/forecast APIs this tool needs; both are free, keyless endpoints.
type geocodeResult struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResult struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WeatherCode int     `json:"weathercode"`
	} `json:"current_weather"`
}

// Weather implements ports.ToolHandler against Open-Meteo, grounded on the
// same http.Client + context deadline pattern used by the research tool.
type Weather struct {
	client  *http.Client
	baseURL string
}

func NewWeather() *Weather {
	return &Weather{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://api.open-meteo.com",
	}
}

func (w *Weather) Run(ctx context.Context, args map[string]any, execCtx *ports.ExecutionContext) (*models.ExecutionResult, error) {
	start := time.Now()

	if !execCtx.HasCapability(ports.CapNetwork) {
		return nil, fmt.Errorf("get_weather requires network capability")
	}

	location, _ := args["location"].(string)
	if location == "" {
		return nil, fmt.Errorf("location is required")
	}

	lat, lon, resolvedName, err := w.geocode(ctx, location)
	if err != nil {
		return &models.ExecutionResult{
			Success:      false,
			ErrorKind:    "geocode_failed",
			ErrorMessage: err.Error(),
			Duration:     time.Since(start),
		}, nil
	}

	temp, code, err := w.forecast(ctx, lat, lon)
	if err != nil {
		return &models.ExecutionResult{
			Success:      false,
			ErrorKind:    "forecast_failed",
			ErrorMessage: err.Error(),
			Duration:     time.Since(start),
		}, nil
	}

	return &models.ExecutionResult{
		Success: true,
		Value: map[string]any{
			"location":    resolvedName,
			"temperature": fmt.Sprintf("%.1f°C", temp),
			"condition":   weatherCodeToCondition(code),
		},
		Duration: time.Since(start),
	}, nil
}

func (w *Weather) geocode(ctx context.Context, location string) (lat, lon float64, name string, err error) {
	u := fmt.Sprintf("%s/v1/search?name=%s&count=1", w.baseURL, url.QueryEscape(location))
	var result geocodeResult
	if err := w.getJSON(ctx, u, &result); err != nil {
		return 0, 0, "", err
	}
	if len(result.Results) == 0 {
		return 0, 0, "", fmt.Errorf("no location found for %q", location)
	}
	r := result.Results[0]
	return r.Latitude, r.Longitude, r.Name, nil
}

func (w *Weather) forecast(ctx context.Context, lat, lon float64) (temperature float64, code int, err error) {
	u := fmt.Sprintf("%s/v1/forecast?latitude=%f&longitude=%f&current_weather=true", w.baseURL, lat, lon)
	var result forecastResult
	if err := w.getJSON(ctx, u, &result); err != nil {
		return 0, 0, err
	}
	return result.CurrentWeather.Temperature, result.CurrentWeather.WeatherCode, nil
}

func (w *Weather) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, u)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// weatherCodeToCondition maps a subset of WMO weather codes (as used by
// Open-Meteo) to a human-readable condition string.
func weatherCodeToCondition(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "showers"
	case code <= 99:
		return "thunderstorm"
	default:
		return "unknown"
	}
}
