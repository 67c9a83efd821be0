package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// TelemetryClient calls the telemetry service as a plain client, forwarding
// the caller's own bearer token. The assistant has no privileged path into
// the store.
type TelemetryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewTelemetryClient(baseURL string) *TelemetryClient {
	return &TelemetryClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type DeviceInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DeviceType string `json:"device_type"`
}

type DeviceStats struct {
	DeviceID             string  `json:"device_id"`
	Period               string  `json:"period"`
	AvgPowerWatts        float64 `json:"avg_power_watts"`
	MaxPowerWatts        float64 `json:"max_power_watts"`
	MinPowerWatts        float64 `json:"min_power_watts"`
	TotalEnergyWattHours float64 `json:"total_energy_watt_hours"`
}

type ReadingInfo struct {
	Timestamp  time.Time `json:"timestamp"`
	PowerWatts float64   `json:"power_watts"`
}

type readingsPage struct {
	Readings []ReadingInfo `json:"readings"`
}

func (c *TelemetryClient) ListDevices(ctx context.Context, token string) ([]DeviceInfo, error) {
	var out []DeviceInfo
	if err := c.get(ctx, token, "/api/devices", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TelemetryClient) GetStats(ctx context.Context, token, deviceID, period string) (*DeviceStats, error) {
	var out DeviceStats
	params := url.Values{"period": {period}}
	if err := c.get(ctx, token, "/api/telemetry/"+deviceID+"/stats", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *TelemetryClient) ListReadings(ctx context.Context, token, deviceID string, start, end time.Time) ([]ReadingInfo, error) {
	params := url.Values{}
	if !start.IsZero() {
		params.Set("start_time", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		params.Set("end_time", end.UTC().Format(time.RFC3339))
	}
	var out readingsPage
	if err := c.get(ctx, token, "/api/telemetry/"+deviceID, params, &out); err != nil {
		return nil, err
	}
	return out.Readings, nil
}

func (c *TelemetryClient) get(ctx context.Context, token, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telemetry service error (status %d): %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
