// Command simulator seeds a test account with a handful of household
// appliances and backfills a day of minute-resolution readings, so the
// telemetry and assistant services have something to chew on in dev.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/sven3270350/Home-Entergy-Test/internal/config"
)

type applianceProfile struct {
	Name       string
	DeviceType string
	BaseLoad   float64
	Variance   float64
}

var appliances = []applianceProfile{
	{Name: "Refrigerator", DeviceType: "Refrigerator", BaseLoad: 100, Variance: 20},
	{Name: "Air Conditioner", DeviceType: "Air Conditioner", BaseLoad: 1500, Variance: 500},
	{Name: "Washing Machine", DeviceType: "Washing Machine", BaseLoad: 500, Variance: 200},
	{Name: "Dishwasher", DeviceType: "Dishwasher", BaseLoad: 1200, Variance: 300},
	{Name: "Water Heater", DeviceType: "Water Heater", BaseLoad: 4000, Variance: 1000},
}

type simulator struct {
	cfg        *config.SimulatorConfig
	token      string
	httpClient *http.Client
}

func main() {
	cfg := config.LoadSimulator()
	config.SetupLogging(cfg.LogLevel)

	sim := &simulator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	if err := sim.login(); err != nil {
		slog.Error("login failed", "error", err)
		os.Exit(1)
	}

	devices, err := sim.createDevices()
	if err != nil {
		slog.Error("device setup failed", "error", err)
		os.Exit(1)
	}
	slog.Info("test devices ready", "count", len(devices))

	// Backfill 24 hours at one-minute resolution, from midnight UTC.
	start := time.Now().UTC().Truncate(24 * time.Hour)
	for minute := 0; minute < 24*60; minute++ {
		ts := start.Add(time.Duration(minute) * time.Minute)
		for _, d := range devices {
			watts := d.profile.sample(ts)
			if err := sim.postReading(d.id, ts, watts); err != nil {
				slog.Warn("reading rejected", "device", d.profile.Name, "error", err)
			}
		}
		if minute%60 == 0 {
			slog.Info("backfill progress", "hour", minute/60)
		}
		time.Sleep(100 * time.Millisecond)
	}
	slog.Info("backfill complete")
}

// sample produces a plausible power draw for the appliance at the given
// time of day.
func (p applianceProfile) sample(ts time.Time) float64 {
	watts := p.BaseLoad + (rand.Float64()*2-1)*p.Variance
	hour := ts.Hour()

	// Night-time reduction for most devices.
	if hour >= 23 || hour <= 5 {
		watts *= 0.5
	}
	// AC peaks in the afternoon.
	if p.DeviceType == "Air Conditioner" && hour >= 12 && hour <= 18 {
		watts *= 1.5
	}
	// Washer and dishwasher run around breakfast and dinner, idle otherwise.
	if p.DeviceType == "Washing Machine" || p.DeviceType == "Dishwasher" {
		switch hour {
		case 7, 8, 19, 20:
			watts *= 2
		default:
			watts *= 0.1
		}
	}
	if watts < 0 {
		watts = 0
	}
	return watts
}

func (s *simulator) login() error {
	user := map[string]string{
		"email":     s.cfg.UserEmail,
		"password":  s.cfg.UserPassword,
		"full_name": "Test User",
	}

	// Registration may 409 on reruns; login is what matters.
	if _, err := s.postJSON(s.cfg.AuthAPIURL+"/api/auth/register", user, nil); err != nil {
		slog.Debug("register skipped", "error", err)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if _, err := s.postJSON(s.cfg.AuthAPIURL+"/api/auth/login", map[string]string{
		"email": user["email"], "password": user["password"],
	}, &tok); err != nil {
		return err
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("login returned no access token")
	}
	s.token = tok.AccessToken
	return nil
}

type simDevice struct {
	id      string
	profile applianceProfile
}

func (s *simulator) createDevices() ([]simDevice, error) {
	devices := make([]simDevice, 0, len(appliances))
	for _, p := range appliances {
		var created struct {
			ID string `json:"id"`
		}
		if _, err := s.postJSON(s.cfg.TelemetryAPIURL+"/api/devices", map[string]string{
			"name": p.Name, "device_type": p.DeviceType,
		}, &created); err != nil {
			return nil, fmt.Errorf("create device %s: %w", p.Name, err)
		}
		devices = append(devices, simDevice{id: created.ID, profile: p})
	}
	return devices, nil
}

func (s *simulator) postReading(deviceID string, ts time.Time, watts float64) error {
	_, err := s.postJSON(s.cfg.TelemetryAPIURL+"/api/telemetry", map[string]any{
		"device_id":   deviceID,
		"timestamp":   ts.Format(time.RFC3339),
		"power_watts": watts,
	}, nil)
	return err
}

func (s *simulator) postJSON(url string, body any, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
