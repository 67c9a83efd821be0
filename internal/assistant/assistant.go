// Package assistant answers natural-language questions about home energy
// usage. A query is resolved in two LLM round trips: one to pick the device
// and period the user is asking about, one to phrase an answer from the
// numbers the telemetry service returns.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sven3270350/Home-Entergy-Test/internal/assistant/llm"
)

type Assistant struct {
	llm       llm.Client
	telemetry *TelemetryClient
}

func New(llmClient llm.Client, telemetry *TelemetryClient) *Assistant {
	return &Assistant{llm: llmClient, telemetry: telemetry}
}

// Answer holds the assembled response plus the data it was grounded on.
type Answer struct {
	Reply    string       `json:"reply"`
	DeviceID string       `json:"device_id,omitempty"`
	Period   string       `json:"period,omitempty"`
	Stats    *DeviceStats `json:"stats,omitempty"`
}

type intent struct {
	DeviceID string `json:"device_id"`
	Period   string `json:"period"`
}

const intentSystemPrompt = `You are an intent extractor for a home energy monitoring system.
Given the user's question and their device list, respond with ONLY a JSON object:
{"device_id": "<uuid of the device the question is about, or empty string>", "period": "<24h, 7d or 30d>"}
Pick 24h when the question gives no time frame. No prose, no markdown.`

const answerSystemPrompt = `You are a friendly home energy assistant.
Answer the user's question using only the statistics provided. Keep it to a
couple of sentences, use watts and watt-hours, and do not invent numbers.`

// ProcessQuery runs the full pipeline for one user question. The caller's
// bearer token is forwarded to the telemetry service, so the assistant can
// only ever see devices the user owns.
func (a *Assistant) ProcessQuery(ctx context.Context, token, query string) (*Answer, error) {
	devices, err := a.telemetry.ListDevices(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devices) == 0 {
		return &Answer{Reply: "You don't have any devices registered yet, so there is no usage data to look at."}, nil
	}

	in, err := a.extractIntent(ctx, query, devices)
	if err != nil {
		return nil, err
	}
	if in.DeviceID == "" {
		return &Answer{Reply: "I couldn't tell which device you mean. Try naming one of your registered devices."}, nil
	}

	stats, err := a.telemetry.GetStats(ctx, token, in.DeviceID, in.Period)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stats: %w", err)
	}
	readings, err := a.telemetry.ListReadings(ctx, token, in.DeviceID, periodStart(in.Period), time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch readings: %w", err)
	}

	reply, err := a.composeAnswer(ctx, query, deviceName(devices, in.DeviceID), stats, readings)
	if err != nil {
		return nil, err
	}
	return &Answer{Reply: reply, DeviceID: in.DeviceID, Period: in.Period, Stats: stats}, nil
}

func (a *Assistant) extractIntent(ctx context.Context, query string, devices []DeviceInfo) (*intent, error) {
	deviceJSON, _ := json.Marshal(devices)
	messages := []llm.Message{
		{Role: "system", Content: intentSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Devices: %s\n\nQuestion: %s", deviceJSON, query)},
	}

	raw, err := a.llm.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("intent extraction failed: %w", err)
	}

	var in intent
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &in); err != nil {
		slog.Warn("unparseable intent from model", "raw", raw)
		return &intent{}, nil
	}
	in.Period = normalizePeriod(in.Period)
	if !knownDevice(devices, in.DeviceID) {
		in.DeviceID = ""
	}
	return &in, nil
}

func (a *Assistant) composeAnswer(ctx context.Context, query, deviceName string, stats *DeviceStats, readings []ReadingInfo) (string, error) {
	statsJSON, _ := json.Marshal(stats)
	prompt := fmt.Sprintf("Question: %s\nDevice: %s\nStatistics: %s\nSamples in period: %d", query, deviceName, statsJSON, len(readings))
	if len(readings) > 0 {
		latest := readings[0]
		prompt += fmt.Sprintf("\nMost recent sample: %.1f W at %s", latest.PowerWatts, latest.Timestamp.Format(time.RFC3339))
	}
	messages := []llm.Message{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: prompt},
	}
	reply, err := a.llm.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// stripCodeFence unwraps ```json ... ``` blocks that chat models like to
// emit even when told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// normalizePeriod maps the model's phrasing onto the periods the telemetry
// service accepts. Anything unrecognized falls back to 24h.
func normalizePeriod(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "24h", "day", "today", "last day", "yesterday":
		return "24h"
	case "7d", "week", "last week", "this week":
		return "7d"
	case "30d", "month", "last month", "this month":
		return "30d"
	default:
		return "24h"
	}
}

func periodStart(period string) time.Time {
	now := time.Now().UTC()
	switch period {
	case "7d":
		return now.Add(-7 * 24 * time.Hour)
	case "30d":
		return now.Add(-30 * 24 * time.Hour)
	default:
		return now.Add(-24 * time.Hour)
	}
}

func knownDevice(devices []DeviceInfo, id string) bool {
	for _, d := range devices {
		if d.ID == id {
			return true
		}
	}
	return false
}

func deviceName(devices []DeviceInfo, id string) string {
	for _, d := range devices {
		if d.ID == id {
			return d.Name
		}
	}
	return id
}
