package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sven3270350/Home-Entergy-Test/internal/store"
)

var ErrNotAReadingTopic = errors.New("not a reading topic")

// Ingestor accepts readings published to the broker on
// <prefix><ingest-key>. The broker path has no user token, so the device's
// ingest key stands in for the trust boundary: a message with an unknown key
// is dropped. Malformed messages are dropped and logged, never retried.
type Ingestor struct {
	Repo         *store.Repo
	TopicPrefix  string
	AllowRetains bool
}

type MQTTMessage interface {
	Topic() string
	Payload() []byte
	Retained() bool
}

type readingPayload struct {
	Timestamp  time.Time `json:"timestamp"`
	PowerWatts float64   `json:"power_watts"`
}

func (i *Ingestor) HandleMessage(ctx context.Context, msg MQTTMessage, receivedAt time.Time) {
	topic := msg.Topic()
	retained := msg.Retained()
	if retained && !i.AllowRetains {
		slog.Debug("telemetry ingest ignoring retained", "topic", topic)
		return
	}

	key, err := ParseIngestKey(i.TopicPrefix, topic)
	if err != nil {
		if errors.Is(err, ErrNotAReadingTopic) {
			return
		}
		slog.Warn("telemetry ingest topic parse failed", "topic", topic, "error", err)
		return
	}

	device, err := i.Repo.GetDeviceByIngestKey(ctx, key)
	if err != nil {
		slog.Warn("telemetry ingest unknown ingest key", "topic", topic)
		return
	}

	var p readingPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		slog.Warn("telemetry ingest invalid json", "topic", topic, "device_id", device.ID)
		return
	}
	if p.PowerWatts < 0 {
		slog.Warn("telemetry ingest negative power dropped", "device_id", device.ID, "power_watts", p.PowerWatts)
		return
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = receivedAt
	}

	rd := &store.Reading{DeviceID: device.ID, Timestamp: ts.UTC(), PowerWatts: p.PowerWatts}
	if err := i.Repo.InsertReading(ctx, rd); err != nil {
		slog.Error("telemetry ingest db insert failed", "device_id", device.ID, "error", err)
		return
	}
	slog.Debug("telemetry reading stored", "device_id", device.ID, "ts", rd.Timestamp)
}

func ParseIngestKey(prefix, topic string) (string, error) {
	if prefix == "" {
		prefix = "home-energy/telemetry/"
	}
	if !strings.HasPrefix(topic, prefix) {
		return "", ErrNotAReadingTopic
	}
	key := strings.TrimPrefix(topic, prefix)
	key = strings.Trim(key, "/")
	if key == "" {
		return "", errors.New("empty ingest key")
	}
	return key, nil
}
