// Package mqtt is the broker connectivity layer for telemetry ingestion.
package mqtt

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Message is an inbound broker message as handed to subscribers.
type Message = paho.Message

const (
	connectTimeout    = 15 * time.Second
	reconnectInterval = 2 * time.Second
	keepAlive         = 30 * time.Second
	pingTimeout       = 10 * time.Second

	// Readings tolerate duplicate delivery but not silent loss, so
	// subscriptions run at QoS 1 and resume across reconnects.
	subscribeQoS = 1
)

type Client struct {
	paho paho.Client
}

// Connect dials the broker and blocks until the session is up or the
// connect timeout elapses. The client keeps reconnecting on its own after
// that; subscribers do not need to resubscribe.
func Connect(brokerURL, clientID string) (*Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(normalizeBrokerURL(brokerURL)).
		SetClientID(defaultClientID(clientID)).
		SetAutoReconnect(true).
		SetResumeSubs(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnectInterval).
		SetKeepAlive(keepAlive).
		SetPingTimeout(pingTimeout)

	opts.OnConnect = func(paho.Client) {
		slog.Info("mqtt connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		slog.Warn("mqtt connection lost", "error", err)
	}

	c := paho.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("broker connect timed out after %s", connectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return &Client{paho: c}, nil
}

func (c *Client) Subscribe(topic string, handler func(Message)) error {
	tok := c.paho.Subscribe(topic, subscribeQoS, func(_ paho.Client, m paho.Message) {
		handler(m)
	})
	tok.Wait()
	return tok.Error()
}

func (c *Client) Close() {
	if c == nil || c.paho == nil {
		return
	}
	c.paho.Disconnect(250)
}

// normalizeBrokerURL maps the mqtt:// scheme commonly found in compose files
// onto the tcp:// scheme paho expects.
func normalizeBrokerURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		u = "tcp://mosquitto:1883"
	}
	if strings.HasPrefix(u, "mqtt://") {
		u = "tcp://" + strings.TrimPrefix(u, "mqtt://")
	}
	return u
}

func defaultClientID(id string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return "telemetry-service-" + time.Now().Format("150405.000")
}
