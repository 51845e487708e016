// Package notify publishes hazard alert transitions to an MQTT broker so
// other devices in the house can react.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/petems/freshscan/internal/config"
	"github.com/rs/zerolog"
)

const publishTimeout = 2 * time.Second

// Event describes one alert transition.
type Event struct {
	SessionID  string    `json:"session_id"`
	Hazard     bool      `json:"hazard"`
	Keywords   []string  `json:"keywords,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type Notifier interface {
	Publish(Event) error
	Close()
}

// Nop discards every event. Used when MQTT is disabled.
type Nop struct{}

func (Nop) Publish(Event) error { return nil }
func (Nop) Close()              {}

// client is the subset of mqtt.Client the publisher needs.
type client interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes retained alert state to a single topic.
type MQTT struct {
	cfg    config.MQTTConfig
	client client
	log    zerolog.Logger

	wg sync.WaitGroup

	mu        sync.Mutex
	published uint64
	failures  uint64
}

// NewMQTT configures an auto-reconnecting client. Call Connect before
// publishing.
func NewMQTT(cfg config.MQTTConfig, logger zerolog.Logger) *MQTT {
	n := &MQTT{cfg: cfg, log: logger.With().Str("component", "mqtt").Logger()}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		n.log.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		n.log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost, reconnecting")
	}

	n.client = mqtt.NewClient(opts)
	return n
}

func newWithClient(cfg config.MQTTConfig, c client, logger zerolog.Logger) *MQTT {
	return &MQTT{cfg: cfg, client: c, log: logger}
}

// Connect waits for the first connection until ctx is done. With connect
// retry enabled the client keeps trying in the background after a timeout.
func (n *MQTT) Connect(ctx context.Context) error {
	token := n.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt connection: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// Publish sends e without blocking the caller. Delivery failures are logged.
func (n *MQTT) Publish(e Event) error {
	if !n.client.IsConnected() {
		n.fail()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(e)
	if err != nil {
		n.fail()
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	token := n.client.Publish(n.cfg.Topic, n.cfg.QoS, true, payload)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if !token.WaitTimeout(publishTimeout) {
			n.fail()
			n.log.Warn().Str("topic", n.cfg.Topic).Msg("Alert publish timed out")
			return
		}
		if err := token.Error(); err != nil {
			n.fail()
			n.log.Warn().Err(err).Str("topic", n.cfg.Topic).Msg("Alert publish failed")
			return
		}
		n.mu.Lock()
		n.published++
		n.mu.Unlock()
		n.log.Debug().Str("topic", n.cfg.Topic).Bool("hazard", e.Hazard).Msg("Alert published")
	}()
	return nil
}

// Stats returns delivered and failed publish counts.
func (n *MQTT) Stats() (published, failures uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.published, n.failures
}

// Close waits for outstanding publishes and disconnects.
func (n *MQTT) Close() {
	n.wg.Wait()
	n.client.Disconnect(250)
}

func (n *MQTT) fail() {
	n.mu.Lock()
	n.failures++
	n.mu.Unlock()
}
