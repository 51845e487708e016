package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/petems/freshscan/internal/config"
	"github.com/rs/zerolog"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { <-t.done; return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu          sync.Mutex
	connected   bool
	connectErr  error
	publishErr  error
	calls       []publishCall
	disconnects int
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr == nil {
		c.connected = true
	}
	return newToken(c.connectErr)
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, publishCall{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return newToken(c.publishErr)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.connected = false
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{Enabled: true, Broker: "localhost:1883", ClientID: "test", Topic: "freshscan/alerts", QoS: 1}
}

func TestPublishRetainedJSON(t *testing.T) {
	fc := &fakeClient{}
	n := newWithClient(testConfig(), fc, zerolog.Nop())
	if err := n.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := n.Publish(Event{SessionID: "abc", Hazard: true, Keywords: []string{"mould"}, Timestamp: ts}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	n.Close()

	if len(fc.calls) != 1 {
		t.Fatalf("publish calls = %d, want 1", len(fc.calls))
	}
	call := fc.calls[0]
	if call.topic != "freshscan/alerts" || call.qos != 1 || !call.retained {
		t.Errorf("publish call = %+v", call)
	}

	var got Event
	if err := json.Unmarshal(call.payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.SessionID != "abc" || !got.Hazard || len(got.Keywords) != 1 || !got.Timestamp.Equal(ts) {
		t.Errorf("payload = %+v", got)
	}

	published, failures := n.Stats()
	if published != 1 || failures != 0 {
		t.Errorf("Stats() = %d, %d; want 1, 0", published, failures)
	}
	if fc.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", fc.disconnects)
	}
}

func TestPublishNotConnected(t *testing.T) {
	fc := &fakeClient{}
	n := newWithClient(testConfig(), fc, zerolog.Nop())

	if err := n.Publish(Event{Hazard: true}); err == nil {
		t.Error("Publish() error = nil, want not connected")
	}
	if _, failures := n.Stats(); failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
}

func TestPublishDeliveryFailureCounted(t *testing.T) {
	fc := &fakeClient{publishErr: errors.New("broker gone")}
	n := newWithClient(testConfig(), fc, zerolog.Nop())
	if err := n.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := n.Publish(Event{Hazard: false}); err != nil {
		t.Fatalf("Publish() error = %v, want nil (failure is asynchronous)", err)
	}
	n.Close()

	published, failures := n.Stats()
	if published != 0 || failures != 1 {
		t.Errorf("Stats() = %d, %d; want 0, 1", published, failures)
	}
}

func TestConnectFailure(t *testing.T) {
	fc := &fakeClient{connectErr: errors.New("refused")}
	n := newWithClient(testConfig(), fc, zerolog.Nop())

	if err := n.Connect(context.Background()); err == nil {
		t.Error("Connect() error = nil, want failure")
	}
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = Nop{}
	if err := n.Publish(Event{Hazard: true}); err != nil {
		t.Errorf("Nop.Publish() error = %v", err)
	}
	n.Close()
}
