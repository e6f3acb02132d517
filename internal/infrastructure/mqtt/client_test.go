package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/trackguard/internal/infrastructure/config"
)

// testConfig returns a configuration pointing at a local broker.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS:         1,
		TopicPrefix: "trackguard-test",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// requireBroker skips the test when no broker listens on 127.0.0.1:1883.
func requireBroker(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 200*time.Millisecond)
	if err != nil {
		t.Skip("no MQTT broker on 127.0.0.1:1883")
	}
	conn.Close()
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"status", NewTopics("trackguard").Status("tg-1"), "trackguard/status/tg-1"},
		{"config", NewTopics("trackguard").DeviceConfig("hw-42"), "trackguard/device/hw-42/config"},
		{"state", NewTopics("fleet/").DeviceState("hw-42"), "fleet/device/hw-42/state"},
		{"default prefix", NewTopics("").DeviceConfig("x"), "trackguard/device/x/config"},
		{"wildcards sanitized", NewTopics("tg").DeviceConfig("a/b+c#"), "tg/device/a_b_c_/config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBrokerURL(t *testing.T) {
	cfg := testConfig("x")
	if got := brokerURL(cfg); got != "tcp://127.0.0.1:1883" {
		t.Errorf("brokerURL() = %q", got)
	}
	cfg.Broker.TLS = true
	if got := brokerURL(cfg); got != "ssl://127.0.0.1:1883" {
		t.Errorf("brokerURL() with TLS = %q", got)
	}
}

func TestStatusPayload(t *testing.T) {
	online := statusPayload("tg-1", "online", "")
	if !strings.Contains(online, `"status":"online"`) || strings.Contains(online, "reason") {
		t.Errorf("online payload = %s", online)
	}
	offline := statusPayload("tg-1", "offline", "graceful_shutdown")
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload = %s", offline)
	}
}

func TestValidationWithoutConnection(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("a", nil, 3, false), ErrInvalidQoS},
		{"publish too large", c.Publish("a", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("a", []byte("x"), 1, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 1, noop), ErrInvalidTopic},
		{"subscribe nil handler", c.Subscribe("a", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("a", 1, noop), ErrNotConnected},
		{"unsubscribe empty topic", c.Unsubscribe(""), ErrInvalidTopic},
		{"health disconnected", c.HealthCheck(context.Background()), ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	logger := &mockLogger{}
	c := &Client{logger: logger}

	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)

	if len(logger.errors) != 1 {
		t.Errorf("errors logged = %d, want 1", len(logger.errors))
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings logged = %d, want 1", len(logger.warns))
	}
}

func TestOptions(t *testing.T) {
	c := &Client{clientID: "cfg-id"}
	WithClientID("")(c)
	if c.clientID != "cfg-id" {
		t.Errorf("empty WithClientID changed id to %q", c.clientID)
	}
	WithClientID("tg-hw-42")(c)
	if c.clientID != "tg-hw-42" {
		t.Errorf("clientID = %q", c.clientID)
	}
}

func TestConnectInvalidBroker(t *testing.T) {
	cfg := testConfig("trackguard-test-refused")
	cfg.Broker.Port = 19999

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectAndClose(t *testing.T) {
	requireBroker(t)

	connected := make(chan struct{}, 1)
	client, err := Connect(testConfig("trackguard-test-connect"), WithOnConnect(func() {
		select {
		case connected <- struct{}{}:
		default:
		}
	}))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Error("on-connect callback not called for initial connection")
	}

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestRetainedRoundtrip(t *testing.T) {
	requireBroker(t)

	pub, err := Connect(testConfig("trackguard-test-pub"))
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	topic := pub.Topics().DeviceConfig(fmt.Sprintf("dev-%d", time.Now().UnixNano()))
	if err := pub.PublishRetained(topic, []byte(`{"interval":60}`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}
	defer pub.Publish(topic, nil, 1, true) //nolint:errcheck // clears the retained message

	sub, err := Connect(testConfig("trackguard-test-sub"))
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	received := make(chan string, 1)
	err = sub.Subscribe(topic, 1, func(_ string, p []byte) error {
		select {
		case received <- string(p):
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !sub.HasSubscription(topic) {
		t.Error("HasSubscription() = false after Subscribe")
	}

	select {
	case msg := <-received:
		if msg != `{"interval":60}` {
			t.Errorf("received %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for retained message")
	}

	if err := sub.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if sub.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Unsubscribe", sub.SubscriptionCount())
	}
}
