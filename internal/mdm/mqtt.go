package mdm

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/trackguard/internal/identity"
	"github.com/nerrad567/trackguard/internal/infrastructure/config"
	"github.com/nerrad567/trackguard/internal/infrastructure/mqtt"
)

// Conn is the subset of *mqtt.Client the channel uses.
type Conn interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	PublishRetained(topic string, payload []byte) error
	IsConnected() bool
	Close() error
}

// Callbacks carries connection events from the dialer to the channel.
type Callbacks struct {
	OnConnect    func()
	OnDisconnect func(err error)
}

// Dialer opens a broker connection for clientID.
type Dialer func(cfg config.MQTTConfig, clientID string, cb Callbacks) (Conn, error)

// DialMQTT is the production Dialer.
func DialMQTT(logger mqtt.Logger) Dialer {
	return func(cfg config.MQTTConfig, clientID string, cb Callbacks) (Conn, error) {
		opts := []mqtt.Option{
			mqtt.WithClientID(clientID),
			mqtt.WithOnConnect(cb.OnConnect),
			mqtt.WithOnDisconnect(cb.OnDisconnect),
		}
		if logger != nil {
			opts = append(opts, mqtt.WithLogger(logger))
		}
		client, err := mqtt.Connect(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// MQTTChannel is a management channel over an MQTT broker.
type MQTTChannel struct {
	cfg     config.MQTTConfig
	dial    Dialer
	handler Handler
	topics  mqtt.Topics
	logger  Logger

	mu         sync.Mutex
	conn       Conn
	connecting bool
	generation uint64

	settings atomic.Pointer[[]byte]
	wg       sync.WaitGroup
}

// NewMQTTChannel creates a channel reporting to handler.
func NewMQTTChannel(cfg config.MQTTConfig, dial Dialer, handler Handler) *MQTTChannel {
	return &MQTTChannel{
		cfg:     cfg,
		dial:    dial,
		handler: handler,
		topics:  mqtt.NewTopics(cfg.TopicPrefix),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the channel.
func (c *MQTTChannel) SetLogger(logger Logger) {
	c.logger = logger
}

// SetHandler replaces the event handler. It must be called before Connect.
func (c *MQTTChannel) SetHandler(handler Handler) {
	c.handler = handler
}

// Connect dials the broker in the background and returns true, or returns
// false when management is disabled or the identity is unusable.
// A second Connect while one is in flight or established is a no-op that
// returns true.
func (c *MQTTChannel) Connect(id string) bool {
	if !c.cfg.Enabled {
		return false
	}
	if id == "" || id == identity.Unknown {
		c.logger.Warn("not connecting to management", "error", ErrNoIdentity)
		return false
	}

	c.mu.Lock()
	if c.connecting || c.conn != nil {
		c.mu.Unlock()
		return true
	}
	c.connecting = true
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.establish(gen, id)
	}()
	return true
}

func (c *MQTTChannel) establish(gen uint64, id string) {
	clientID := fmt.Sprintf("%s-%s", c.cfg.Broker.ClientID, id)
	cb := Callbacks{
		OnConnect: func() {
			if c.current(gen) {
				c.notify(Handler.OnConnected)
			}
		},
		OnDisconnect: func(err error) {
			if c.current(gen) {
				c.logger.Warn("management connection lost", "error", err)
				c.notify(Handler.OnDisconnected)
			}
		},
	}

	conn, err := c.dial(c.cfg, clientID, cb)

	c.mu.Lock()
	if gen != c.generation {
		// Disconnect was called while dialing.
		c.mu.Unlock()
		if conn != nil {
			conn.Close() //nolint:errcheck // abandoned connection
		}
		return
	}
	c.connecting = false
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("management connection failed", "client_id", clientID, "error", err)
		return
	}
	c.conn = conn
	c.mu.Unlock()

	topic := c.topics.DeviceConfig(id)
	if err := conn.Subscribe(topic, byte(c.cfg.QoS), c.onConfig); err != nil {
		c.logger.Error("subscribing to configuration failed", "topic", topic, "error", err)
	}
}

// current reports whether gen is still the live connection attempt.
func (c *MQTTChannel) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation
}

func (c *MQTTChannel) onConfig(topic string, payload []byte) error {
	if prev := c.settings.Load(); prev != nil && bytes.Equal(*prev, payload) {
		c.logger.Debug("configuration unchanged", "topic", topic)
		return nil
	}
	doc := bytes.Clone(payload)
	c.settings.Store(&doc)
	c.notify(Handler.OnConfigChanged)
	return nil
}

func (c *MQTTChannel) notify(event func(Handler)) {
	if c.handler != nil {
		event(c.handler)
	}
}

// Disconnect closes the connection and abandons any dial in flight.
func (c *MQTTChannel) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connecting = false
	c.generation++
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Warn("closing management connection", "error", err)
		}
	}
}

// IsConnected reports whether the broker link is up.
func (c *MQTTChannel) IsConnected() bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	return conn != nil && conn.IsConnected()
}

// ReportState publishes state as the retained snapshot for id, so a
// console that subscribes later still sees the latest one.
func (c *MQTTChannel) ReportState(id string, state []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !conn.IsConnected() {
		return mqtt.ErrNotConnected
	}
	return conn.PublishRetained(c.topics.DeviceState(id), state)
}

// Settings returns the last configuration document received.
func (c *MQTTChannel) Settings() []byte {
	if doc := c.settings.Load(); doc != nil {
		return *doc
	}
	return nil
}

// Wait blocks until background dials have finished.
func (c *MQTTChannel) Wait() {
	c.wg.Wait()
}
