// Package emitter forwards detection events and status changes to an MQTT broker.
package emitter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dj-oyu/facecam/internal/logger"
	"github.com/dj-oyu/facecam/internal/metrics"
	"github.com/dj-oyu/facecam/pkg/types"
)

// Config holds MQTT emitter settings.
type Config struct {
	Broker         string // host:port, or a tcp:// / ssl:// / ws:// URL
	ClientID       string
	TopicPrefix    string
	QoS            byte
	QueueSize      int
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// DefaultConfig returns the emitter defaults. Broker is left empty (disabled).
func DefaultConfig() Config {
	return Config{
		ClientID:       "facecam",
		TopicPrefix:    "facecam",
		QoS:            0,
		QueueSize:      16,
		ConnectTimeout: 5 * time.Second,
		PublishTimeout: 2 * time.Second,
	}
}

// ErrNotConnected is returned while the broker connection is down.
var ErrNotConnected = errors.New("mqtt not connected")

// publisher is the subset of mqtt.Client the emitter uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

// MQTTEmitter publishes detection events from a bounded queue.
// Publish never blocks the capture loop; a full queue drops the event.
type MQTTEmitter struct {
	cfg     Config
	metrics *metrics.Metrics
	client  mqtt.Client
	pub     publisher

	connected atomic.Bool
	queue     chan message
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates an emitter. Call Connect before publishing.
func New(cfg Config, m *metrics.Metrics) *MQTTEmitter {
	def := DefaultConfig()
	if cfg.ClientID == "" {
		cfg.ClientID = def.ClientID
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = def.TopicPrefix
	}
	cfg.TopicPrefix = strings.TrimRight(cfg.TopicPrefix, "/")
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if m == nil {
		m = metrics.New()
	}
	return &MQTTEmitter{
		cfg:     cfg,
		metrics: m,
		queue:   make(chan message, cfg.QueueSize),
		done:    make(chan struct{}),
	}
}

// BrokerURL adds the tcp:// scheme to a bare host:port.
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect dials the broker and starts the publish worker.
func (e *MQTTEmitter) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		logger.Info("MQTT", "Connected to %s as %s", e.cfg.Broker, e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		logger.Warn("MQTT", "Connection lost, reconnecting: %v", err)
	}

	e.client = mqtt.NewClient(opts)
	logger.Info("MQTT", "Connecting to broker %s", e.cfg.Broker)

	token := e.client.Connect()
	if !token.WaitTimeout(e.cfg.ConnectTimeout) {
		e.client.Disconnect(0) // stop the background connect retry
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	e.setConnected(true)

	e.start(e.client)
	return nil
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.connected.Store(v)
	if v {
		e.metrics.MQTTConnected.Store(1)
	} else {
		e.metrics.MQTTConnected.Store(0)
	}
}

func (e *MQTTEmitter) start(p publisher) {
	e.pub = p
	e.wg.Add(1)
	go e.run()
}

func (e *MQTTEmitter) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case msg := <-e.queue:
			if err := e.send(msg); err != nil {
				e.metrics.MQTTErrors.Add(1)
				logger.Warn("MQTT", "Publish to %s failed: %v", msg.topic, err)
			}
		}
	}
}

func (e *MQTTEmitter) send(msg message) error {
	if !e.connected.Load() {
		return ErrNotConnected
	}
	token := e.pub.Publish(msg.topic, e.cfg.QoS, msg.retained, msg.payload)
	if !token.WaitTimeout(e.cfg.PublishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	e.metrics.MQTTPublished.Add(1)
	logger.Debug("MQTT", "Published %d bytes to %s", len(msg.payload), msg.topic)
	return nil
}

// DetectionTopic returns the topic detection events of a session go to.
func (e *MQTTEmitter) DetectionTopic(sessionID string) string {
	return fmt.Sprintf("%s/%s/detections", e.cfg.TopicPrefix, sessionID)
}

// StatusTopic returns the retained status topic.
func (e *MQTTEmitter) StatusTopic() string {
	return e.cfg.TopicPrefix + "/status"
}

// Publish queues a detection event. It implements the capture loop's sink.
func (e *MQTTEmitter) Publish(event types.DetectionEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.metrics.MQTTErrors.Add(1)
		logger.Warn("MQTT", "Marshal detection event: %v", err)
		return
	}
	e.enqueue(message{topic: e.DetectionTopic(event.SessionID), payload: payload})
}

// PublishStatus queues a retained status update.
func (e *MQTTEmitter) PublishStatus(status any) {
	payload, err := json.Marshal(status)
	if err != nil {
		e.metrics.MQTTErrors.Add(1)
		logger.Warn("MQTT", "Marshal status: %v", err)
		return
	}
	e.enqueue(message{topic: e.StatusTopic(), payload: payload, retained: true})
}

func (e *MQTTEmitter) enqueue(msg message) {
	select {
	case e.queue <- msg:
	default:
		e.metrics.MQTTErrors.Add(1)
		logger.Debug("MQTT", "Queue full, dropping message for %s", msg.topic)
	}
}

// Close stops the worker and disconnects from the broker.
func (e *MQTTEmitter) Close() {
	e.stopOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
		if e.client != nil && e.client.IsConnected() {
			e.client.Disconnect(250)
			logger.Info("MQTT", "Disconnected")
		}
		e.setConnected(false)
	})
}
